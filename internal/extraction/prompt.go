package extraction

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
)

var (
	equipmentNumberPattern = regexp.MustCompile(`-\s*([VH]-\d{3})$`)
	pmtNumberPattern       = regexp.MustCompile(`(?i)(PMT\s+\d+)`)
	pdfSuffix              = regexp.MustCompile(`(?i)\.pdf$`)
)

// FileMeta 从文件名解析出的设备信息
type FileMeta struct {
	EquipmentNumber string
	PMTNumber       string
}

// ParseFilename 解析形如 "MLK PMT 10103 - V-003.pdf" 的文件名，
// 设备编号必须位于末尾的 "-" 之后，无法解析时 ok 为 false
func ParseFilename(filename string) (FileMeta, bool) {
	name := strings.TrimSpace(pdfSuffix.ReplaceAllString(path.Base(filename), ""))
	m := equipmentNumberPattern.FindStringSubmatch(name)
	if m == nil {
		return FileMeta{}, false
	}
	meta := FileMeta{EquipmentNumber: m[1]}
	if pmt := pmtNumberPattern.FindStringSubmatch(name); pmt != nil {
		meta.PMTNumber = pmt[1]
	}
	return meta, true
}

// BuildPrompt 生成设备提取提示；missing 非空时附加重试段落，列出仍缺失的字段
func BuildPrompt(eq *EquipmentRule, pmtNumber string, rules *Rules, missing map[string][]string) string {
	if pmtNumber == "" {
		pmtNumber = eq.PMTNumber
	}

	var b strings.Builder
	fmt.Fprintf(&b, "EXTRACTION TASK: %s (%s) - %s\n\n", eq.Number, pmtNumber, eq.Description)
	fmt.Fprintf(&b, "This is a technical drawing/datasheet for equipment %s.\n", eq.Number)
	b.WriteString("Extract the following data for EACH component listed below.\n\n")
	b.WriteString("COMPONENTS AND EXPECTED DATA:\n")
	for _, c := range eq.Components {
		fmt.Fprintf(&b, "\n%s:\n", c.Name)
		fmt.Fprintf(&b, "  - Phase: %s\n", c.Phase)
		fmt.Fprintf(&b, "  - Fluid/Medium: %s\n", c.Fluid)
		fmt.Fprintf(&b, "  - Material Spec: %s\n", c.MaterialSpec)
		fmt.Fprintf(&b, "  - Material Grade: %s\n", c.MaterialGrade)
		fmt.Fprintf(&b, "  - Insulation: %s\n", c.Insulation)
		fmt.Fprintf(&b, "  - Design Temp (°C): %s\n", c.DesignTemp)
		fmt.Fprintf(&b, "  - Design Pressure (MPa): %s\n", c.DesignPressure)
		fmt.Fprintf(&b, "  - Operating Temp (°C): %s\n", c.OperatingTemp)
		fmt.Fprintf(&b, "  - Operating Pressure (MPa): %s\n", c.OperatingPressure)
	}

	b.WriteString(`
EXTRACTION INSTRUCTIONS:
1. Find the technical data tables in this page (Bill of Materials, material tables, pressure/temperature tables, datasheet sections)
2. For EACH component listed above, extract its values as they appear on the page
3. The expected values above are hints only, never copy them without evidence
4. Temperatures and pressures: numbers only, strip all units
5. Fluid names and material specs: exactly as written (e.g. "CHILLED WATER", "SA-516")
`)
	if rules != nil && rules.IsInsulationOnly(eq.Number) {
		b.WriteString("6. Insulation is the priority field for this equipment\n")
	}
	if rules != nil && rules.SkipsOperating(eq.Number) {
		b.WriteString("6. Operating temperature/pressure are often absent for this equipment, leave them empty when not shown\n")
	}

	if len(missing) > 0 {
		b.WriteString("\nRETRY - THE FOLLOWING FIELDS ARE STILL MISSING, LOOK FOR THEM SPECIFICALLY:\n")
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "- %s: %s\n", name, strings.Join(missing[name], ", "))
		}
	}

	fmt.Fprintf(&b, `
RETURN FORMAT:
Return ONLY a JSON object, no markdown and no explanations:
{"equipment_number": %q, "pmt_number": %q, "description": %q, "components": [
`, eq.Number, pmtNumber, eq.Description)
	for i, c := range eq.Components {
		sep := ","
		if i == len(eq.Components)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, `  {"component_name": %q, "phase": "", "fluid": "", "material_spec": "", "material_grade": "", "insulation": "", "design_temp": "", "design_pressure": "", "operating_temp": "", "operating_pressure": ""}%s`+"\n", c.Name, sep)
	}
	b.WriteString("]}\n\nUse empty string \"\" for values not visible on this page, never null. Every component listed above MUST appear.\n")
	return b.String()
}
