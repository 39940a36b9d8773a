package extraction

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// ScoredFields 参与完整度评分的字段
var ScoredFields = []string{
	"fluid",
	"material_spec",
	"material_grade",
	"insulation",
	"design_temp",
	"design_pressure",
	"operating_temp",
	"operating_pressure",
}

// textFields 忽略大小写比较的文本字段
var textFields = map[string]bool{
	"fluid":          true,
	"material_spec":  true,
	"material_grade": true,
}

// ExpectedComponent 部件的期望参数
type ExpectedComponent struct {
	Name              string `yaml:"name"`
	Phase             string `yaml:"phase"`
	Fluid             string `yaml:"fluid"`
	MaterialSpec      string `yaml:"material_spec"`
	MaterialGrade     string `yaml:"material_grade"`
	Insulation        string `yaml:"insulation"`
	DesignTemp        string `yaml:"design_temp"`
	DesignPressure    string `yaml:"design_pressure"`
	OperatingTemp     string `yaml:"operating_temp"`
	OperatingPressure string `yaml:"operating_pressure"`
}

// Field 按字段名取期望值
func (c ExpectedComponent) Field(name string) string {
	switch name {
	case "phase":
		return c.Phase
	case "fluid":
		return c.Fluid
	case "material_spec":
		return c.MaterialSpec
	case "material_grade":
		return c.MaterialGrade
	case "insulation":
		return c.Insulation
	case "design_temp":
		return c.DesignTemp
	case "design_pressure":
		return c.DesignPressure
	case "operating_temp":
		return c.OperatingTemp
	case "operating_pressure":
		return c.OperatingPressure
	}
	return ""
}

// EquipmentRule 单台设备的参考数据
type EquipmentRule struct {
	Number      string              `yaml:"-"`
	PMTNumber   string              `yaml:"pmt_number"`
	Description string              `yaml:"description"`
	Components  []ExpectedComponent `yaml:"components"`
}

// Rules 设备参考数据目录
type Rules struct {
	InsulationOnly []string                  `yaml:"insulation_only"`
	SkipOperating  []string                  `yaml:"skip_operating"`
	Equipments     map[string]*EquipmentRule `yaml:"equipment"`
}

// LoadRules 解析 YAML 格式的参考数据
func LoadRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("解析提取规则失败: %w", err)
	}
	for number, eq := range r.Equipments {
		if eq == nil {
			return nil, fmt.Errorf("设备 %s 缺少定义", number)
		}
		eq.Number = number
	}
	return &r, nil
}

// DefaultRules 内置参考数据
func DefaultRules() *Rules {
	r, err := LoadRules(defaultRulesYAML)
	if err != nil {
		panic(err)
	}
	return r
}

// Equipment 查询设备参考数据，不存在返回 nil
func (r *Rules) Equipment(number string) *EquipmentRule {
	return r.Equipments[number]
}

// IsInsulationOnly 该设备是否只需保温信息
func (r *Rules) IsInsulationOnly(number string) bool {
	return contains(r.InsulationOnly, number)
}

// SkipsOperating 该设备是否不提取操作温度/压力
func (r *Rules) SkipsOperating(number string) bool {
	return contains(r.SkipOperating, number)
}

// Completeness 计算提取完整度百分比及各部件缺失字段。
// 部件按名称精确匹配；未提取到的部件计 8 个缺失字段
func (r *Rules) Completeness(number string, data *Result) (float64, map[string][]string) {
	missing := make(map[string][]string)
	eq := r.Equipment(number)
	if eq == nil || len(eq.Components) == 0 {
		return 0, missing
	}

	valid, total := 0, 0
	for _, expected := range eq.Components {
		total += len(ScoredFields)
		got := data.component(expected.Name)
		if got == nil {
			missing[expected.Name] = append([]string(nil), ScoredFields...)
			continue
		}
		for _, field := range ScoredFields {
			value := got.Field(field)
			if strings.TrimSpace(value) == "" {
				missing[expected.Name] = append(missing[expected.Name], field)
				continue
			}
			if matches(field, expected.Field(field), value) {
				valid++
			}
		}
	}
	return float64(valid) / float64(total) * 100, missing
}

func matches(field, expected, extracted string) bool {
	if textFields[field] {
		return strings.Contains(strings.ToUpper(extracted), strings.ToUpper(expected))
	}
	return strings.Contains(extracted, expected)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
