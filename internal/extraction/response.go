package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"autorbi/internal/equipment"
)

// ErrUnparsableResponse 模型回复无法解析为 JSON
var ErrUnparsableResponse = errors.New("无法将模型回复解析为 JSON")

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// Value 兼容模型返回字符串、数字或 null 的字段
type Value string

// UnmarshalJSON 实现 json.Unmarshaler
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			var b bool
			if errB := json.Unmarshal(data, &b); errB != nil {
				return fmt.Errorf("不支持的字段值: %s", data)
			}
			*v = Value(strconv.FormatBool(b))
			return nil
		}
		*v = Value(n.String())
	}
	return nil
}

// ExtractedComponent 模型提取的部件数据
type ExtractedComponent struct {
	ComponentName     Value `json:"component_name"`
	Phase             Value `json:"phase"`
	Fluid             Value `json:"fluid"`
	MaterialSpec      Value `json:"material_spec"`
	MaterialGrade     Value `json:"material_grade"`
	Insulation        Value `json:"insulation"`
	DesignTemp        Value `json:"design_temp"`
	DesignPressure    Value `json:"design_pressure"`
	OperatingTemp     Value `json:"operating_temp"`
	OperatingPressure Value `json:"operating_pressure"`
}

// Field 按字段名取值
func (c *ExtractedComponent) Field(name string) string {
	if p := c.fieldPtr(name); p != nil {
		return string(*p)
	}
	return ""
}

func (c *ExtractedComponent) fieldPtr(name string) *Value {
	switch name {
	case "phase":
		return &c.Phase
	case "fluid":
		return &c.Fluid
	case "material_spec":
		return &c.MaterialSpec
	case "material_grade":
		return &c.MaterialGrade
	case "insulation":
		return &c.Insulation
	case "design_temp":
		return &c.DesignTemp
	case "design_pressure":
		return &c.DesignPressure
	case "operating_temp":
		return &c.OperatingTemp
	case "operating_pressure":
		return &c.OperatingPressure
	}
	return nil
}

// Result 单次或合并后的提取结果
type Result struct {
	EquipmentNumber Value                `json:"equipment_number"`
	PMTNumber       Value                `json:"pmt_number"`
	Description     Value                `json:"description"`
	Components      []ExtractedComponent `json:"components"`
}

func (r *Result) component(name string) *ExtractedComponent {
	if r == nil {
		return nil
	}
	for i := range r.Components {
		if string(r.Components[i].ComponentName) == name {
			return &r.Components[i]
		}
	}
	return nil
}

// ParseResponse 解析模型回复，支持裸 JSON 与 ```json 代码块
func ParseResponse(response string) (*Result, error) {
	var r Result
	if err := json.Unmarshal([]byte(strings.TrimSpace(response)), &r); err == nil {
		return &r, nil
	}
	if m := fencedJSON.FindStringSubmatch(response); m != nil {
		var fenced Result
		if err := json.Unmarshal([]byte(m[1]), &fenced); err == nil {
			return &fenced, nil
		}
	}
	return nil, ErrUnparsableResponse
}

// Merge 将 other 中的部件数据并入 r。
// overwrite 为 true 时非空值覆盖已有值，否则只填补空字段；r 中没有的部件直接追加
func (r *Result) Merge(other *Result, overwrite bool) {
	if other == nil {
		return
	}
	for i := range other.Components {
		src := &other.Components[i]
		name := strings.TrimSpace(string(src.ComponentName))
		if name == "" {
			continue
		}
		dst := r.component(name)
		if dst == nil {
			r.Components = append(r.Components, *src)
			continue
		}
		for _, field := range append([]string{"phase"}, ScoredFields...) {
			v := strings.TrimSpace(src.Field(field))
			if v == "" {
				continue
			}
			p := dst.fieldPtr(field)
			if overwrite || strings.TrimSpace(string(*p)) == "" {
				*p = Value(v)
			}
		}
	}
}

// ToEquipment 转换为设备写回参数，设备编号以文件名解析结果为准
func (r *Result) ToEquipment(number, pmtNumber, description string) equipment.ExtractedEquipment {
	out := equipment.ExtractedEquipment{
		EquipmentNumber: number,
		PMTNumber:       pmtNumber,
		Description:     description,
	}
	for _, c := range r.Components {
		name := strings.TrimSpace(string(c.ComponentName))
		if name == "" {
			continue
		}
		out.Components = append(out.Components, equipment.ComponentInput{
			ComponentName:     name,
			Phase:             strings.TrimSpace(string(c.Phase)),
			Fluid:             strings.TrimSpace(string(c.Fluid)),
			MaterialSpec:      strings.TrimSpace(string(c.MaterialSpec)),
			MaterialGrade:     strings.TrimSpace(string(c.MaterialGrade)),
			Insulation:        strings.TrimSpace(string(c.Insulation)),
			DesignTemp:        strings.TrimSpace(string(c.DesignTemp)),
			DesignPressure:    strings.TrimSpace(string(c.DesignPressure)),
			OperatingTemp:     strings.TrimSpace(string(c.OperatingTemp)),
			OperatingPressure: strings.TrimSpace(string(c.OperatingPressure)),
		})
	}
	return out
}
