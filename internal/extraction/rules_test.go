package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completeResult 按参考数据构造一份全部匹配的提取结果
func completeResult(rule *EquipmentRule) *Result {
	r := &Result{EquipmentNumber: Value(rule.Number)}
	for _, c := range rule.Components {
		r.Components = append(r.Components, ExtractedComponent{
			ComponentName:     Value(c.Name),
			Phase:             Value(c.Phase),
			Fluid:             Value(c.Fluid),
			MaterialSpec:      Value(c.MaterialSpec),
			MaterialGrade:     Value(c.MaterialGrade),
			Insulation:        Value(c.Insulation),
			DesignTemp:        Value(c.DesignTemp),
			DesignPressure:    Value(c.DesignPressure),
			OperatingTemp:     Value(c.OperatingTemp),
			OperatingPressure: Value(c.OperatingPressure),
		})
	}
	return r
}

func TestDefaultRulesCatalog(t *testing.T) {
	rules := DefaultRules()

	for _, number := range []string{"V-001", "V-002", "V-003", "V-004", "V-005", "V-006", "H-001", "H-002", "H-003", "H-004"} {
		eq := rules.Equipment(number)
		require.NotNil(t, eq, number)
		assert.Equal(t, number, eq.Number)
		assert.NotEmpty(t, eq.Components, number)
	}
	assert.Nil(t, rules.Equipment("V-999"))

	v3 := rules.Equipment("V-003")
	assert.Equal(t, "MLK PMT 10103", v3.PMTNumber)
	assert.Equal(t, "Condensate Vessel", v3.Description)
	require.Len(t, v3.Components, 3)
	assert.Equal(t, "Top Head", v3.Components[0].Name)
	assert.Equal(t, "1000.00", v3.Components[0].DesignPressure)

	assert.True(t, rules.IsInsulationOnly("V-001"))
	assert.True(t, rules.IsInsulationOnly("H-001"))
	assert.False(t, rules.IsInsulationOnly("V-002"))
	assert.True(t, rules.SkipsOperating("H-003"))
	assert.False(t, rules.SkipsOperating("V-003"))
}

func TestCompleteness(t *testing.T) {
	rules := DefaultRules()
	v3 := rules.Equipment("V-003")

	t.Run("全部匹配", func(t *testing.T) {
		pct, missing := rules.Completeness("V-003", completeResult(v3))
		assert.InDelta(t, 100.0, pct, 0.001)
		assert.Empty(t, missing)
	})

	t.Run("文本字段忽略大小写并按包含匹配", func(t *testing.T) {
		r := completeResult(v3)
		r.Components[0].Fluid = "hot condensate"
		r.Components[0].MaterialSpec = "ASME sa-516"
		r.Components[0].DesignTemp = "200 C"
		pct, missing := rules.Completeness("V-003", r)
		assert.InDelta(t, 100.0, pct, 0.001)
		assert.Empty(t, missing)
	})

	t.Run("数值字段区分大小写且值不符不计分但不算缺失", func(t *testing.T) {
		r := completeResult(v3)
		r.Components[0].DesignTemp = "250"
		pct, missing := rules.Completeness("V-003", r)
		assert.InDelta(t, 23.0/24.0*100, pct, 0.001)
		assert.Empty(t, missing)
	})

	t.Run("空白值视为缺失", func(t *testing.T) {
		r := completeResult(v3)
		r.Components[1].Insulation = "   "
		r.Components[1].OperatingTemp = ""
		pct, missing := rules.Completeness("V-003", r)
		assert.InDelta(t, 22.0/24.0*100, pct, 0.001)
		assert.Equal(t, map[string][]string{"Shell": {"insulation", "operating_temp"}}, missing)
	})

	t.Run("缺少的部件计 8 个缺失字段", func(t *testing.T) {
		r := completeResult(v3)
		r.Components = r.Components[:2]
		pct, missing := rules.Completeness("V-003", r)
		assert.InDelta(t, 16.0/24.0*100, pct, 0.001)
		assert.Equal(t, ScoredFields, missing["Bottom Head"])
	})

	t.Run("部件名称精确匹配", func(t *testing.T) {
		r := completeResult(v3)
		r.Components[2].ComponentName = "bottom head"
		_, missing := rules.Completeness("V-003", r)
		assert.Len(t, missing["Bottom Head"], 8)
	})

	t.Run("未知设备", func(t *testing.T) {
		pct, missing := rules.Completeness("X-001", completeResult(v3))
		assert.Zero(t, pct)
		assert.Empty(t, missing)
	})
}

func TestLoadRulesRejectsInvalidYAML(t *testing.T) {
	_, err := LoadRules([]byte("equipment: [unterminated"))
	assert.Error(t, err)
}
