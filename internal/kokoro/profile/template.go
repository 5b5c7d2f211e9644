package profile

// Template returns a sample profile document for the given variant, used by
// the API to show persona authors the expected shape. Variants without a
// dedicated template fall back to the default one.
func Template(variant Variant) map[string]any {
	if t, ok := templates[variant]; ok {
		return cloneDoc(t)
	}
	return cloneDoc(templates[VariantDefault])
}

var templates = map[Variant]map[string]any{
	VariantDefault: {
		"name":        "角色名称",
		"personality": "详细性格描述",
		"gender":      "性别",
		"age":         "年龄",
		"race":        "种族",
		"appearance":  "外貌描述",
		"clothing":    "服装描述",
		"traits":      []any{"特质1", "特质2"},
		"skills":      []any{"技能1", "技能2"},
		"goals":       "角色目标",
		"backstory":   "背景故事",
	},
	VariantFantasy: {
		"name":        "角色名称",
		"personality": "性格描述",
		"gender":      "性别",
		"race":        "种族（人类/精灵/矮人等）",
		"appearance":  "外貌",
		"clothing":    "服装盔甲",
		"weapon": map[string]any{
			"name":      "武器名",
			"type":      "武器类型",
			"abilities": "特殊能力",
		},
		"magic_system": "魔法系统",
		"kingdom":      "所属王国",
		"alignment":    "阵营",
	},
}

func cloneDoc(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			out[k] = cloneDoc(val)
		case []any:
			cp := make([]any, len(val))
			copy(cp, val)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}
