package profile

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Variant detection scans the serialized profile for four disjoint keyword
// sets. The first matching set, checked in this fixed priority order, selects
// the schema variant; no match selects the default schema.
var variantKeywords = []struct {
	variant  Variant
	keywords []string
}{
	{VariantFantasy, []string{"魔法", "剑", "骑士", "精灵", "龙", "魔王", "勇者"}},
	{VariantSciFi, []string{"科技", "太空", "机器人", "ai", "未来", "飞船", "星际"}},
	{VariantModern, []string{"现代", "都市", "学校", "职场", "日常"}},
	{VariantHistorical, []string{"历史", "古代", "王朝", "皇帝", "将军"}},
}

// detectVariant picks the schema variant for a raw profile map by keyword
// scan over its lowercased JSON serialization. Detection runs before field
// aliasing so keys and values both count as content.
func detectVariant(raw map[string]any) Variant {
	content := strings.ToLower(serializeForScan(raw))
	for _, set := range variantKeywords {
		for _, kw := range set.keywords {
			if strings.Contains(content, kw) {
				return set.variant
			}
		}
	}
	return VariantDefault
}

func serializeForScan(raw map[string]any) string {
	b, err := json.Marshal(raw)
	if err != nil {
		// Maps holding unmarshalable values still need a scan basis.
		return fmt.Sprint(raw)
	}
	return string(b)
}
