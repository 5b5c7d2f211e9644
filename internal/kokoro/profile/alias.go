package profile

import "sort"

// fieldAliases maps natural-language field names, as they appear in
// user-authored profiles, onto canonical field names. Keys not present in
// this table pass through unchanged so unknown custom fields are preserved.
var fieldAliases = map[string]string{
	// Chinese → canonical
	"姓名":  "name",
	"名字":  "name",
	"角色名": "name",
	"性格":  "personality",
	"个性":  "personality",
	"性别":  "gender",
	"sex": "gender",
	"年龄":  "age",
	"年紀":  "age",
	"种族":  "race",
	"物种":  "race",
	"外貌":  "appearance",
	"长相":  "appearance",
	"外表":  "appearance",
	"服装":  "clothing",
	"衣着":  "clothing",
	"打扮":  "clothing",
	"特质":  "traits",
	"特点":  "traits",
	"技能":  "skills",
	"能力":  "skills",
	"武器":  "weapon",
	"装备":  "weapon",
	"队友":  "teammates",
	"同伴":  "teammates",
	"伙伴":  "teammates",
	"目标":  "goals",
	"目的":  "goals",
	"怪癖":  "quirks",
	"习惯":  "quirks",
	"背景":  "backstory",
	"故事":  "backstory",
	"经历":  "backstory",

	// English synonyms → canonical
	"personality_traits": "traits",
	"abilities":          "skills",
	"companions":         "teammates",
	"history":            "backstory",
	"apparel":            "clothing",
	"looks":              "appearance",
}

// applyAliases rewrites recognized keys to their canonical names. When both
// an alias and its canonical key are present, the canonical key wins; two
// aliases of the same field are resolved in lexical key order so the result
// does not depend on map iteration order.
func applyAliases(raw map[string]any) map[string]any {
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(raw))
	for _, key := range keys {
		canonical, ok := fieldAliases[key]
		if !ok {
			out[key] = raw[key]
			continue
		}
		if _, taken := raw[canonical]; taken {
			// Canonical key present verbatim; drop the alias duplicate.
			continue
		}
		if _, taken := out[canonical]; taken {
			continue
		}
		out[canonical] = raw[key]
	}
	return out
}
