package profile

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Profiles pasted from chat clients and web forms are often almost-JSON:
// single-quoted strings, bare keys, trailing commas. decodeJSONMap first
// tries the document as-is, then once more after lenient repair.

var (
	singleQuoteRe = regexp.MustCompile(`(^|[^\\])'`)
	bareKeyRe     = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*):`)
	trailingObjRe = regexp.MustCompile(`,\s*}`)
	trailingArrRe = regexp.MustCompile(`,\s*]`)
)

// decodeJSONMap parses s into a string-keyed map, repairing common format
// mistakes on a second attempt. ok is false when neither attempt yields a
// JSON object.
func decodeJSONMap(s string) (map[string]any, bool) {
	if m, ok := tryDecode(s); ok {
		return m, true
	}
	if m, ok := tryDecode(repairJSON(s)); ok {
		return m, true
	}
	return nil, false
}

func tryDecode(s string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &m); err != nil {
		return nil, false
	}
	return m, m != nil
}

// repairJSON applies best-effort fixes: single quotes to double quotes,
// unquoted object keys, and trailing commas. It operates on the raw text and
// can mangle exotic documents; callers treat the result as a second guess,
// never as authoritative.
func repairJSON(s string) string {
	fixed := singleQuoteRe.ReplaceAllString(s, `$1"`)
	fixed = bareKeyRe.ReplaceAllString(fixed, `$1"$2"$3:`)
	fixed = trailingObjRe.ReplaceAllString(fixed, "}")
	fixed = trailingArrRe.ReplaceAllString(fixed, "]")
	return fixed
}
