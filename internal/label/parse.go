package label

import (
	"strings"

	"github.com/tidwall/gjson"
)

type Assignment struct {
	Category Category `json:"category"`
	Name     Name     `json:"label"`
}

// MapAll matches every raw value and returns one assignment per distinct
// (category, name) pair, categories in display order and values in input
// order.
func MapAll(raw map[Category][]string) []Assignment {
	var out []Assignment
	for _, c := range Categories() {
		seen := make(map[Name]bool)
		for _, text := range raw[c] {
			n := Match(c, text)
			if seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, Assignment{Category: c, Name: n})
		}
	}
	return out
}

// ParseCategories pulls per-category value lists out of an AI reply. It
// understands a JSON object (optionally fenced in markdown), whose values
// are arrays or comma separated strings, and falls back to "Genre: a, b"
// lines.
func ParseCategories(text string) map[Category][]string {
	out := make(map[Category][]string)

	if obj, ok := extractJSON(text); ok {
		obj.ForEach(func(key, value gjson.Result) bool {
			c, ok := ParseCategory(key.String())
			if !ok {
				return true
			}
			if value.IsArray() {
				for _, v := range value.Array() {
					out[c] = appendValues(out[c], v.String())
				}
			} else {
				out[c] = appendValues(out[c], value.String())
			}
			return true
		})
		return out
	}

	for _, line := range strings.Split(text, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			key, value, found = strings.Cut(line, "：")
		}
		if !found {
			continue
		}
		c, ok := ParseCategory(strings.Trim(key, " -*#\t"))
		if !ok {
			continue
		}
		out[c] = appendValues(out[c], value)
	}
	return out
}

func appendValues(dst []string, s string) []string {
	for _, part := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '，' || r == ';' || r == '、' || r == '|'
	}) {
		if part = strings.TrimSpace(part); part != "" {
			dst = append(dst, part)
		}
	}
	return dst
}

// extractJSON finds the outermost object in s, tolerating code fences and
// chatter around it.
func extractJSON(s string) (gjson.Result, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return gjson.Result{}, false
	}
	body := s[start : end+1]
	if !gjson.Valid(body) {
		return gjson.Result{}, false
	}
	return gjson.Parse(body), true
}
