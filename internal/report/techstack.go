package report

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Category is one of the fixed technology stack groupings.
type Category string

const (
	JavaScriptFrameworks Category = "JavaScriptFrameworks"
	WebServers           Category = "WebServers"
	ProgrammingLanguages Category = "ProgrammingLanguages"
	CMS                  Category = "CMS"
	Analytics            Category = "Analytics"
	CDN                  Category = "CDN"
	OS                   Category = "OS"
)

// Categories lists every category in presentation order.
var Categories = []Category{
	JavaScriptFrameworks,
	WebServers,
	ProgrammingLanguages,
	CMS,
	Analytics,
	CDN,
	OS,
}

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// TechStack maps categories to technology names in first-seen order.
type TechStack map[Category][]string

// Add records tech under cat, ignoring duplicates.
func (t TechStack) Add(cat Category, tech string) {
	for _, existing := range t[cat] {
		if existing == tech {
			return
		}
	}
	t[cat] = append(t[cat], tech)
}

// Has reports whether tech has been recorded under cat.
func (t TechStack) Has(cat Category, tech string) bool {
	for _, existing := range t[cat] {
		if existing == tech {
			return true
		}
	}
	return false
}

// Prune drops empty categories.
func (t TechStack) Prune() {
	for cat, techs := range t {
		if len(techs) == 0 {
			delete(t, cat)
		}
	}
}

// MarshalJSON emits categories in presentation order.
func (t TechStack) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, cat := range Categories {
		techs, ok := t[cat]
		if !ok || len(techs) == 0 {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, _ := json.Marshal(string(cat))
		val, err := json.Marshal(techs)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (t *TechStack) UnmarshalJSON(data []byte) error {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*t = nil
		return nil
	}
	out := make(TechStack, len(raw))
	for k, v := range raw {
		cat := Category(k)
		if !ValidCategory(cat) {
			return fmt.Errorf("unknown tech stack category %q", k)
		}
		out[cat] = v
	}
	*t = out
	return nil
}
