package image

import (
	"encoding/json"
	"strings"

	"creativeflow/internal/domain"
)

// preferredKeys are rendered first, in order, when a section is an object.
var preferredKeys = map[string][]string{
	"product":     {"name", "category", "material", "color", "feature", "description"},
	"composition": {"framing", "placement"},
}

var sectionLabels = []struct {
	name  string
	label string
}{
	{"product", "Product"},
	{"composition", "Composition"},
	{"scene", "Scene"},
	{"lighting", "Lighting"},
	{"camera", "Camera"},
	{"style", "Style"},
	{"subject", "Subject"},
}

// BuildPrompt flattens a structured prompt into the descriptive text sent to
// the image backend. When no section has renderable text the compact JSON
// form is returned instead.
func BuildPrompt(p domain.CreativePrompt) string {
	var parts []string
	for _, s := range sectionLabels {
		if text := sectionText(s.name, p.Section(s.name)); text != "" {
			parts = append(parts, s.label+": "+text)
		}
	}
	if len(parts) == 0 {
		raw, err := json.Marshal(p)
		if err != nil {
			return ""
		}
		return string(raw)
	}
	return strings.Join(parts, ". ")
}

func sectionText(name string, v domain.Value) string {
	if t := v.Text(); t != "" {
		return t
	}
	obj, ok := v.Obj()
	if !ok {
		if list, isList := v.List(); isList && len(list) > 0 {
			return strings.Join(v.Strings(), ", ")
		}
		return ""
	}
	var values []string
	seen := make(map[string]struct{})
	for _, key := range preferredKeys[name] {
		seen[key] = struct{}{}
		if t := obj.Text(key); t != "" {
			values = append(values, t)
		}
	}
	for _, key := range obj.Keys() {
		if _, done := seen[key]; done {
			continue
		}
		if t := obj.Text(key); t != "" {
			values = append(values, t)
		}
	}
	return strings.Join(values, ", ")
}
