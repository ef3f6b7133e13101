package domain

import (
	"encoding/json"
	"regexp"
	"strings"
)

// MaxEmptyPromptFields is the number of empty sections a persona prompt may
// carry before the attempt is retried.
const MaxEmptyPromptFields = 2

// Section keys of a creative prompt in rendering order.
var PromptSections = []string{"product", "composition", "scene", "lighting", "camera", "style"}

// CreativePrompt is one persona's structured image prompt. Sections may be
// plain strings or nested objects depending on what the model emitted.
type CreativePrompt struct {
	Product     Value
	Composition Value
	Scene       Value
	Lighting    Value
	Camera      Value
	Style       Value
	Subject     Value
	Rules       []string
	Extra       Object
}

// DecodeCreativePrompt splits a model object into known sections and passthrough keys.
func DecodeCreativePrompt(obj Object) CreativePrompt {
	cp := CreativePrompt{
		Product:     obj["product"],
		Composition: obj["composition"],
		Scene:       obj["scene"],
		Lighting:    obj["lighting"],
		Camera:      obj["camera"],
		Style:       obj["style"],
		Subject:     obj["subject"],
		Rules:       obj["rules"].Strings(),
	}
	for key, val := range obj {
		switch key {
		case "product", "composition", "scene", "lighting", "camera", "style", "subject", "rules":
			continue
		}
		if cp.Extra == nil {
			cp.Extra = Object{}
		}
		cp.Extra[key] = val
	}
	return cp
}

// Section returns a named section.
func (c *CreativePrompt) Section(name string) Value {
	switch name {
	case "product":
		return c.Product
	case "composition":
		return c.Composition
	case "scene":
		return c.Scene
	case "lighting":
		return c.Lighting
	case "camera":
		return c.Camera
	case "style":
		return c.Style
	case "subject":
		return c.Subject
	}
	return c.Extra[name]
}

// EmptyFields names the sections that count as empty. A missing section
// counts, a null subject does not, and rules are never counted.
func (c *CreativePrompt) EmptyFields() []string {
	var empty []string
	for _, name := range PromptSections {
		if c.Section(name).IsBlank() {
			empty = append(empty, name)
		}
	}
	if !c.Subject.IsNull() && c.Subject.IsBlank() {
		empty = append(empty, "subject")
	}
	for _, key := range c.Extra.Keys() {
		val := c.Extra[key]
		switch val.Kind() {
		case KindObject, KindList:
			if val.IsBlank() {
				empty = append(empty, key)
			}
		}
	}
	return empty
}

// TooManyEmpty reports whether the prompt exceeds the empty section allowance.
func (c *CreativePrompt) TooManyEmpty() bool {
	return len(c.EmptyFields()) > MaxEmptyPromptFields
}

var aspectRatioKeys = []string{"aspect_ratio", "aspectRatio", "ratio", "format"}

var aspectRatioPattern = regexp.MustCompile(`\b(\d+:\d+)\b`)

// AspectRatioCandidates returns every non-empty aspect ratio text declared
// in the composition section, in key preference order. A plain string
// composition is its own single candidate.
func (c *CreativePrompt) AspectRatioCandidates() []string {
	if obj, ok := c.Composition.Obj(); ok {
		var out []string
		for _, key := range aspectRatioKeys {
			if t := obj.Text(key); t != "" {
				out = append(out, t)
			}
		}
		return out
	}
	if s, ok := c.Composition.Str(); ok && strings.TrimSpace(s) != "" {
		return []string{strings.TrimSpace(s)}
	}
	return nil
}

// FindAspectRatios extracts every N:M pattern from verbose text.
func FindAspectRatios(text string) []string {
	return aspectRatioPattern.FindAllString(text, -1)
}

// Object reassembles the prompt as a generic object.
func (c *CreativePrompt) Object() Object {
	out := make(Object, len(c.Extra)+8)
	for key, val := range c.Extra {
		out[key] = val
	}
	for _, name := range PromptSections {
		out[name] = c.Section(name)
	}
	out["subject"] = c.Subject
	rules := make([]Value, 0, len(c.Rules))
	for _, r := range c.Rules {
		rules = append(rules, String(r))
	}
	out["rules"] = ListValue(rules)
	return out
}

func (c CreativePrompt) MarshalJSON() ([]byte, error) {
	return json.Marshal(ObjectValue(c.Object()))
}

func (c *CreativePrompt) UnmarshalJSON(data []byte) error {
	var v Value
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	obj, ok := v.Obj()
	if !ok {
		return NewMalformedOutputError("creative prompt is not an object", strings.TrimSpace(string(data)))
	}
	*c = DecodeCreativePrompt(obj)
	return nil
}
