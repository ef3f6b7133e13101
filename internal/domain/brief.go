package domain

import (
	"encoding/json"
	"strings"
)

// BriefType distinguishes physical products from apps.
type BriefType string

const (
	BriefTypeProduct BriefType = "product"
	BriefTypeApp     BriefType = "app"
)

// EnhancedBrief is the structured brief produced by the enhancement stage.
type EnhancedBrief struct {
	BriefType       BriefType `json:"brief_type"`
	Product         Object    `json:"product"`
	Goal            Object    `json:"goal"`
	TargetAudience  Object    `json:"target_audience"`
	USP             string    `json:"usp"`
	Offer           Object    `json:"offer"`
	Placements      []Object  `json:"placements"`
	VisualDirection Object    `json:"visual_direction"`
	MustHaves       []string  `json:"must_haves"`
	MustAvoid       []string  `json:"must_avoid"`
	CTAIntent       string    `json:"cta_intent"`
	References      []string  `json:"references"`
	Assumptions     []string  `json:"assumptions"`
	Questions       []string  `json:"questions"`
}

// DecodeEnhancedBrief maps a generic model object onto the brief. Fields of
// the wrong shape are left empty so the completeness check rejects them.
func DecodeEnhancedBrief(obj Object) EnhancedBrief {
	b := EnhancedBrief{
		Product:         objectField(obj["product"]),
		Goal:            objectField(obj["goal"]),
		TargetAudience:  objectField(obj["target_audience"]),
		USP:             obj.Text("usp"),
		Offer:           objectField(obj["offer"]),
		Placements:      objectList(obj["placements"], "platform"),
		VisualDirection: objectField(obj["visual_direction"]),
		MustHaves:       stringList(obj["must_haves"]),
		MustAvoid:       stringList(obj["must_avoid"]),
		CTAIntent:       obj.Text("cta_intent"),
		References:      stringList(obj["references"]),
		Assumptions:     stringList(obj["assumptions"]),
		Questions:       stringList(obj["questions"]),
	}
	switch BriefType(strings.ToLower(obj.Text("brief_type"))) {
	case BriefTypeApp:
		b.BriefType = BriefTypeApp
	case BriefTypeProduct:
		b.BriefType = BriefTypeProduct
	}
	return b
}

// CriticalFieldsEmpty lists the critical fields that are empty, in a stable order.
func (b *EnhancedBrief) CriticalFieldsEmpty() []string {
	var empty []string
	if strings.TrimSpace(b.USP) == "" {
		empty = append(empty, "usp")
	}
	if len(b.Product) == 0 {
		empty = append(empty, "product")
	}
	if len(b.Goal) == 0 {
		empty = append(empty, "goal")
	}
	if len(b.TargetAudience) == 0 {
		empty = append(empty, "target_audience")
	}
	if strings.TrimSpace(b.CTAIntent) == "" {
		empty = append(empty, "cta_intent")
	}
	if len(b.VisualDirection) == 0 {
		empty = append(empty, "visual_direction")
	}
	return empty
}

// ApplyDefaults fills the optional fields of an accepted brief.
func (b *EnhancedBrief) ApplyDefaults() {
	if b.BriefType == "" {
		b.BriefType = BriefTypeProduct
	}
	if b.Offer == nil {
		b.Offer = Object{}
	}
	if b.Placements == nil {
		b.Placements = []Object{}
	}
	for _, list := range []*[]string{&b.MustHaves, &b.MustAvoid, &b.References, &b.Assumptions, &b.Questions} {
		if *list == nil {
			*list = []string{}
		}
	}
}

// Clone returns a deep copy.
func (b *EnhancedBrief) Clone() *EnhancedBrief {
	if b == nil {
		return nil
	}
	out := *b
	out.Product = b.Product.Clone()
	out.Goal = b.Goal.Clone()
	out.TargetAudience = b.TargetAudience.Clone()
	out.Offer = b.Offer.Clone()
	out.VisualDirection = b.VisualDirection.Clone()
	if b.Placements != nil {
		out.Placements = make([]Object, len(b.Placements))
		for i, p := range b.Placements {
			out.Placements[i] = p.Clone()
		}
	}
	out.MustHaves = cloneStrings(b.MustHaves)
	out.MustAvoid = cloneStrings(b.MustAvoid)
	out.References = cloneStrings(b.References)
	out.Assumptions = cloneStrings(b.Assumptions)
	out.Questions = cloneStrings(b.Questions)
	return &out
}

// JSON renders the brief with two-space indentation for prompt embedding.
func (b *EnhancedBrief) JSON() string {
	raw, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// objectField accepts an object as-is and promotes a non-blank scalar into
// {"description": text}.
func objectField(v Value) Object {
	if obj, ok := v.Obj(); ok {
		if len(obj) == 0 {
			return nil
		}
		return obj
	}
	if t := v.Text(); t != "" {
		return Object{"description": String(t)}
	}
	return nil
}

func objectList(v Value, scalarKey string) []Object {
	items, ok := v.List()
	if !ok {
		if obj, isObj := v.Obj(); isObj && len(obj) > 0 {
			return []Object{obj}
		}
		return nil
	}
	out := make([]Object, 0, len(items))
	for _, item := range items {
		if obj, isObj := item.Obj(); isObj {
			if len(obj) > 0 {
				out = append(out, obj)
			}
			continue
		}
		if t := item.Text(); t != "" {
			out = append(out, Object{scalarKey: String(t)})
		}
	}
	return out
}

func stringList(v Value) []string {
	if v.IsNull() {
		return nil
	}
	return v.Strings()
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
