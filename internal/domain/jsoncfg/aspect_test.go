package jsoncfg

import (
	"testing"

	"creativeflow/internal/domain"
)

func promptWithComposition(v domain.Value) *domain.CreativePrompt {
	return &domain.CreativePrompt{Composition: v}
}

func TestResolveAspectRatio(t *testing.T) {
	tests := []struct {
		name   string
		hint   string
		prompt *domain.CreativePrompt
		want   string
	}{
		{name: "supported hint wins", hint: "16:9", prompt: promptWithComposition(domain.ObjectValue(domain.Object{"aspect_ratio": domain.String("4:5")})), want: "16:9"},
		{name: "unsupported hint ignored", hint: "7:3", prompt: promptWithComposition(domain.ObjectValue(domain.Object{"aspect_ratio": domain.String("4:5")})), want: "4:5"},
		{name: "verbose composition text", prompt: promptWithComposition(domain.ObjectValue(domain.Object{"aspect_ratio": domain.String("4:5 vertical crop")})), want: "4:5"},
		{name: "alternate key", prompt: promptWithComposition(domain.ObjectValue(domain.Object{"aspectRatio": domain.String("9:16")})), want: "9:16"},
		{name: "string composition", prompt: promptWithComposition(domain.String("Centered hero shot, 3:2 landscape")), want: "3:2"},
		{name: "unsupported composition ratio", prompt: promptWithComposition(domain.ObjectValue(domain.Object{"aspect_ratio": domain.String("5:7")})), want: DefaultAspectRatio},
		{name: "unusable key falls through", prompt: promptWithComposition(domain.ObjectValue(domain.Object{"aspect_ratio": domain.String("vertical"), "format": domain.String("4:5")})), want: "4:5"},
		{name: "unsupported ratio falls through", prompt: promptWithComposition(domain.ObjectValue(domain.Object{"aspect_ratio": domain.String("7:3 panorama"), "ratio": domain.String("roughly 16:9")})), want: "16:9"},
		{name: "missing composition", prompt: &domain.CreativePrompt{}, want: DefaultAspectRatio},
		{name: "nil prompt", want: DefaultAspectRatio},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveAspectRatio(tt.hint, tt.prompt); got != tt.want {
				t.Fatalf("ResolveAspectRatio() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsAllowedAspectRatio(t *testing.T) {
	for _, r := range AspectRatios() {
		if !IsAllowedAspectRatio(r) {
			t.Fatalf("%s should be allowed", r)
		}
	}
	if IsAllowedAspectRatio("2:1") {
		t.Fatalf("2:1 should not be allowed")
	}
	if len(AspectRatios()) != 10 {
		t.Fatalf("expected 10 ratios, got %d", len(AspectRatios()))
	}
}
