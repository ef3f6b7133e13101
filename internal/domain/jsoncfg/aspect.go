package jsoncfg

import (
	"strings"

	"creativeflow/internal/domain"
)

// DefaultAspectRatio is used when neither the hint nor the prompt names a supported ratio.
const DefaultAspectRatio = "1:1"

var aspectRatios = []string{"21:9", "16:9", "3:2", "4:3", "5:4", "1:1", "4:5", "3:4", "2:3", "9:16"}

var allowedAspectRatios = func() map[string]struct{} {
	m := make(map[string]struct{}, len(aspectRatios))
	for _, r := range aspectRatios {
		m[r] = struct{}{}
	}
	return m
}()

// AspectRatios lists the ratios the image backend accepts.
func AspectRatios() []string {
	return append([]string(nil), aspectRatios...)
}

// IsAllowedAspectRatio reports whether ratio is one of the supported values.
func IsAllowedAspectRatio(ratio string) bool {
	_, ok := allowedAspectRatios[strings.TrimSpace(ratio)]
	return ok
}

// ResolveAspectRatio picks the ratio for an image call: a supported hint
// wins, then the first composition key declaring a supported ratio (exact
// or embedded in verbose text), then DefaultAspectRatio.
func ResolveAspectRatio(hint string, prompt *domain.CreativePrompt) string {
	if hint = strings.TrimSpace(hint); IsAllowedAspectRatio(hint) {
		return hint
	}
	if prompt == nil {
		return DefaultAspectRatio
	}
	for _, declared := range prompt.AspectRatioCandidates() {
		if IsAllowedAspectRatio(declared) {
			return strings.TrimSpace(declared)
		}
		for _, found := range domain.FindAspectRatios(declared) {
			if IsAllowedAspectRatio(found) {
				return found
			}
		}
	}
	return DefaultAspectRatio
}
