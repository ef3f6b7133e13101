package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"creativeflow/internal/domain"
	"creativeflow/internal/providers/prompt"
)

const enhanceInstruction = `You are an Ad Brief Enhancer. Your task is to transform a messy, incomplete brief into a structured, production-ready JSON.

CRITICAL REQUIREMENTS:
1. Translate all content to English if needed
2. Fill EVERY field with meaningful, specific values based on the brief content
3. Empty objects {} or empty strings "" are REJECTED
4. Extract and structure information from the brief - don't use generic examples
5. Infer reasonable values ONLY when information is truly missing
6. Return ONLY valid JSON - no markdown, no code fences, no explanations

REQUIRED OUTPUT STRUCTURE (analyze the brief and fill each field):
{
  "brief_type": "product" or "app" (determine from brief content),
  "product": { at least 3-4 properties such as category, variant, hero_feature, material, color },
  "goal": { at least 2 properties such as primary, secondary },
  "target_audience": { at least 2-3 properties such as demographics, psychographics, behaviors },
  "usp": "the unique selling point, extracted or inferred",
  "offer": {} or { "type": "...", "value": "..." } if mentioned in the brief,
  "placements": [ { "platform": "...", "aspect_ratio": "..." } ] (default to Instagram Feed 4:5 and Instagram Story/Reel 9:16),
  "visual_direction": { at least 4-5 properties such as mood, palette, lighting, composition, props },
  "must_haves": [ at least 2-3 items ],
  "must_avoid": [ at least 2-3 items, including brand-safety concerns ],
  "cta_intent": "discover" or "purchase" or "learn",
  "references": [ at least 2-3 references ],
  "assumptions": [ at least 2-3 things you assumed because the brief did not say ],
  "questions": [ only questions that truly block creative generation, short and specific ]
}

Return ONLY the JSON object, starting with { and ending with }.`

// buildEnhancePrompt renders the enhancement instruction for a raw brief and
// every piece of reviewer feedback collected so far.
func buildEnhancePrompt(brief string, feedback []string, clarifications string) string {
	var sb strings.Builder
	sb.WriteString(enhanceInstruction)
	var notes []string
	for _, f := range feedback {
		if f = strings.TrimSpace(f); f != "" {
			notes = append(notes, f)
		}
	}
	if len(notes) > 0 {
		sb.WriteString("\n\nA reviewer rejected the previous version. Reviewer feedback to apply:\n")
		for i, f := range notes {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, f)
		}
	}
	if c := strings.TrimSpace(clarifications); c != "" {
		sb.WriteString("\n\nThe reviewer answered the open questions:\n")
		sb.WriteString(c)
		sb.WriteString("\n")
	}
	sb.WriteString("\n\n")
	sb.WriteString(prompt.BriefMarker)
	sb.WriteString("\n")
	sb.WriteString(strings.TrimSpace(brief))
	return sb.String()
}

const personaRequirements = `CRITICAL REQUIREMENTS:
1. Your response will be REJECTED if ANY field is an empty object {} or empty string ""
2. EVERY object field MUST contain at least 2-3 properties with non-empty string values
3. EVERY string property MUST be descriptive and specific (minimum 3-5 words)
4. Use the brief information above to populate fields
5. If brief information is missing, infer reasonable, detailed values based on the product type and context

REQUIRED JSON STRUCTURE:
{
  "product": { category, variant, hero_feature, material, color, origin ... },
  "composition": { framing, product_placement, negative_space, aspect_ratio, angle },
  "scene": { background, props, location, atmosphere },
  "lighting": { style, temperature, direction, intensity, shadows },
  "camera": { lens, dof, focal_length, perspective },
  "style": { vibe, palette, aesthetic, mood },
  "subject": null or { type, pose, clothing } (only if the brief mentions people),
  "rules": [ must-haves from the brief plus brand-safety rules, at least 2-3 ]
}

Return ONLY the JSON object. No markdown, no code fences, no explanations.`

// buildPersonaPrompt renders the shared part of every persona instruction.
func buildPersonaPrompt(brief *domain.EnhancedBrief, clarifications string) string {
	var sb strings.Builder
	sb.WriteString("You are generating an image prompt JSON for an Instagram/Facebook product ad.\n\nEnhanced brief JSON:\n")
	sb.WriteString(brief.JSON())

	if c := strings.TrimSpace(clarifications); c != "" {
		sb.WriteString("\n\nUser clarifications (free text):\n")
		sb.WriteString(c)
	}

	if strings.TrimSpace(brief.USP) == "" && len(brief.Product) == 0 {
		sb.WriteString("\n\nWARNING: The enhanced brief appears to be empty or incomplete. Use your best judgment to infer the product details from the brief context and generate a complete, detailed prompt JSON.")
	}

	if len(brief.Product) > 0 {
		fmt.Fprintf(&sb, "\n\nProduct information from brief:\n%s\nUse this to populate the \"product\" field with detailed properties like: category, variant, hero_feature, material, color, origin.", indent(brief.Product))
	} else {
		fmt.Fprintf(&sb, "\n\nProduct: Infer product details from the brief context (%s).", coalesce(brief.USP, "brief content"))
	}

	if len(brief.VisualDirection) > 0 {
		fmt.Fprintf(&sb, "\n\nVisual direction from brief:\n%s\nUse this to inform composition, scene, lighting, camera, and style fields.", indent(brief.VisualDirection))
	} else {
		sb.WriteString("\n\nVisual direction: Create appropriate visual direction based on the product type and target audience.")
	}

	if len(brief.TargetAudience) > 0 {
		fmt.Fprintf(&sb, "\n\nTarget audience from brief:\n%s\nUse this to inform style, mood, and scene choices.", indent(brief.TargetAudience))
	}

	if ratios := placementRatios(brief.Placements); len(ratios) > 0 {
		fmt.Fprintf(&sb, "\n\nPlacements: %s - optimize composition for these aspect ratios.", strings.Join(ratios, ", "))
	}
	if len(brief.MustHaves) > 0 {
		fmt.Fprintf(&sb, "\n\nMust haves: %s - ensure these are reflected in your prompt.", strings.Join(brief.MustHaves, ", "))
	}
	if len(brief.MustAvoid) > 0 {
		fmt.Fprintf(&sb, "\n\nMust avoid: %s - ensure these are NOT in your prompt.", strings.Join(brief.MustAvoid, ", "))
	}

	sb.WriteString("\n\n")
	sb.WriteString(personaRequirements)
	return sb.String()
}

// correctionNote is appended on a persona retry after a prompt came back with
// too many empty sections.
func correctionNote(emptyFields []string) string {
	if len(emptyFields) == 0 {
		return ""
	}
	return fmt.Sprintf("\n\nYour previous answer left these fields empty: %s. Fill every one of them with specific, non-empty values.", strings.Join(emptyFields, ", "))
}

func placementRatios(placements []domain.Object) []string {
	var out []string
	for _, p := range placements {
		for _, key := range []string{"format/aspect_ratio", "format", "aspect_ratio"} {
			if t := p.Text(key); t != "" {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

func indent(obj domain.Object) string {
	raw, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
