package workflow

import (
	"creativeflow/internal/domain"
)

// Aggregate merges branch results into the final result. It fails only when
// no persona produced a prompt, reporting the first branch error.
func Aggregate(brief *domain.EnhancedBrief, clarifications string, results []domain.BranchResult) (*domain.FinalResult, error) {
	out := &domain.FinalResult{
		EnhancedBrief:  brief,
		Clarifications: clarifications,
		Prompts:        []domain.PersonaPrompt{},
		Images:         []domain.PersonaImage{},
		Errors:         []domain.BranchError{},
	}
	for _, r := range results {
		switch r.Outcome() {
		case domain.BranchSuccess:
			out.Prompts = append(out.Prompts, domain.PersonaPrompt{PersonaID: r.PersonaID, Prompt: r.Prompt})
			out.Images = append(out.Images, domain.PersonaImage{PersonaID: r.PersonaID, AspectRatio: r.AspectRatio, Image: r.Image})
		case domain.BranchPartial:
			out.Prompts = append(out.Prompts, domain.PersonaPrompt{PersonaID: r.PersonaID, Prompt: r.Prompt})
			out.Errors = append(out.Errors, domain.BranchError{PersonaID: r.PersonaID, Error: "image generation failed: " + coalesce(r.ImageError, "no image returned")})
		default:
			out.Errors = append(out.Errors, domain.BranchError{PersonaID: r.PersonaID, Error: coalesce(r.Error, "unknown error")})
		}
	}
	if len(out.Prompts) == 0 {
		first := "no personas ran"
		if len(out.Errors) > 0 {
			first = out.Errors[0].Error
		}
		return nil, &domain.AllPersonasFailedError{First: first}
	}
	return out, nil
}
