package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"creativeflow/internal/client"
)

const maxBriefInput = 1 << 20

func readAllLimited(r io.Reader) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxBriefInput+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxBriefInput {
		return nil, fmt.Errorf("brief is larger than %d bytes", maxBriefInput)
	}
	return raw, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printExecution(w io.Writer, exec *client.Execution) error {
	if jsonOutput {
		return printJSON(w, exec)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Execution:\t%s\n", exec.ExecutionID)
	fmt.Fprintf(tw, "Status:\t%s\n", exec.Status)
	if exec.Message != "" {
		fmt.Fprintf(tw, "Message:\t%s\n", exec.Message)
	}
	if exec.ExpiresAt != nil {
		fmt.Fprintf(tw, "Expires:\t%s\n", exec.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	}
	if f := exec.Failure; f != nil {
		fmt.Fprintf(tw, "Failure:\t%s\n", f.Code)
		if f.Message != "" {
			fmt.Fprintf(tw, "\t%s\n", f.Message)
		}
		if f.Reason != "" {
			fmt.Fprintf(tw, "Reason:\t%s\n", f.Reason)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if sp := exec.SuspendPayload; sp != nil {
		fmt.Fprintf(w, "\nWaiting for review (%s)\n", sp.Reason)
		if b := sp.EnhancedBrief; b != nil {
			fmt.Fprintf(w, "  Product:   %s\n", b.Product.Text("name"))
			fmt.Fprintf(w, "  Goal:      %s\n", b.Goal.Text("primary"))
			fmt.Fprintf(w, "  USP:       %s\n", b.USP)
			fmt.Fprintf(w, "  CTA:       %s\n", b.CTAIntent)
		}
		for i, q := range sp.Questions {
			fmt.Fprintf(w, "  Q%d: %s\n", i+1, q)
		}
		fmt.Fprintf(w, "\nNext: creativectl approve %s | reject %s --feedback ...", exec.ExecutionID, exec.ExecutionID)
		if len(sp.Questions) > 0 {
			fmt.Fprintf(w, " | answer %s --text ...", exec.ExecutionID)
		}
		fmt.Fprintln(w)
	}

	if res := exec.Result; res != nil {
		fmt.Fprintf(w, "\nPrompts: %d  Images: %d  Errors: %d\n", len(res.Prompts), len(res.Images), len(res.Errors))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PERSONA\tASPECT\tIMAGE")
		for _, img := range res.Images {
			url := ""
			if img.Image != nil && len(img.Image.Images) > 0 {
				url = img.Image.Images[0].URL
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", img.PersonaID, img.AspectRatio, url)
		}
		for _, e := range res.Errors {
			fmt.Fprintf(tw, "%s\t-\terror: %s\n", e.PersonaID, firstLine(e.Error))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func printPersonas(w io.Writer, personas []client.Persona) error {
	if jsonOutput {
		return printJSON(w, personas)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tFOCUS")
	for _, p := range personas {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, p.Focus)
	}
	return tw.Flush()
}

func firstLine(s string) string {
	if line, _, ok := strings.Cut(s, "\n"); ok {
		return line + " ..."
	}
	return s
}
