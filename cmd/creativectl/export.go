package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"creativeflow/internal/client"
	"creativeflow/internal/domain"
	"creativeflow/pkg/zip"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <execution-id>",
	Short: "Bundle a completed run's prompts and images into a zip",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Zip file to write (default <execution-id>.zip)")
}

type exportManifest struct {
	ExecutionID    string               `json:"execution_id"`
	ExportedAt     time.Time            `json:"exported_at"`
	Result         *domain.FinalResult  `json:"result"`
	Files          []string             `json:"files"`
	DownloadErrors []domain.BranchError `json:"download_errors,omitempty"`
}

type downloader interface {
	Download(ctx context.Context, rawURL string) ([]byte, string, error)
}

func runExport(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	exec, err := c.Status(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if exec.Status != domain.ExecutionStatusCompleted || exec.Result == nil {
		return fmt.Errorf("execution %s is %s, only completed runs can be exported", exec.ExecutionID, exec.Status)
	}

	entries, manifest, err := buildBundle(cmd.Context(), c, exec, time.Now().UTC())
	if err != nil {
		return err
	}
	out := exportOutput
	if out == "" {
		out = exec.ExecutionID + ".zip"
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := zip.Write(f, entries); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	for _, de := range manifest.DownloadErrors {
		log.Warn().Str("persona_id", de.PersonaID).Str("error", de.Error).Msg("image not exported")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d files)\n", out, len(entries))
	return nil
}

// buildBundle lays out brief.json, one prompt file per persona, every
// downloadable image and a manifest. Images that fail to download are
// listed in the manifest instead of failing the export.
func buildBundle(ctx context.Context, dl downloader, exec *client.Execution, now time.Time) ([]zip.Entry, *exportManifest, error) {
	res := exec.Result
	manifest := &exportManifest{ExecutionID: exec.ExecutionID, ExportedAt: now, Result: res}
	var entries []zip.Entry
	add := func(name string, data []byte) {
		entries = append(entries, zip.Entry{Name: name, Data: data, Modified: now})
		manifest.Files = append(manifest.Files, name)
	}

	if res.EnhancedBrief != nil {
		raw, err := json.MarshalIndent(res.EnhancedBrief, "", "  ")
		if err != nil {
			return nil, nil, fmt.Errorf("encode brief: %w", err)
		}
		add("brief.json", raw)
	}
	for _, p := range res.Prompts {
		raw, err := json.MarshalIndent(p.Prompt, "", "  ")
		if err != nil {
			return nil, nil, fmt.Errorf("encode prompt %s: %w", p.PersonaID, err)
		}
		add("prompts/"+safeName(p.PersonaID)+".json", raw)
	}
	for _, img := range res.Images {
		if img.Image == nil {
			continue
		}
		for i, gen := range img.Image.Images {
			if gen.URL == "" {
				continue
			}
			data, contentType, err := dl.Download(ctx, gen.URL)
			if err != nil {
				manifest.DownloadErrors = append(manifest.DownloadErrors, domain.BranchError{PersonaID: img.PersonaID, Error: err.Error()})
				continue
			}
			add(fmt.Sprintf("images/%s-%d%s", safeName(img.PersonaID), i+1, imageExt(gen, contentType)), data)
		}
	}

	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode manifest: %w", err)
	}
	entries = append(entries, zip.Entry{Name: "manifest.json", Data: raw, Modified: now})
	return entries, manifest, nil
}

func imageExt(gen domain.GeneratedImage, contentType string) string {
	for _, ct := range []string{gen.ContentType, contentType} {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			continue
		}
		switch mt {
		case "image/png":
			return ".png"
		case "image/jpeg":
			return ".jpg"
		case "image/webp":
			return ".webp"
		}
	}
	if gen.FileName != "" {
		if ext := path.Ext(gen.FileName); ext != "" {
			return ext
		}
	}
	if u, err := url.Parse(gen.URL); err == nil {
		if ext := path.Ext(u.Path); ext != "" {
			return ext
		}
	}
	return ".bin"
}

func safeName(id string) string {
	id = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
	if id == "" {
		return "persona"
	}
	return id
}
