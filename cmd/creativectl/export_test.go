package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creativeflow/internal/client"
	"creativeflow/internal/domain"
)

type mapDownloader map[string]string

func (m mapDownloader) Download(_ context.Context, rawURL string) ([]byte, string, error) {
	body, ok := m[rawURL]
	if !ok {
		return nil, "", errors.New("http 404")
	}
	return []byte(body), "image/png", nil
}

func imageFor(url string) *domain.ImageResult {
	return &domain.ImageResult{Images: []domain.GeneratedImage{{URL: url}}}
}

func TestBuildBundleLaysOutFiles(t *testing.T) {
	exec := &client.Execution{
		ExecutionID: "e1",
		Status:      domain.ExecutionStatusCompleted,
		Result: &domain.FinalResult{
			EnhancedBrief: &domain.EnhancedBrief{USP: "fast"},
			Prompts: []domain.PersonaPrompt{
				{PersonaID: "bold", Prompt: &domain.CreativePrompt{}},
				{PersonaID: "soft/warm", Prompt: &domain.CreativePrompt{}},
			},
			Images: []domain.PersonaImage{
				{PersonaID: "bold", Image: imageFor("http://img/bold.png")},
				{PersonaID: "soft/warm", Image: imageFor("http://img/missing.png")},
			},
		},
	}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	entries, manifest, err := buildBundle(context.Background(), mapDownloader{"http://img/bold.png": "png-bytes"}, exec, now)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{
		"brief.json",
		"prompts/bold.json",
		"prompts/soft_warm.json",
		"images/bold-1.png",
		"manifest.json",
	}, names)

	require.Len(t, manifest.DownloadErrors, 1)
	assert.Equal(t, "soft/warm", manifest.DownloadErrors[0].PersonaID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(entries[len(entries)-1].Data, &decoded))
	assert.Equal(t, "e1", decoded["execution_id"])
}

func TestImageExtFallbacks(t *testing.T) {
	assert.Equal(t, ".jpg", imageExt(domain.GeneratedImage{ContentType: "image/jpeg"}, ""))
	assert.Equal(t, ".png", imageExt(domain.GeneratedImage{}, "image/png; charset=binary"))
	assert.Equal(t, ".webp", imageExt(domain.GeneratedImage{URL: "https://cdn/x/file.webp?sig=1"}, "application/octet-stream"))
	assert.Equal(t, ".bin", imageExt(domain.GeneratedImage{URL: "https://cdn/x/file"}, ""))
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "a_b", safeName("a/b"))
	assert.Equal(t, "persona", safeName(""))
	assert.False(t, strings.Contains(safeName("../etc"), "/"))
}
