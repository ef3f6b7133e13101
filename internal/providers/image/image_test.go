package image

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"creativeflow/internal/domain"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestValidate(t *testing.T) {
	req, err := Validate(Request{Prompt: "  a bright product shot  "})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if req.AspectRatio != "1:1" {
		t.Fatalf("AspectRatio = %q, want 1:1", req.AspectRatio)
	}
	if req.Prompt != "a bright product shot" {
		t.Fatalf("Prompt not trimmed: %q", req.Prompt)
	}

	if _, err := Validate(Request{Prompt: " short  "}); !errors.Is(err, domain.ErrPromptTooShort) {
		t.Fatalf("expected ErrPromptTooShort, got %v", err)
	}
	if _, err := Validate(Request{Prompt: "long enough prompt", AspectRatio: "2:1"}); !errors.Is(err, domain.ErrInvalidAspectRatio) {
		t.Fatalf("expected ErrInvalidAspectRatio, got %v", err)
	}
}

func TestFalGenerateImage(t *testing.T) {
	var captured falRequest
	var auth, url string
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		url = r.URL.String()
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&captured)
		body := `{"images":[{"url":"https://fal.media/a.png","file_name":"a.png","content_type":"image/png"}],"description":"ok"}`
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(body)), Header: http.Header{}}, nil
	})}
	fal, err := NewFal(FalOptions{APIKey: "fal-key", HTTPClient: client})
	if err != nil {
		t.Fatalf("NewFal returned error: %v", err)
	}
	res, err := fal.GenerateImage(context.Background(), Request{Prompt: "Product: mug. Scene: desk", AspectRatio: "4:5"})
	if err != nil {
		t.Fatalf("GenerateImage returned error: %v", err)
	}
	if url != "https://fal.run/fal-ai/nano-banana-pro" {
		t.Fatalf("url = %s", url)
	}
	if auth != "Key fal-key" {
		t.Fatalf("Authorization = %q", auth)
	}
	if captured.AspectRatio != "4:5" || captured.NumImages != 1 {
		t.Fatalf("unexpected payload %+v", captured)
	}
	if len(res.Images) != 1 || res.Images[0].URL != "https://fal.media/a.png" || res.Description != "ok" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestFalRejectsBeforeDispatch(t *testing.T) {
	called := false
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		called = true
		return nil, errors.New("should not be called")
	})}
	fal, _ := NewFal(FalOptions{APIKey: "fal-key", HTTPClient: client})
	if _, err := fal.GenerateImage(context.Background(), Request{Prompt: "tiny"}); !errors.Is(err, domain.ErrPromptTooShort) {
		t.Fatalf("expected ErrPromptTooShort, got %v", err)
	}
	if called {
		t.Fatalf("backend must not be called for invalid input")
	}
}

func TestFalStatusError(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusUnprocessableEntity, Body: io.NopCloser(strings.NewReader("bad prompt")), Header: http.Header{}}, nil
	})}
	fal, _ := NewFal(FalOptions{APIKey: "fal-key", HTTPClient: client})
	_, err := fal.GenerateImage(context.Background(), Request{Prompt: "a long enough prompt"})
	if !errors.Is(err, domain.ErrProviderFailure) || !strings.Contains(err.Error(), "bad prompt") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestNanoBananaDeterministicURL(t *testing.T) {
	n := NewNanoBanana(NanoBananaOptions{Delay: -1})
	res, err := n.GenerateImage(context.Background(), Request{Prompt: "a long enough prompt", AspectRatio: "9:16", RequestID: "exec-1/performance"})
	if err != nil {
		t.Fatalf("GenerateImage returned error: %v", err)
	}
	img := res.Images[0]
	if img.URL != "https://cdn.example.com/nanobanana/exec-1/performance/1.png" {
		t.Fatalf("URL = %s", img.URL)
	}
	if img.Width != 576 || img.Height != 1024 {
		t.Fatalf("dimensions = %dx%d", img.Width, img.Height)
	}
}

func TestNanoBananaHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n := NewNanoBanana(NanoBananaOptions{})
	if _, err := n.GenerateImage(ctx, Request{Prompt: "a long enough prompt"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	p := domain.DecodeCreativePrompt(domain.Object{
		"product": domain.ObjectValue(domain.Object{
			"category": domain.String("cold brew"),
			"color":    domain.String("amber"),
		}),
		"composition": domain.ObjectValue(domain.Object{"framing": domain.String("close-up"), "aspect_ratio": domain.String("4:5")}),
		"scene":       domain.String("sunlit kitchen"),
		"lighting":    domain.ObjectValue(domain.Object{}),
		"style":       domain.String("editorial"),
		"subject":     domain.Null(),
	})
	got := BuildPrompt(p)
	want := "Product: cold brew, amber. Composition: close-up, 4:5. Scene: sunlit kitchen. Style: editorial"
	if got != want {
		t.Fatalf("BuildPrompt() =\n%q\nwant\n%q", got, want)
	}
}

func TestBuildPromptFallsBackToJSON(t *testing.T) {
	p := domain.DecodeCreativePrompt(domain.Object{"scene": domain.ObjectValue(domain.Object{})})
	got := BuildPrompt(p)
	if !strings.HasPrefix(got, "{") {
		t.Fatalf("expected JSON fallback, got %q", got)
	}
}
