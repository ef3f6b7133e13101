// Package persona holds the catalog of creative personas that the fan-out
// stage runs in parallel.
package persona

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed personas.yaml
var defaultCatalog []byte

// DefaultActive is the persona set used when none is configured.
var DefaultActive = []string{"creative-generator-performance", "creative-generator-artdirector"}

const sharedRules = `
## Task
Given the brief, generate EXACTLY ONE JSON object.
This JSON object IS the image prompt (no wrapper, no meta).

## Output rules (strict)
- Output ONLY valid JSON. No markdown, no code fences, no explanations.
- Use double quotes for all keys/strings. No trailing commas.

## Ad / brand-safety rules
- Must be appropriate for product advertising (brand-safe, platform-friendly).
- No sexual content, nudity, violence, hate, or illegal content.
- No personal data. If a person is needed, keep them generic and non-identifiable.
- By default, do NOT generate readable text, logos, or watermarks inside the image.
  If branding is required, use safe phrasing like "logo placeholder (no readable text)".

## Prompt JSON content (required keys)
- product
- composition (include an aspect_ratio such as "4:5")
- scene
- lighting
- camera
- style
- subject (optional, null when no person is needed)
- rules (array of strings)
`

// Persona is one creative point of view.
type Persona struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	Focus        string `yaml:"focus" json:"focus"`
	Instructions string `yaml:"instructions" json:"-"`
}

// SystemPrompt combines the persona instructions with the shared output rules.
func (p Persona) SystemPrompt() string {
	return strings.TrimSpace(p.Instructions) + "\n" + sharedRules
}

type catalogFile struct {
	Personas []Persona `yaml:"personas"`
}

// Registry is the concurrency-safe persona catalog plus the active selection.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]Persona
	order  []string
	active []string
	wanted []string
	logger zerolog.Logger
}

// NewRegistry loads the embedded catalog and activates the given ids, or
// DefaultActive when none are given.
func NewRegistry(active []string, logger zerolog.Logger) (*Registry, error) {
	if len(active) == 0 {
		active = DefaultActive
	}
	r := &Registry{wanted: append([]string(nil), active...), logger: logger}
	if err := r.load(defaultCatalog); err != nil {
		return nil, fmt.Errorf("embedded personas: %w", err)
	}
	return r, nil
}

// LoadFile replaces the catalog with a YAML file.
func (r *Registry) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read personas file: %w", err)
	}
	if err := r.load(raw); err != nil {
		return fmt.Errorf("personas file %s: %w", path, err)
	}
	return nil
}

func (r *Registry) load(raw []byte) error {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	if len(file.Personas) == 0 {
		return errors.New("catalog has no personas")
	}
	byID := make(map[string]Persona, len(file.Personas))
	order := make([]string, 0, len(file.Personas))
	for _, p := range file.Personas {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return errors.New("persona without id")
		}
		if _, dup := byID[p.ID]; dup {
			return fmt.Errorf("duplicate persona %q", p.ID)
		}
		if strings.TrimSpace(p.Instructions) == "" {
			return fmt.Errorf("persona %q has no instructions", p.ID)
		}
		if strings.TrimSpace(p.Name) == "" {
			p.Name = displayName(p.ID)
		}
		byID[p.ID] = p
		order = append(order, p.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	active := make([]string, 0, len(r.wanted))
	for _, id := range r.wanted {
		if _, ok := byID[id]; !ok {
			r.logger.Warn().Str("persona_id", id).Msg("configured persona not in catalog, skipping")
			continue
		}
		active = append(active, id)
	}
	if len(active) == 0 {
		return errors.New("no configured persona exists in the catalog")
	}
	r.byID = byID
	r.order = order
	r.active = active
	return nil
}

// Get looks up any catalog persona.
func (r *Registry) Get(id string) (Persona, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// All returns the full catalog in file order.
func (r *Registry) All() []Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Persona, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Active returns the active personas in configured order.
func (r *Registry) Active() []Persona {
	return r.Select(nil)
}

// Select narrows the active set to the requested ids, keeping active order.
// Unknown or inactive ids are ignored. An empty request selects every active persona.
func (r *Registry) Select(requested []string) []Persona {
	want := make(map[string]struct{}, len(requested))
	for _, id := range requested {
		want[strings.TrimSpace(id)] = struct{}{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Persona, 0, len(r.active))
	for _, id := range r.active {
		if len(want) > 0 {
			if _, ok := want[id]; !ok {
				continue
			}
		}
		out = append(out, r.byID[id])
	}
	return out
}

// Watch reloads path whenever it changes until ctx is done. A bad edit is
// logged and the previous catalog stays in place.
func (r *Registry) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("resolve personas file: %w", err)
	}
	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := r.LoadFile(abs); err != nil {
					r.logger.Error().Err(err).Str("path", abs).Msg("persona reload failed")
					continue
				}
				r.logger.Info().Str("path", abs).Int("active", len(r.Active())).Msg("personas reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn().Err(err).Msg("persona watcher error")
			}
		}
	}()
	return nil
}

// displayName turns "creative-generator-minimal-luxury" into "Minimal Luxury".
func displayName(id string) string {
	name := strings.TrimPrefix(id, "creative-generator-")
	name = strings.ReplaceAll(name, "-", " ")
	return cases.Title(language.English).String(name)
}
