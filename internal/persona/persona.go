// Package persona loads YAML persona documents and applies their
// generation parameters to the active session. Persona prose (style,
// system text) is carried opaquely; only the parameter hand-off has
// behavior here.
package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"modelkeep/pkg/types"
)

// Persona is one named configuration of voice and generation settings.
type Persona struct {
	Name   string `yaml:"name"`
	Style  string `yaml:"style,omitempty"`
	System string `yaml:"system,omitempty"`

	Temperature   *float64 `yaml:"temperature,omitempty"`
	TopP          *float64 `yaml:"top_p,omitempty"`
	TopK          *int     `yaml:"top_k,omitempty"`
	RepeatPenalty *float64 `yaml:"repeat_penalty,omitempty"`
}

// Params overlays the persona's explicit settings onto base. Fields the
// persona does not set keep their base values.
func (p Persona) Params(base types.GenParams) types.GenParams {
	if p.Temperature != nil {
		base.Temperature = *p.Temperature
	}
	if p.TopP != nil {
		base.TopP = *p.TopP
	}
	if p.TopK != nil {
		base.TopK = *p.TopK
	}
	if p.RepeatPenalty != nil {
		base.RepeatPenalty = *p.RepeatPenalty
	}
	return base
}

// ParamApplier is the session surface personas need: the hot-swap path.
type ParamApplier interface {
	ApplyParams(types.GenParams) error
}

// Store holds the personas found in one directory.
type Store struct {
	personas map[string]Persona
	defaults types.GenParams
	log      zerolog.Logger
}

// LoadDir reads every *.yaml/*.yml in dir. Unreadable or malformed
// documents are skipped with a warning; they never fail the whole load.
func LoadDir(dir string, defaults types.GenParams, log zerolog.Logger) (*Store, error) {
	s := &Store{
		personas: make(map[string]Persona),
		defaults: defaults,
		log:      log.With().Str("component", "persona").Logger(),
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read persona dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		p := filepath.Join(dir, e.Name())
		b, err := os.ReadFile(p)
		if err != nil {
			s.log.Warn().Err(err).Str("path", p).Msg("persona unreadable, skipped")
			continue
		}
		var per Persona
		if err := yaml.Unmarshal(b, &per); err != nil {
			s.log.Warn().Err(err).Str("path", p).Msg("persona malformed, skipped")
			continue
		}
		if per.Name == "" {
			per.Name = strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		}
		s.personas[per.Name] = per
	}
	return s, nil
}

// Names lists the loaded personas in sorted order.
func (s *Store) Names() []string {
	out := make([]string, 0, len(s.personas))
	for n := range s.personas {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Get returns the persona with the given name.
func (s *Store) Get(name string) (Persona, bool) {
	p, ok := s.personas[name]
	return p, ok
}

// Apply hot-swaps the named persona's parameters onto the session.
// The loaded model is untouched; settings take effect immediately.
func (s *Store) Apply(name string, target ParamApplier) error {
	p, ok := s.personas[name]
	if !ok {
		return fmt.Errorf("unknown persona: %s", name)
	}
	if err := target.ApplyParams(p.Params(s.defaults)); err != nil {
		return err
	}
	s.log.Info().Str("persona", name).Msg("persona parameters applied")
	return nil
}
