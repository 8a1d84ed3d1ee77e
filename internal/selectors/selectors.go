// Package selectors provides challenge detection pattern loading and management.
package selectors

import (
	"embed"
	"fmt"
	"regexp"
	"sync"

	"github.com/rs/zerolog/log"
)

//go:embed selectors.yaml
var defaultSelectorsFS embed.FS

// Selectors contains all challenge detection patterns.
type Selectors struct {
	FormActionPattern string              `yaml:"form_action_pattern"`
	ImageSelectors    []string            `yaml:"image_selectors"`
	FixedFields       []string            `yaml:"fixed_fields"`
	SolutionField     string              `yaml:"solution_field"`
	DefaultEndpoint   string              `yaml:"default_endpoint"`
	Keywords          map[string][]string `yaml:"keywords"`

	formAction *regexp.Regexp
}

// FormAction returns the compiled form action pattern.
func (s *Selectors) FormAction() *regexp.Regexp {
	return s.formAction
}

// compile prepares the pattern for matching. Called once per loaded set.
func (s *Selectors) compile() error {
	re, err := regexp.Compile(s.FormActionPattern)
	if err != nil {
		return fmt.Errorf("invalid form_action_pattern: %w", err)
	}
	s.formAction = re
	return nil
}

// Overrides are configuration values that take precedence over any
// selectors file.
type Overrides struct {
	FormActionPattern string
	DefaultEndpoint   string
}

// With returns a copy of s with the non-empty overrides applied.
func (s *Selectors) With(o Overrides) (*Selectors, error) {
	c := *s
	if o.FormActionPattern != "" {
		c.FormActionPattern = o.FormActionPattern
	}
	if o.DefaultEndpoint != "" {
		c.DefaultEndpoint = o.DefaultEndpoint
	}
	if err := c.compile(); err != nil {
		return nil, err
	}
	return &c, nil
}

var (
	instance *Selectors
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Selectors instance.
// Patterns are loaded from the embedded selectors.yaml file.
func Get() *Selectors {
	once.Do(func() {
		instance, loadErr = load()
		if loadErr != nil {
			log.Error().Err(loadErr).Msg("Failed to load selectors, using defaults")
			instance = defaultSelectors()
		}
	})
	return instance
}

// load reads selectors from the embedded YAML file.
func load() (*Selectors, error) {
	data, err := defaultSelectorsFS.ReadFile("selectors.yaml")
	if err != nil {
		return nil, err
	}

	s, err := parseAndValidate(data)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("form_action_pattern", s.FormActionPattern).
		Int("image_selectors", len(s.ImageSelectors)).
		Int("fixed_fields", len(s.FixedFields)).
		Int("keyword_languages", len(s.Keywords)).
		Msg("Selectors loaded")

	return s, nil
}

// defaultSelectors returns hardcoded fallback patterns.
func defaultSelectors() *Selectors {
	s := &Selectors{
		FormActionPattern: `(^|/)errors/validateCaptcha$`,
		ImageSelectors:    []string{"div.a-row.a-text-center img"},
		FixedFields:       []string{"amzn", "amzn-r"},
		SolutionField:     "field-keywords",
		DefaultEndpoint:   "/errors/validateCaptcha",
		Keywords: map[string][]string{
			"en": {"characters", "type"},
		},
	}
	_ = s.compile()
	return s
}
