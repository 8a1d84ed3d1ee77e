// Package inspect decides whether a fetched page is a CAPTCHA challenge and,
// if so, describes the challenge image and the form that must be resubmitted.
package inspect

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/captchagate/internal/security"
	"github.com/Rorqualx/captchagate/internal/selectors"
	"github.com/Rorqualx/captchagate/internal/types"
)

// Policy selects how the submittable fields of a challenge form are chosen.
type Policy int

const (
	// PolicyFixedNames submits a configured list of hidden fields plus a
	// configured free-text field.
	PolicyFixedNames Policy = iota
	// PolicyHeuristic submits every named control and places the answer in
	// the form's single visible text input.
	PolicyHeuristic
)

// String returns the configuration name of the policy.
func (p Policy) String() string {
	if p == PolicyHeuristic {
		return "heuristic"
	}
	return "fixed"
}

// ParsePolicy parses a policy name as used in configuration.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fixed", "fixednames", "fixed_names":
		return PolicyFixedNames, nil
	case "heuristic", "heuristicsinglefield", "heuristic_single_field":
		return PolicyHeuristic, nil
	default:
		return PolicyFixedNames, fmt.Errorf("unknown field extraction policy %q", s)
	}
}

// PatternSource supplies the current challenge patterns.
// *selectors.Manager implements it.
type PatternSource interface {
	Get() *selectors.Selectors
}

// Challenge describes a detected challenge. It only lives for one
// interception cycle.
type Challenge struct {
	PageURL  *url.URL
	ImageURL *url.URL
	Form     Form
	Solution FieldLookup

	// DefaultEndpoint is the submission target used when Form.Action is empty.
	DefaultEndpoint string

	policy      Policy
	fixedFields []string
}

// Options configures an Inspector.
type Options struct {
	Policy     Policy
	Classifier Classifier // Optional secondary check
}

// Inspector finds challenge forms in page bodies. It holds no per-page state
// and is safe for concurrent use.
type Inspector struct {
	patterns   PatternSource
	policy     Policy
	classifier Classifier
}

// New creates an Inspector reading its patterns from src.
func New(src PatternSource, opts Options) *Inspector {
	return &Inspector{
		patterns:   src,
		policy:     opts.Policy,
		classifier: opts.Classifier,
	}
}

// Policy returns the field extraction policy in use.
func (i *Inspector) Policy() Policy {
	return i.policy
}

// DetectChallenge returns the challenge on the page, or nil when the page is
// not a challenge. A matching form without an image is logged and treated as
// no challenge.
func (i *Inspector) DetectChallenge(resp *types.Response) *Challenge {
	if resp == nil || resp.URL == nil {
		return nil
	}
	pageURL := security.RedactURL(resp.URL.String())

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		log.Debug().Err(err).Str("url", pageURL).Msg("Response body is not parseable markup")
		return nil
	}

	sel := i.patterns.Get()
	form := findForm(doc, sel.FormAction())
	if form == nil {
		log.Debug().Str("url", pageURL).Msg("No captcha found")
		return nil
	}

	// The prompt usually sits next to the form, not inside it.
	if i.classifier != nil && i.classifier.Classify(doc.Find("body").Text()) == VerdictNotChallenge {
		log.Debug().Str("url", pageURL).Msg("Captcha form matched but text does not mention a challenge")
		return nil
	}

	log.Info().Str("url", pageURL).Msg("Captcha found")

	src := findImage(form, sel.ImageSelectors)
	if src == "" {
		log.Warn().Str("url", pageURL).Msg("Captcha form has no image, ignoring malformed challenge")
		return nil
	}
	ref, err := url.Parse(src)
	if err != nil {
		log.Warn().Err(err).Str("url", pageURL).Msg("Captcha image reference is not a URL, ignoring malformed challenge")
		return nil
	}
	imageURL := resp.URL.ResolveReference(ref)

	log.Debug().Str("image_url", security.RedactURL(imageURL.String())).Msg("Captcha image URL")

	ch := &Challenge{
		PageURL:         resp.URL,
		ImageURL:        imageURL,
		Form:            parseForm(form),
		DefaultEndpoint: sel.DefaultEndpoint,
		policy:          i.policy,
	}

	switch i.policy {
	case PolicyHeuristic:
		ch.Solution = ch.Form.SolutionInput()
	default:
		ch.Solution = Found(sel.SolutionField)
		ch.fixedFields = append([]string(nil), sel.FixedFields...)
	}

	return ch
}

// ExtractFields returns the fields to submit with the answer, in order and
// without the solution field itself.
func (i *Inspector) ExtractFields(ch *Challenge) (Fields, error) {
	solution, err := ch.Solution.Field()
	if err != nil {
		return nil, err
	}

	var fields Fields
	switch ch.policy {
	case PolicyHeuristic:
		for _, in := range ch.Form.Inputs {
			if in.Name == solution || !in.submittable() {
				continue
			}
			fields = append(fields, Field{Name: in.Name, Value: in.Value})
		}
	default:
		for _, name := range ch.fixedFields {
			if name == solution {
				continue
			}
			value, ok := ch.Form.Value(name)
			if !ok {
				log.Debug().Str("field", name).Msg("Fixed captcha field missing from form, omitting it")
				continue
			}
			fields = append(fields, Field{Name: name, Value: value})
		}
	}

	return fields, nil
}

// findForm returns the first form whose action matches re.
func findForm(doc *goquery.Document, re *regexp.Regexp) *goquery.Selection {
	if re == nil {
		return nil
	}
	var match *goquery.Selection
	doc.Find("form").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		action, ok := s.Attr("action")
		if ok && actionMatches(re, strings.TrimSpace(action)) {
			match = s
			return false
		}
		return true
	})
	return match
}

// actionMatches tests the raw action and, for absolute or query-carrying
// actions, its path alone.
func actionMatches(re *regexp.Regexp, action string) bool {
	if action == "" {
		return false
	}
	if re.MatchString(action) {
		return true
	}
	u, err := url.Parse(action)
	if err != nil || u.Path == action {
		return false
	}
	return re.MatchString(u.Path)
}

// findImage returns the src of the challenge image inside form.
func findImage(form *goquery.Selection, imageSelectors []string) string {
	for _, css := range imageSelectors {
		if src := firstSrc(form.Find(css)); src != "" {
			return src
		}
	}
	return firstSrc(form.Find("img"))
}

func firstSrc(s *goquery.Selection) string {
	var src string
	s.EachWithBreak(func(_ int, img *goquery.Selection) bool {
		v, _ := img.Attr("src")
		src = strings.TrimSpace(v)
		return src == ""
	})
	return src
}
