package inspect

import (
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Verdict is a classifier's opinion about a candidate challenge form.
type Verdict int

const (
	// VerdictUnknown means the classifier cannot judge the text.
	VerdictUnknown Verdict = iota
	// VerdictChallenge means the text reads like a challenge prompt.
	VerdictChallenge
	// VerdictNotChallenge means the text does not read like a challenge prompt.
	VerdictNotChallenge
)

// Classifier judges whether the text of a matched form is a challenge prompt.
// It is a secondary check; forms are always matched by action first.
type Classifier interface {
	Classify(text string) Verdict
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(text string) Verdict

// Classify calls f(text).
func (f ClassifierFunc) Classify(text string) Verdict { return f(text) }

// KeywordClassifier looks for per-language keywords in the form text.
type KeywordClassifier struct {
	lang     language.Tag
	keywords []string
}

// NewKeywordClassifier selects the keyword list that best matches locale.
// locale accepts POSIX ("en_US.UTF-8") and BCP 47 ("en-US") spellings; an
// empty locale means English. When no list matches, the classifier returns
// VerdictUnknown for every input.
func NewKeywordClassifier(locale string, table map[string][]string) *KeywordClassifier {
	c := &KeywordClassifier{}

	if len(table) == 0 {
		return c
	}

	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tags := make([]language.Tag, 0, len(keys))
	byTag := make([]string, 0, len(keys))
	for _, k := range keys {
		tag, err := language.Parse(k)
		if err != nil {
			log.Warn().Str("language", k).Err(err).Msg("Ignoring keyword list with invalid language tag")
			continue
		}
		tags = append(tags, tag)
		byTag = append(byTag, k)
	}
	if len(tags) == 0 {
		return c
	}

	want, err := language.Parse(normalizeLocale(locale))
	if err != nil {
		log.Warn().Str("locale", locale).Msg("CAPTCHA keywords have not been set for this locale")
		return c
	}

	_, idx, conf := language.NewMatcher(tags).Match(want)
	if conf == language.No {
		log.Warn().Str("locale", locale).Msg("CAPTCHA keywords have not been set for this locale")
		return c
	}

	c.lang = tags[idx]
	for _, kw := range table[byTag[idx]] {
		c.keywords = append(c.keywords, cases.Fold().String(kw))
	}
	return c
}

// Language returns the language whose keywords are in use.
func (c *KeywordClassifier) Language() language.Tag {
	return c.lang
}

// Classify implements Classifier.
func (c *KeywordClassifier) Classify(text string) Verdict {
	if len(c.keywords) == 0 {
		return VerdictUnknown
	}
	// Casers are stateful, so each call folds with its own.
	folded := cases.Fold().String(text)
	for _, kw := range c.keywords {
		if strings.Contains(folded, kw) {
			return VerdictChallenge
		}
	}
	return VerdictNotChallenge
}

// normalizeLocale turns a POSIX locale name into a BCP 47 tag string.
func normalizeLocale(locale string) string {
	locale = strings.TrimSpace(locale)
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	if locale == "" || locale == "C" || locale == "POSIX" {
		return "en"
	}
	return strings.ReplaceAll(locale, "_", "-")
}
