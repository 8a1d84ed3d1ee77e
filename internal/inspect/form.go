package inspect

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTML element and input type names used for form field detection.
const (
	htmlElementInput    = "input"
	htmlElementSelect   = "select"
	htmlElementTextarea = "textarea"

	inputTypeHidden = "hidden"
)

// nonTextInputTypes are input types that never take typed text.
var nonTextInputTypes = map[string]bool{
	inputTypeHidden: true,
	"submit":        true,
	"button":        true,
	"image":         true,
	"reset":         true,
	"checkbox":      true,
	"radio":         true,
	"file":          true,
}

// buttonInputTypes are never submitted as form data.
var buttonInputTypes = map[string]bool{
	"submit": true,
	"button": true,
	"image":  true,
	"reset":  true,
	"file":   true,
}

// Form is the challenge form as found in the page.
type Form struct {
	Action string
	Method string
	Inputs []Input
}

// Input is one form control.
type Input struct {
	Name     string
	Type     string
	Value    string
	Checked  bool
	Disabled bool
}

// visibleText reports whether the control accepts free text from a user.
// A select only offers fixed choices.
func (in Input) visibleText() bool {
	return in.Type != htmlElementSelect && !nonTextInputTypes[in.Type]
}

// submittable reports whether the control contributes to the form data.
func (in Input) submittable() bool {
	if in.Name == "" || in.Disabled || buttonInputTypes[in.Type] {
		return false
	}
	if in.Type == "checkbox" || in.Type == "radio" {
		return in.Checked
	}
	return true
}

// Value returns the value of the first control called name.
func (f Form) Value(name string) (string, bool) {
	for _, in := range f.Inputs {
		if in.Name == name {
			return in.Value, true
		}
	}
	return "", false
}

// SolutionInput finds the single named free-text control of the form.
func (f Form) SolutionInput() FieldLookup {
	var found []string
	for _, in := range f.Inputs {
		if in.Name == "" || in.Disabled || !in.visibleText() {
			continue
		}
		found = append(found, in.Name)
	}
	switch len(found) {
	case 0:
		return Absent()
	case 1:
		return Found(found[0])
	default:
		return Ambiguous()
	}
}

// parseForm reads the attributes and controls of a form selection.
func parseForm(s *goquery.Selection) Form {
	action, _ := s.Attr("action")
	method, _ := s.Attr("method")

	form := Form{
		Action: strings.TrimSpace(action),
		Method: strings.ToUpper(strings.TrimSpace(method)),
	}

	s.Find(htmlElementInput + ", " + htmlElementSelect + ", " + htmlElementTextarea).Each(func(_ int, el *goquery.Selection) {
		form.Inputs = append(form.Inputs, parseInput(el))
	})

	return form
}

func parseInput(el *goquery.Selection) Input {
	name, _ := el.Attr("name")
	_, disabled := el.Attr("disabled")
	in := Input{Name: name, Disabled: disabled}

	switch goquery.NodeName(el) {
	case htmlElementTextarea:
		in.Type = htmlElementTextarea
		in.Value = el.Text()
	case htmlElementSelect:
		in.Type = htmlElementSelect
		opt := el.Find("option[selected]").First()
		if opt.Length() == 0 {
			opt = el.Find("option").First()
		}
		if v, ok := opt.Attr("value"); ok {
			in.Value = v
		} else {
			in.Value = strings.TrimSpace(opt.Text())
		}
	default:
		t, _ := el.Attr("type")
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			t = "text"
		}
		in.Type = t
		in.Value, _ = el.Attr("value")
		_, in.Checked = el.Attr("checked")
	}

	return in
}
