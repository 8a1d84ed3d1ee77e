package inspect

import (
	"net/url"
	"strings"
)

// Field is one submittable name/value pair.
type Field struct {
	Name  string
	Value string
}

// Fields is an ordered field list. Order is preserved when encoding so a
// resubmission carries the form's fields exactly as they were captured.
type Fields []Field

// Get returns the value of the first field called name.
func (f Fields) Get(name string) (string, bool) {
	for _, field := range f {
		if field.Name == name {
			return field.Value, true
		}
	}
	return "", false
}

// With returns a copy of f where name is set to value. An existing field
// keeps its position; otherwise the field is appended.
func (f Fields) With(name, value string) Fields {
	out := make(Fields, 0, len(f)+1)
	replaced := false
	for _, field := range f {
		if field.Name == name {
			if !replaced {
				out = append(out, Field{Name: name, Value: value})
				replaced = true
			}
			continue
		}
		out = append(out, field)
	}
	if !replaced {
		out = append(out, Field{Name: name, Value: value})
	}
	return out
}

// Names returns the field names in order.
func (f Fields) Names() []string {
	names := make([]string, len(f))
	for i, field := range f {
		names[i] = field.Name
	}
	return names
}

// Encode returns the fields in application/x-www-form-urlencoded form,
// keeping their order (url.Values.Encode would sort them).
func (f Fields) Encode() string {
	var b strings.Builder
	for i, field := range f {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(field.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(field.Value))
	}
	return b.String()
}
