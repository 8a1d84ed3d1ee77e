package inspect

import "github.com/Rorqualx/captchagate/internal/types"

// LookupKind tells how the solution field of a form was resolved.
type LookupKind int

const (
	// LookupAbsent means the form has no candidate field.
	LookupAbsent LookupKind = iota
	// LookupFound means exactly one field was identified.
	LookupFound
	// LookupAmbiguous means more than one candidate field exists.
	LookupAmbiguous
)

// String returns the kind name.
func (k LookupKind) String() string {
	switch k {
	case LookupFound:
		return "found"
	case LookupAmbiguous:
		return "ambiguous"
	default:
		return "absent"
	}
}

// FieldLookup is the result of locating the field that receives the answer.
// Callers must handle all three kinds; Field does that mapping for them.
type FieldLookup struct {
	Kind LookupKind
	Name string
}

// Found returns a lookup naming a single field.
func Found(name string) FieldLookup { return FieldLookup{Kind: LookupFound, Name: name} }

// Ambiguous returns a lookup for a form with several candidates.
func Ambiguous() FieldLookup { return FieldLookup{Kind: LookupAmbiguous} }

// Absent returns a lookup for a form with no candidate.
func Absent() FieldLookup { return FieldLookup{Kind: LookupAbsent} }

// Field returns the field name or the error matching the lookup kind.
func (l FieldLookup) Field() (string, error) {
	switch l.Kind {
	case LookupFound:
		return l.Name, nil
	case LookupAmbiguous:
		return "", types.ErrAmbiguousFields
	default:
		return "", types.ErrFieldsNotFound
	}
}
