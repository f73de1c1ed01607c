package usecase

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"warehouse-wizard/internal/domain"
)

// Reconciliation is the outcome of checking an assistant reply for completion.
type Reconciliation struct {
	DisplayText string
	Merged      *domain.Attributes
	Complete    bool
	// ExtractionFailed is set when the marker was present but no structured
	// record was available.
	ExtractionFailed bool
}

// schemaFields maps structured extraction names onto record fields. capacity
// is not a case variant of storage, so the table is explicit.
var schemaFields = []struct {
	name  string
	field domain.Field
}{
	{"length", domain.FieldLength},
	{"width", domain.FieldWidth},
	{"height", domain.FieldHeight},
	{"pallet_type", domain.FieldPalletType},
	{"capacity", domain.FieldStorage},
	{"storage_type", domain.FieldStorageType},
}

var leadingNumber = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)`)

// HasMarker reports whether text contains the completion marker.
func HasMarker(text string) bool {
	return strings.Contains(text, CompletionMarker)
}

// StripMarker removes every occurrence of the completion marker and trims the
// surrounding whitespace. Removal repeats because deleting one marker can
// join the text around it into another.
func StripMarker(text string) string {
	for strings.Contains(text, CompletionMarker) {
		text = strings.ReplaceAll(text, CompletionMarker, "")
	}
	return strings.TrimSpace(text)
}

// Reconcile decides whether a reply completes the session. A non-nil
// structured result always completes it; a marker without one completes it
// with ExtractionFailed set.
func Reconcile(raw string, structured StructuredResult) Reconciliation {
	switch {
	case structured != nil:
		merged := MapStructured(structured)
		return Reconciliation{
			DisplayText: StripMarker(raw),
			Merged:      &merged,
			Complete:    true,
		}
	case HasMarker(raw):
		return Reconciliation{
			DisplayText:      StripMarker(raw),
			Complete:         true,
			ExtractionFailed: true,
		}
	default:
		return Reconciliation{DisplayText: raw}
	}
}

// MapStructured translates a structured result into a record. Values that do
// not coerce to a valid field value are left unset.
func MapStructured(structured StructuredResult) domain.Attributes {
	var out domain.Attributes
	for _, sf := range schemaFields {
		v, ok := structured[sf.name]
		if !ok || v == nil {
			continue
		}
		switch sf.field {
		case domain.FieldLength:
			out.Length = coerceFloat(v)
		case domain.FieldWidth:
			out.Width = coerceFloat(v)
		case domain.FieldHeight:
			out.Height = coerceFloat(v)
		case domain.FieldPalletType:
			out.PalletType = coerceString(v)
		case domain.FieldStorage:
			if f := coerceFloat(v); f != nil {
				if n := int(math.Round(*f)); n > 0 {
					out.Storage = domain.Int(n)
				}
			}
		case domain.FieldStorageType:
			out.StorageType = coerceString(v)
		}
	}
	return out
}

func coerceFloat(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		m := leadingNumber.FindStringSubmatch(t)
		if m == nil {
			return nil
		}
		parsed, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return domain.Float(f)
}

func coerceString(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return nil
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	return domain.String(s)
}
