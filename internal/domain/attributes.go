package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Field names the six warehouse attributes. Values match the JSON keys of
// Attributes.
type Field string

const (
	FieldLength      Field = "length"
	FieldWidth       Field = "width"
	FieldHeight      Field = "height"
	FieldPalletType  Field = "palletType"
	FieldStorage     Field = "storage"
	FieldStorageType Field = "storageType"
)

// PromptOrder is the order in which missing fields are asked for.
var PromptOrder = []Field{
	FieldHeight,
	FieldLength,
	FieldWidth,
	FieldPalletType,
	FieldStorage,
	FieldStorageType,
}

// MergePolicy selects how a patch is applied to a base record.
type MergePolicy int

const (
	// PolicyHeuristic fills only fields that are unset in the base.
	PolicyHeuristic MergePolicy = iota
	// PolicyAuthoritative overwrites the base with every field set in the patch.
	PolicyAuthoritative
)

// Attributes is the warehouse configuration document. A nil field is unset.
type Attributes struct {
	Length      *float64 `json:"length"`
	Width       *float64 `json:"width"`
	Height      *float64 `json:"height"`
	PalletType  *string  `json:"palletType"`
	Storage     *int     `json:"storage"`
	StorageType *string  `json:"storageType"`
}

// Complete reports whether all six fields are set.
func (a Attributes) Complete() bool {
	return len(a.Missing()) == 0
}

// IsZero reports whether no field is set.
func (a Attributes) IsZero() bool {
	return len(a.Missing()) == len(PromptOrder)
}

// IsSet reports whether the given field holds a value.
func (a Attributes) IsSet(f Field) bool {
	switch f {
	case FieldLength:
		return a.Length != nil
	case FieldWidth:
		return a.Width != nil
	case FieldHeight:
		return a.Height != nil
	case FieldPalletType:
		return a.PalletType != nil
	case FieldStorage:
		return a.Storage != nil
	case FieldStorageType:
		return a.StorageType != nil
	}
	return false
}

// Missing returns the unset fields in PromptOrder.
func (a Attributes) Missing() []Field {
	var out []Field
	for _, f := range PromptOrder {
		if !a.IsSet(f) {
			out = append(out, f)
		}
	}
	return out
}

// Merge applies patch on top of a and returns the result. Neither input is
// modified.
func (a Attributes) Merge(patch Attributes, policy MergePolicy) Attributes {
	out := a.Clone()
	take := func(f Field) bool {
		return patch.IsSet(f) && (policy == PolicyAuthoritative || !out.IsSet(f))
	}
	if take(FieldLength) {
		out.Length = Float(*patch.Length)
	}
	if take(FieldWidth) {
		out.Width = Float(*patch.Width)
	}
	if take(FieldHeight) {
		out.Height = Float(*patch.Height)
	}
	if take(FieldPalletType) {
		out.PalletType = String(*patch.PalletType)
	}
	if take(FieldStorage) {
		out.Storage = Int(*patch.Storage)
	}
	if take(FieldStorageType) {
		out.StorageType = String(*patch.StorageType)
	}
	return out
}

// Clone returns a deep copy so callers never share pointers.
func (a Attributes) Clone() Attributes {
	var out Attributes
	if a.Length != nil {
		out.Length = Float(*a.Length)
	}
	if a.Width != nil {
		out.Width = Float(*a.Width)
	}
	if a.Height != nil {
		out.Height = Float(*a.Height)
	}
	if a.PalletType != nil {
		out.PalletType = String(*a.PalletType)
	}
	if a.Storage != nil {
		out.Storage = Int(*a.Storage)
	}
	if a.StorageType != nil {
		out.StorageType = String(*a.StorageType)
	}
	return out
}

// Equal compares the two records field by field.
func (a Attributes) Equal(b Attributes) bool {
	return eqPtr(a.Length, b.Length) &&
		eqPtr(a.Width, b.Width) &&
		eqPtr(a.Height, b.Height) &&
		eqPtr(a.PalletType, b.PalletType) &&
		eqPtr(a.Storage, b.Storage) &&
		eqPtr(a.StorageType, b.StorageType)
}

// Validate checks the type constraints of every set field.
func (a Attributes) Validate() error {
	var errs []error
	for _, p := range []struct {
		f Field
		v *float64
	}{{FieldLength, a.Length}, {FieldWidth, a.Width}, {FieldHeight, a.Height}} {
		if p.v != nil && *p.v <= 0 {
			errs = append(errs, fmt.Errorf("domain: %s must be positive", p.f))
		}
	}
	if a.Storage != nil && *a.Storage <= 0 {
		errs = append(errs, fmt.Errorf("domain: %s must be positive", FieldStorage))
	}
	if a.PalletType != nil && strings.TrimSpace(*a.PalletType) == "" {
		errs = append(errs, fmt.Errorf("domain: %s must not be empty", FieldPalletType))
	}
	if a.StorageType != nil && strings.TrimSpace(*a.StorageType) == "" {
		errs = append(errs, fmt.Errorf("domain: %s must not be empty", FieldStorageType))
	}
	return errors.Join(errs...)
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func Float(v float64) *float64 { return &v }
func Int(v int) *int           { return &v }
func String(v string) *string  { return &v }
