// Package visualization turns a warehouse configuration into the summary the
// layout panel shows.
package visualization

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"warehouse-wizard/internal/domain"
)

const defaultFootprint = 1.2

// Floor space per pallet in square meters.
var footprints = map[string]float64{
	"euro":     0.96,
	"standard": 1.22,
	"us":       1.22,
}

// View is the layout summary of one configuration. Numeric fields are zero
// when the attributes they depend on are unknown.
type View struct {
	Ready       bool   `json:"ready"`
	Dimensions  string `json:"dimensions"`
	Pallets     string `json:"pallets"`
	StorageType string `json:"storageType"`

	FloorArea       float64 `json:"floorArea"`
	Volume          float64 `json:"volume"`
	PalletFootprint float64 `json:"palletFootprint"`
	PalletPositions int     `json:"palletPositions"`
	// Fits is nil until both the requested storage and the floor area are known.
	Fits *bool `json:"fits,omitempty"`
}

// Build summarises attrs.
func Build(attrs domain.Attributes) View {
	v := View{
		Ready:      attrs.Complete(),
		Dimensions: dimensions(attrs),
		Pallets:    pallets(attrs),
	}
	if attrs.StorageType != nil {
		v.StorageType = title(*attrs.StorageType)
	}

	if attrs.Length != nil && attrs.Width != nil {
		v.FloorArea = round2(*attrs.Length * *attrs.Width)
		if attrs.Height != nil {
			v.Volume = round2(v.FloorArea * *attrs.Height)
		}
	}

	v.PalletFootprint = defaultFootprint
	if attrs.PalletType != nil {
		if f, ok := footprints[strings.ToLower(strings.TrimSpace(*attrs.PalletType))]; ok {
			v.PalletFootprint = f
		}
	}
	if v.FloorArea > 0 {
		v.PalletPositions = int(math.Floor(v.FloorArea / v.PalletFootprint))
		if attrs.Storage != nil {
			fits := *attrs.Storage <= v.PalletPositions
			v.Fits = &fits
		}
	}
	return v
}

func dimensions(a domain.Attributes) string {
	parts := make([]string, 0, 3)
	for _, p := range []*float64{a.Length, a.Width, a.Height} {
		if p == nil {
			parts = append(parts, "?")
			continue
		}
		parts = append(parts, strconv.FormatFloat(*p, 'f', -1, 64)+"m")
	}
	return strings.Join(parts, " × ")
}

func pallets(a domain.Attributes) string {
	var parts []string
	if a.Storage != nil {
		parts = append(parts, strconv.Itoa(*a.Storage))
	}
	if a.PalletType != nil {
		parts = append(parts, title(*a.PalletType))
	}
	return strings.Join(parts, " ")
}

// title upper-cases the first letter of each word. A Caser is not safe for
// concurrent use, so each call builds its own.
func title(s string) string {
	return cases.Title(language.English).String(strings.TrimSpace(s))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
