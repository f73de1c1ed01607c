// Package extract guesses warehouse attributes from free text. Its output is a
// heuristic patch: it never overrides a known value and is always subordinate
// to structured extraction.
package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"warehouse-wizard/internal/domain"
)

const (
	num  = `(\d+(?:\.\d+)?)`
	unit = `(?:\s*(m|meters?|metres?|ft|feet|foot)\b)?`

	feetToMeters = 0.3048
)

// dimensionRule matches a number plus an optional unit. group is the index of
// the capture holding the number; the unit is the capture that follows it.
type dimensionRule struct {
	re    *regexp.Regexp
	group int
}

type phrase struct {
	re    *regexp.Regexp
	value string
}

var (
	lengthRules = []dimensionRule{
		{re: regexp.MustCompile(`\b` + num + unit + `\s*(?:long|in length)\b`), group: 1},
		{re: regexp.MustCompile(`\blength\s*(?:of|is|:|=)?\s*(?:about\s+|around\s+)?` + num + unit), group: 1},
		{re: regexp.MustCompile(`\b` + num + unit + `\s*(?:x|by|×)\s*` + num), group: 1},
	}
	widthRules = []dimensionRule{
		{re: regexp.MustCompile(`\b` + num + unit + `\s*(?:wide|in width)\b`), group: 1},
		{re: regexp.MustCompile(`\bwidth\s*(?:of|is|:|=)?\s*(?:about\s+|around\s+)?` + num + unit), group: 1},
		{re: regexp.MustCompile(`\b\d+(?:\.\d+)?(?:\s*(?:m|meters?|metres?|ft|feet|foot)\b)?\s*(?:x|by|×)\s*` + num + unit), group: 1},
	}
	heightRules = []dimensionRule{
		{re: regexp.MustCompile(`\b` + num + unit + `\s*(?:high|tall|in height)\b`), group: 1},
		{re: regexp.MustCompile(`\bheight\s*(?:of|is|:|=)?\s*(?:about\s+|around\s+)?` + num + unit), group: 1},
	}

	palletTypeRe = regexp.MustCompile(`\b(standard|euro|block|stringer|plastic|wooden|metal|us)[\s-]+pallets?\b`)

	storageRules = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d[\d,]*(?:\.\d+)?)\s+(?:[a-z-]+\s+)?pallets\b`),
		regexp.MustCompile(`\bstorage\s*(?:for|of|is|:)?\s*(?:about\s+|around\s+)?(\d[\d,]*(?:\.\d+)?)\b`),
		regexp.MustCompile(`\bcapacity\s*(?:for|of|is|:)?\s*(?:about\s+|around\s+)?(\d[\d,]*(?:\.\d+)?)\b`),
	}

	// Ordered most specific first; the first phrase found wins.
	storageTypes = []phrase{
		{re: regexp.MustCompile(`\bselective(?:[\s-]pallet)?[\s-]rack(?:s|ing)?\b`), value: "selective rack"},
		{re: regexp.MustCompile(`\bdrive[\s-]?thr(?:ough|u)\b`), value: "drive-through"},
		{re: regexp.MustCompile(`\bdrive[\s-]?in\b`), value: "drive-in"},
		{re: regexp.MustCompile(`\bpush[\s-]?back\b`), value: "push-back"},
		{re: regexp.MustCompile(`\bpallet[\s-]flow\b`), value: "pallet flow"},
		{re: regexp.MustCompile(`\bblock[\s-]stack(?:ing|ed)?\b`), value: "block stacking"},
		{re: regexp.MustCompile(`\bhigh[\s-]bay\b`), value: "high bay"},
		{re: regexp.MustCompile(`\bcantilever\b`), value: "cantilever"},
		{re: regexp.MustCompile(`\bmezzanine\b`), value: "mezzanine"},
		{re: regexp.MustCompile(`\brack(?:s|ing)?\b`), value: "rack"},
	}
)

// Extract returns the attributes it can read from utterance for fields that
// are still unset in current. Each field takes the first rule that matches.
func Extract(utterance string, current domain.Attributes) domain.Attributes {
	text := strings.ToLower(utterance)
	var patch domain.Attributes

	if current.Length == nil {
		patch.Length = matchDimension(text, lengthRules)
	}
	if current.Width == nil {
		patch.Width = matchDimension(text, widthRules)
	}
	if current.Height == nil {
		patch.Height = matchDimension(text, heightRules)
	}
	if current.PalletType == nil {
		if m := palletTypeRe.FindStringSubmatch(text); m != nil {
			patch.PalletType = domain.String(m[1])
		}
	}
	if current.Storage == nil {
		patch.Storage = matchCount(text)
	}
	if current.StorageType == nil {
		for _, p := range storageTypes {
			if p.re.MatchString(text) {
				patch.StorageType = domain.String(p.value)
				break
			}
		}
	}
	return patch
}

func matchDimension(text string, rules []dimensionRule) *float64 {
	for _, r := range rules {
		m := r.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[r.group], 64)
		if err != nil || v <= 0 {
			continue
		}
		if r.group+1 < len(m) && isFeet(m[r.group+1]) {
			v = math.Round(v*feetToMeters*100) / 100
		}
		return domain.Float(v)
	}
	return nil
}

func matchCount(text string) *int {
	for _, re := range storageRules {
		m := re.FindStringSubmatch(text)
		if m == nil || strings.Contains(m[1], ".") {
			continue
		}
		n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err != nil || n <= 0 {
			continue
		}
		return domain.Int(n)
	}
	return nil
}

func isFeet(u string) bool {
	return u == "ft" || u == "feet" || u == "foot"
}
