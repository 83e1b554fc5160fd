package abtest

import (
	"encoding/json"
	"io"

	"github.com/ligadeals/ligadeals-web/internal/validation"
	"github.com/ligadeals/ligadeals-web/internal/xerrors"
)

// Variant is one arm of a test. A zero or negative Weight counts as 1.
type Variant struct {
	ID     string  `json:"id" validate:"required"`
	Name   string  `json:"name"`
	Value  string  `json:"value"`
	Weight float64 `json:"weight,omitempty"`
}

func (v Variant) weight() float64 {
	if v.Weight <= 0 {
		return 1
	}
	return v.Weight
}

// Test is an experiment definition, e.g.
//
//	{"testId":"hero-cta","variants":[{"id":"a","value":"Book now"},{"id":"b","value":"Reserve","weight":3}]}
type Test struct {
	ID             string    `json:"testId" validate:"required"`
	Variants       []Variant `json:"variants" validate:"min=1,dive"`
	ConversionGoal string    `json:"conversionGoal,omitempty"`
}

// Has reports whether id names one of t's variants.
func (t Test) Has(id string) (Variant, bool) {
	for _, v := range t.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// DecodeTest reads one test definition and validates it.
func DecodeTest(r io.Reader, val *validation.Validator) (Test, error) {
	var t Test
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return Test{}, xerrors.Wrap(err, "decode test definition")
	}
	if val == nil {
		val = validation.New()
	}
	if err := val.Struct(t); err != nil {
		return Test{}, err
	}
	seen := make(map[string]struct{}, len(t.Variants))
	for _, v := range t.Variants {
		if _, dup := seen[v.ID]; dup {
			return Test{}, xerrors.Newf("duplicate variant id %q", v.ID)
		}
		seen[v.ID] = struct{}{}
	}
	return t, nil
}
