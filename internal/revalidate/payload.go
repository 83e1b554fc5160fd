package revalidate

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/ligadeals/ligadeals-web/internal/validation"
	"github.com/ligadeals/ligadeals-web/internal/xerrors"
)

// Payload is the CMS webhook projection: {_id, _type, _rev, slug?: {current}}.
type Payload struct {
	ID   string `json:"_id" validate:"required,max=256"`
	Type string `json:"_type" validate:"required,max=128"`
	Rev  string `json:"_rev" validate:"max=256"`
	Slug *Slug  `json:"slug,omitempty"`
}

type Slug struct {
	Current string `json:"current" validate:"max=256,excludesall=/?#\\"`
}

// DocumentType is the parsed _type.
func (p Payload) DocumentType() DocumentType { return ParseDocumentType(p.Type) }

// SlugValue is the trimmed slug, empty when absent.
func (p Payload) SlugValue() string {
	if p.Slug == nil {
		return ""
	}
	return strings.TrimSpace(p.Slug.Current)
}

var payloadValidator = validation.New()

// ParsePayload decodes and validates a webhook body. Syntax errors and rule
// failures both wrap ErrInvalidPayload; rule failures also carry a
// *validation.Error.
func ParsePayload(body []byte) (Payload, error) {
	var p Payload
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&p); err != nil {
		return Payload{}, &PayloadError{Err: xerrors.Wrap(err, "decode webhook body")}
	}
	if err := payloadValidator.Struct(p); err != nil {
		return Payload{}, &PayloadError{Err: err, Schema: true}
	}
	return p, nil
}
