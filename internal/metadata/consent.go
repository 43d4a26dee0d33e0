package metadata

import (
	"encoding/json"
	"fmt"
	"time"
)

// ConsentDomain names the area of the Modellvorhaben consent a scope covers.
type ConsentDomain string

const (
	DomainMvSequencing     ConsentDomain = "mvSequencing"
	DomainReIdentification ConsentDomain = "reIdentification"
	DomainCaseIdentification ConsentDomain = "caseIdentification"
)

// Provision is the consent sum type: a scope either permits specific coded
// purposes or denies a nested list of provisions. Modelled as a closed Go
// interface rather than a single struct with a "codes vs. provisions"
// field inspected at runtime, per spec.md §9.
type Provision interface {
	isProvision()
}

// Permit grants consent for the listed codes.
type Permit struct {
	Codes []string
}

func (Permit) isProvision() {}

// Deny withholds consent, optionally carving out nested exceptions.
type Deny struct {
	Provisions []Provision
}

func (Deny) isProvision() {}

type provisionType string

const (
	provisionPermit provisionType = "permit"
	provisionDeny   provisionType = "deny"
)

type provisionWire struct {
	Type       provisionType    `json:"type"`
	Codes      []string         `json:"codes,omitempty"`
	Provisions []provisionWire  `json:"provisions,omitempty"`
}

func toWire(p Provision) provisionWire {
	switch v := p.(type) {
	case Permit:
		return provisionWire{Type: provisionPermit, Codes: v.Codes}
	case Deny:
		nested := make([]provisionWire, len(v.Provisions))
		for i, n := range v.Provisions {
			nested[i] = toWire(n)
		}
		return provisionWire{Type: provisionDeny, Provisions: nested}
	default:
		return provisionWire{}
	}
}

func fromWire(w provisionWire) (Provision, error) {
	switch w.Type {
	case provisionPermit:
		return Permit{Codes: w.Codes}, nil
	case provisionDeny:
		nested := make([]Provision, len(w.Provisions))
		for i, n := range w.Provisions {
			p, err := fromWire(n)
			if err != nil {
				return nil, err
			}
			nested[i] = p
		}
		return Deny{Provisions: nested}, nil
	default:
		return nil, fmt.Errorf("metadata: unknown consent provision type %q", w.Type)
	}
}

// marshalProvision implements the {"type": "permit"|"deny", ...} wire encoding.
func marshalProvision(p Provision) ([]byte, error) {
	return json.Marshal(toWire(p))
}

func unmarshalProvision(data []byte) (Provision, error) {
	var w provisionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return fromWire(w)
}

// MvConsentScope is one scope declaration within a donor's mandatory
// Modellvorhaben consent.
type MvConsentScope struct {
	Domain    ConsentDomain `json:"domain" validate:"required"`
	Date      time.Time     `json:"date"`
	Provision Provision     `json:"provision" validate:"required"`
}

type mvConsentScopeWire struct {
	Domain ConsentDomain   `json:"domain"`
	Date   time.Time       `json:"date"`
	Provision json.RawMessage `json:"provision"`
}

// MarshalJSON encodes the scope's sum-type provision field.
func (s MvConsentScope) MarshalJSON() ([]byte, error) {
	raw, err := marshalProvision(s.Provision)
	if err != nil {
		return nil, err
	}
	return json.Marshal(mvConsentScopeWire{Domain: s.Domain, Date: s.Date, Provision: raw})
}

// UnmarshalJSON decodes the scope's sum-type provision field.
func (s *MvConsentScope) UnmarshalJSON(data []byte) error {
	var w mvConsentScopeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p, err := unmarshalProvision(w.Provision)
	if err != nil {
		return err
	}
	s.Domain = w.Domain
	s.Date = w.Date
	s.Provision = p
	return nil
}

// MvConsent is the mandatory Modellvorhaben consent block every donor
// carries (spec.md §3).
type MvConsent struct {
	PresentationDate *time.Time       `json:"presentationDate,omitempty"`
	Version          string           `json:"version" validate:"required"`
	Scope            []MvConsentScope `json:"scope" validate:"required,min=1,dive"`
}

// PermitsMvSequencing reports whether at least one scope permits the
// mvSequencing domain, the one consent precondition spec.md requires before
// a submission may proceed.
func (c MvConsent) PermitsMvSequencing() bool {
	for _, s := range c.Scope {
		if s.Domain != DomainMvSequencing {
			continue
		}
		if _, ok := s.Provision.(Permit); ok {
			return true
		}
	}
	return false
}

// ResearchConsent is an additional, optional declaration of consent scoped
// to a particular data set; its inner scope is free-form JSON (it follows an
// external FHIR profile this module does not interpret).
type ResearchConsent struct {
	SchemaVersion    string          `json:"schemaVersion" validate:"required"`
	PresentationDate *time.Time      `json:"presentationDate,omitempty"`
	Scope            json.RawMessage `json:"scope"`
}
