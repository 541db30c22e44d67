package infusion

import (
	"fmt"
	"strings"
)

// BandBasis selects which patient quantity a protocol's rate bands key on.
type BandBasis string

const (
	BandByWeight BandBasis = "weight"
	BandByDose   BandBasis = "dose"
)

// RateBand applies Value when Min <= x < Max. Max of 0 leaves the band open.
type RateBand struct {
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Value float64 `json:"value" yaml:"value"`
}

// ProtocolStep is one step of a published ramp protocol.
type ProtocolStep struct {
	Rate          float64    `json:"rate,omitempty" yaml:"rate,omitempty"`
	Bands         []RateBand `json:"bands,omitempty" yaml:"bands,omitempty"`
	DurationMin   float64    `json:"duration_min,omitempty" yaml:"duration_min,omitempty"`
	UntilComplete bool       `json:"until_complete,omitempty" yaml:"until_complete,omitempty"`
}

// Protocol is a medication's canonical step schedule.
type Protocol struct {
	Name          string         `json:"name" yaml:"name"`
	RateUnit      RateUnit       `json:"rate_unit" yaml:"rate_unit"`
	BandBasis     BandBasis      `json:"band_basis,omitempty" yaml:"band_basis,omitempty"`
	Steps         []ProtocolStep `json:"steps" yaml:"steps"`
	Flush         bool           `json:"flush" yaml:"flush"`
	FlushVolumeML float64        `json:"flush_volume_ml,omitempty" yaml:"flush_volume_ml,omitempty"` // 0 = standard flush
}

// Validate checks the protocol's structure: at least one step, exactly one
// until-complete step and it is the last one, positive fixed durations.
func (p *Protocol) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: %q has no steps", ErrInvalidProtocol, p.Name)
	}
	last := len(p.Steps) - 1
	for i, s := range p.Steps {
		if s.UntilComplete && i != last {
			return fmt.Errorf("%w: %q step %d is until-complete but not last", ErrInvalidProtocol, p.Name, i+1)
		}
		if !s.UntilComplete && s.DurationMin <= 0 {
			return fmt.Errorf("%w: %q step %d needs a positive duration", ErrInvalidProtocol, p.Name, i+1)
		}
		if s.Rate <= 0 && len(s.Bands) == 0 {
			return fmt.Errorf("%w: %q step %d has no rate", ErrInvalidProtocol, p.Name, i+1)
		}
	}
	if !p.Steps[last].UntilComplete {
		return fmt.Errorf("%w: %q has no until-complete step", ErrInvalidProtocol, p.Name)
	}
	return nil
}

// StepRate picks the rate for step s given the band key (weight or dose).
func (s ProtocolStep) StepRate(key float64) (float64, error) {
	if len(s.Bands) == 0 {
		return s.Rate, nil
	}
	for _, b := range s.Bands {
		if key >= b.Min && (b.Max == 0 || key < b.Max) {
			return b.Value, nil
		}
	}
	return 0, fmt.Errorf("%w: no rate band covers %v", ErrInvalidProtocol, key)
}

// Transform kinds.
const (
	TransformPassthrough = "passthrough"
	TransformScale       = "scale"
	TransformFixed       = "fixed"
)

// RateTransform is a named, explicit adjustment from a published protocol
// rate (already in mL/hr) to the pump rate used clinically.
type RateTransform struct {
	Kind   string  `json:"kind" yaml:"kind"`
	Factor float64 `json:"factor,omitempty" yaml:"factor,omitempty"`
}

// Double, Halve and FixedRate are the common transforms.
func Double() RateTransform { return RateTransform{Kind: TransformScale, Factor: 2} }

func Halve() RateTransform { return RateTransform{Kind: TransformScale, Factor: 0.5} }

func FixedRate(mlPerHr float64) RateTransform {
	return RateTransform{Kind: TransformFixed, Factor: mlPerHr}
}

// Apply returns the transformed rate.
func (t RateTransform) Apply(rate float64) (float64, error) {
	switch t.Kind {
	case "", TransformPassthrough:
		return rate, nil
	case TransformScale:
		if t.Factor <= 0 {
			return 0, fmt.Errorf("%w: scale factor %v", ErrInvalidProtocol, t.Factor)
		}
		return rate * t.Factor, nil
	case TransformFixed:
		if t.Factor <= 0 {
			return 0, fmt.Errorf("%w: fixed rate %v", ErrInvalidProtocol, t.Factor)
		}
		return t.Factor, nil
	default:
		return 0, fmt.Errorf("%w: unknown rate transform %q", ErrInvalidProtocol, t.Kind)
	}
}

// Override is one row of the per-medication override table.
type Override struct {
	Medication      string        `json:"medication" yaml:"medication"`
	RateUnit        RateUnit      `json:"rate_unit,omitempty" yaml:"rate_unit,omitempty"`
	Transform       RateTransform `json:"transform,omitempty" yaml:"transform,omitempty"`
	NoRemoval       bool          `json:"no_removal,omitempty" yaml:"no_removal,omitempty"`
	RemovalMinBagML float64       `json:"removal_min_bag_ml,omitempty" yaml:"removal_min_bag_ml,omitempty"`
	OverfillML      *float64      `json:"overfill_ml,omitempty" yaml:"overfill_ml,omitempty"`
	FlushVolumeML   float64       `json:"flush_volume_ml,omitempty" yaml:"flush_volume_ml,omitempty"`
	CompanionNote   string        `json:"companion_note,omitempty" yaml:"companion_note,omitempty"`
	Protocol        string        `json:"protocol,omitempty" yaml:"protocol,omitempty"`
}

// Rules is the resolved medication-specific behavior the other components
// consult. The zero value means "no special handling". A nil OverfillML
// falls back to the bag table; a set one, zero included, replaces it.
type Rules struct {
	RateUnit        RateUnit
	Transform       RateTransform
	NoRemoval       bool
	RemovalMinBagML float64
	OverfillML      *float64
	FlushVolumeML   float64
	CompanionNote   string
	Protocol        *Protocol
}

// ProtocolAdapter looks up per-medication overrides and named protocols.
// It is read-only after construction and safe for concurrent use.
type ProtocolAdapter struct {
	overrides map[string]Override
	protocols map[string]*Protocol
}

// NewProtocolAdapter indexes overrides by medication name and protocols by
// protocol name. Both lookups are case-insensitive.
func NewProtocolAdapter(overrides []Override, protocols []*Protocol) (*ProtocolAdapter, error) {
	a := &ProtocolAdapter{
		overrides: make(map[string]Override, len(overrides)),
		protocols: make(map[string]*Protocol, len(protocols)),
	}
	for _, p := range protocols {
		if p == nil {
			continue
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		a.protocols[normalizeName(p.Name)] = p
	}
	for _, o := range overrides {
		key := normalizeName(o.Medication)
		if key == "" {
			return nil, fmt.Errorf("%w: override without medication name", ErrInvalidProtocol)
		}
		if _, dup := a.overrides[key]; dup {
			return nil, fmt.Errorf("%w: duplicate override for %q", ErrInvalidProtocol, o.Medication)
		}
		if o.Protocol != "" {
			if _, ok := a.protocols[normalizeName(o.Protocol)]; !ok {
				return nil, fmt.Errorf("%w: override for %q references unknown protocol %q", ErrInvalidProtocol, o.Medication, o.Protocol)
			}
		}
		if o.OverfillML != nil && *o.OverfillML < 0 {
			return nil, fmt.Errorf("%w: override for %q has overfill %v mL", ErrInvalidProtocol, o.Medication, *o.OverfillML)
		}
		if _, err := o.Transform.Apply(1); err != nil {
			return nil, fmt.Errorf("override for %q: %w", o.Medication, err)
		}
		a.overrides[key] = o
	}
	return a, nil
}

// Rules merges the medication's own catalog flags with its override row.
// Override values win where set; boolean flags are combined.
func (a *ProtocolAdapter) Rules(med *Medication) Rules {
	r := Rules{
		NoRemoval:  med.NoRemoval || med.PrepMethod == PrepEmptyBag,
		OverfillML: med.OverfillOverrideML,
		Protocol:   med.InfusionProtocol,
	}
	if a == nil {
		return r
	}
	o, ok := a.overrides[normalizeName(med.Name)]
	if !ok {
		return r
	}

	r.RateUnit = o.RateUnit
	r.Transform = o.Transform
	r.NoRemoval = r.NoRemoval || o.NoRemoval
	r.RemovalMinBagML = o.RemovalMinBagML
	r.FlushVolumeML = o.FlushVolumeML
	r.CompanionNote = o.CompanionNote
	if o.OverfillML != nil {
		r.OverfillML = o.OverfillML
	}
	if o.Protocol != "" {
		r.Protocol = a.protocols[normalizeName(o.Protocol)]
	}
	return r
}

// Protocol returns a named protocol.
func (a *ProtocolAdapter) Protocol(name string) (*Protocol, bool) {
	if a == nil {
		return nil, false
	}
	p, ok := a.protocols[normalizeName(name)]
	return p, ok
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
