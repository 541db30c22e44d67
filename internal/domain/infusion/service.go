package infusion

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Order carries the scalar inputs of one preparation request.
type Order struct {
	ID            string      `json:"id" yaml:"id"`
	Medication    *Medication `json:"-" yaml:"-"`
	WeightKg      float64     `json:"weight_kg" yaml:"weight_kg"`
	Dose          Dose        `json:"dose" yaml:"dose"`
	BagSizeML     float64     `json:"bag_size_ml" yaml:"bag_size_ml"`
	PrimeVolumeML float64     `json:"prime_volume_ml" yaml:"prime_volume_ml"`
	FlushVolumeML float64     `json:"flush_volume_ml" yaml:"flush_volume_ml"`
	TotalTimeMin  float64     `json:"total_time_min" yaml:"total_time_min"`
	UseProtocol   bool        `json:"use_protocol" yaml:"use_protocol"`
}

// Preparation is everything the pharmacy and the pump need for one order.
type Preparation struct {
	OrderID           string            `json:"order_id,omitempty"`
	Medication        string            `json:"medication"`
	TotalDose         float64           `json:"total_dose"`
	DoseUnit          DoseUnit          `json:"dose_unit"`
	ConcentrationMgML float64           `json:"concentration_mg_ml"`
	DrugVolumeML      float64           `json:"drug_volume_ml"`
	VialOptions       []VialCombination `json:"vial_options"`
	OverfillML        float64           `json:"overfill_ml"`
	RemovalML         float64           `json:"removal_ml"`
	FinalVolumeML     float64           `json:"final_volume_ml"`
	Schedule          *Schedule         `json:"schedule"`
	Validation        ValidationReport  `json:"validation"`
	CompanionNote     string            `json:"companion_note,omitempty"`
	Notes             []string          `json:"notes,omitempty"`
}

// Service runs the full calculation for an order. It keeps no state between
// calls and is safe for concurrent use.
type Service struct {
	adapter *ProtocolAdapter
	log     zerolog.Logger
}

func NewService(adapter *ProtocolAdapter, logger zerolog.Logger) *Service {
	return &Service{adapter: adapter, log: logger}
}

// Rules exposes the resolved per-medication rules.
func (s *Service) Rules(med *Medication) Rules {
	return s.adapter.Rules(med)
}

// Prepare resolves the dose, vials, bag removal and pump schedule for o and
// validates the generated schedule.
func (s *Service) Prepare(o Order) (*Preparation, error) {
	med := o.Medication
	if med == nil {
		return nil, ErrMedicationNotFound
	}
	if med.DosageForm == FormOral {
		return nil, fmt.Errorf("%w: %s is %s", ErrUnsupportedForm, med.Name, med.DosageForm)
	}
	log := s.log.With().Str("medication", med.Name).Str("order_id", o.ID).Logger()
	rules := s.adapter.Rules(med)

	dose := o.Dose
	if dose.Value == 0 {
		dose = med.StandardDose
	}
	total, err := TotalDose(dose, o.WeightKg)
	if err != nil {
		return nil, err
	}

	conc := med.Concentration()
	drugVolume, err := DoseToVolume(total, conc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", med.Name, err)
	}
	vials, err := ResolveVials(total, BasisMass, med.VialSizes, med.DosageForm)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", med.Name, err)
	}
	log.Debug().
		Float64("total_dose", total).
		Float64("drug_volume_ml", drugVolume).
		Int("vials", vials[0].VialTotalCount).
		Msg("dose resolved")

	overfill, err := OverfillML(o.BagSizeML, rules)
	if err != nil {
		return nil, err
	}
	in := RemovalInput{DrugVolumeML: drugVolume, OverfillML: overfill, BagSizeML: o.BagSizeML}
	removal, err := RemovalML(in, rules)
	if err != nil {
		return nil, err
	}
	final := FinalVolumeML(in, removal, med.PrepMethod)

	prep := &Preparation{
		OrderID:           o.ID,
		Medication:        med.Name,
		TotalDose:         total,
		DoseUnit:          absoluteUnit(dose.Unit),
		ConcentrationMgML: conc,
		DrugVolumeML:      drugVolume,
		VialOptions:       vials,
		OverfillML:        overfill,
		RemovalML:         removal,
		FinalVolumeML:     final,
		CompanionNote:     rules.CompanionNote,
		Notes:             med.SpecialNotes,
	}

	target := ValidationTarget{VolumeML: final - o.PrimeVolumeML}
	if o.UseProtocol {
		if rules.Protocol == nil {
			return nil, fmt.Errorf("%w: %s has no infusion protocol", ErrInvalidProtocol, med.Name)
		}
		// Mass-based protocol rates run against the diluted bag, not the vial.
		bagConc := 0.0
		if final > 0 {
			bagConc = total / final
		}
		prep.Schedule, err = BuildFromProtocol(ProtocolParams{
			Protocol:             rules.Protocol,
			Rules:                rules,
			TotalVolumeML:        final,
			PrimeVolumeML:        o.PrimeVolumeML,
			FlushVolumeML:        o.FlushVolumeML,
			WeightKg:             o.WeightKg,
			DoseMass:             total,
			ConcentrationMgPerML: bagConc,
		})
	} else {
		target.DurationMin = o.TotalTimeMin
		prep.Schedule, err = BuildSimple(SimpleParams{
			TotalVolumeML: final,
			PrimeVolumeML: o.PrimeVolumeML,
			FlushVolumeML: o.FlushVolumeML,
			TotalTimeMin:  o.TotalTimeMin,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", med.Name, err)
	}

	prep.Validation = ValidateSchedule(prep.Schedule.Steps, target)
	if !prep.Validation.Valid {
		log.Warn().
			Str("mode", string(prep.Schedule.Mode)).
			Str("volume_error", prep.Validation.TotalVolumeError).
			Str("duration_error", prep.Validation.TotalDurationError).
			Msg("generated schedule failed validation")
	}
	log.Debug().
		Int("steps", len(prep.Schedule.Steps)).
		Float64("removal_ml", removal).
		Float64("total_duration_min", prep.Schedule.TotalDurationMin).
		Msg("preparation calculated")
	return prep, nil
}

// Validate checks a user-edited schedule after refreshing its derived fields.
func (s *Service) Validate(steps []InfusionStep, target ValidationTarget) ([]InfusionStep, ValidationReport) {
	recalculated := Recalculate(steps, target.VolumeML)
	report := ValidateSchedule(recalculated, target)
	s.log.Debug().Bool("valid", report.Valid).Int("steps", len(steps)).Msg("schedule validated")
	return recalculated, report
}

func absoluteUnit(u DoseUnit) DoseUnit {
	switch u {
	case DoseUnits, DoseUnitsPerKg:
		return DoseUnits
	default:
		return DoseMg
	}
}
