package infusion

// DosageForm describes how a medication is packaged.
type DosageForm string

const (
	FormSolution    DosageForm = "solution"
	FormLyophilized DosageForm = "lyophilized"
	FormOral        DosageForm = "oral"
)

// StrengthUnit is the unit of VialDescriptor.StrengthValue.
type StrengthUnit string

const (
	StrengthMg      StrengthUnit = "mg"
	StrengthMgPerML StrengthUnit = "mg/mL"
	StrengthUnits   StrengthUnit = "units"
)

// PrepMethod is how the diluent bag is prepared.
type PrepMethod string

const (
	PrepStandard PrepMethod = "standard"
	PrepEmptyBag PrepMethod = "emptyBag"
)

// VialDescriptor is immutable packaging data for one vial size.
//
// For mg/mL vials StrengthValue is a concentration and VolumeML the fill
// volume. Otherwise StrengthValue is the total mass (or units) per vial and
// the withdrawal/reconstitution volumes give the draw volume. Zero means
// absent for the optional volumes.
type VialDescriptor struct {
	StrengthValue          float64      `json:"strength_value" yaml:"strength_value"`
	StrengthUnit           StrengthUnit `json:"strength_unit" yaml:"strength_unit"`
	VolumeML               float64      `json:"volume_ml" yaml:"volume_ml"`
	ReconstitutionVolumeML float64      `json:"reconstitution_volume_ml,omitempty" yaml:"reconstitution_volume_ml,omitempty"`
	WithdrawalVolumeML     float64      `json:"withdrawal_volume_ml,omitempty" yaml:"withdrawal_volume_ml,omitempty"`
}

// Mass returns the drug quantity in one vial (mg or units).
func (v VialDescriptor) Mass() float64 {
	if v.StrengthUnit == StrengthMgPerML {
		return v.StrengthValue * v.VolumeML
	}
	return v.StrengthValue
}

// DrawVolume returns the volume drawn from one fully used vial.
func (v VialDescriptor) DrawVolume() float64 {
	if v.StrengthUnit == StrengthMgPerML {
		return v.VolumeML
	}
	switch {
	case v.WithdrawalVolumeML > 0:
		return v.WithdrawalVolumeML
	case v.ReconstitutionVolumeML > 0:
		return v.ReconstitutionVolumeML
	default:
		return v.VolumeML
	}
}

// Concentration returns mass per mL of drawn solution, or 0 when the vial
// carries no usable volume.
func (v VialDescriptor) Concentration() float64 {
	if v.StrengthUnit == StrengthMgPerML {
		return v.StrengthValue
	}
	vol := v.DrawVolume()
	if vol <= 0 {
		return 0
	}
	return v.StrengthValue / vol
}

// Dose is an ordered quantity, either absolute or weight based.
type Dose struct {
	Value float64  `json:"value" yaml:"value"`
	Unit  DoseUnit `json:"unit" yaml:"unit"`
}

// DoseUnit is the unit of an ordered dose.
type DoseUnit string

const (
	DoseMg         DoseUnit = "mg"
	DoseMgPerKg    DoseUnit = "mg/kg"
	DoseUnits      DoseUnit = "units"
	DoseUnitsPerKg DoseUnit = "units/kg"
)

// Medication is a catalog record. The engine only reads it.
type Medication struct {
	Name               string           `json:"name" yaml:"name"`
	DosageForm         DosageForm       `json:"dosage_form" yaml:"dosage_form"`
	VialSizes          []VialDescriptor `json:"vial_sizes" yaml:"vial_sizes"`
	StandardDose       Dose             `json:"standard_dose" yaml:"standard_dose"`
	InfusionProtocol   *Protocol        `json:"infusion_protocol,omitempty" yaml:"infusion_protocol,omitempty"`
	OverfillOverrideML *float64         `json:"overfill_override_ml,omitempty" yaml:"overfill_override_ml,omitempty"`
	NoRemoval          bool             `json:"no_removal" yaml:"no_removal"`
	PrepMethod         PrepMethod       `json:"prep_method,omitempty" yaml:"prep_method,omitempty"`
	SpecialNotes       []string         `json:"special_notes,omitempty" yaml:"special_notes,omitempty"`
}

// Concentration returns the medication's working concentration taken from
// its first vial size. Catalog validation guarantees all concentration-style
// vial sizes agree.
func (m *Medication) Concentration() float64 {
	for _, v := range m.VialSizes {
		if c := v.Concentration(); c > 0 {
			return c
		}
	}
	return 0
}

// VialCount is one line of a vial combination.
type VialCount struct {
	Vial  VialDescriptor `json:"vial"`
	Count int            `json:"count"`
}

// VialCombination is one candidate answer of the vial resolver.
type VialCombination struct {
	Strategy           string      `json:"strategy"`
	Items              []VialCount `json:"items"`
	TotalVolumeML      float64     `json:"total_volume_ml"`
	TotalMassDelivered float64     `json:"total_mass_delivered"`
	WasteMass          float64     `json:"waste_mass"`
	WasteVolumeML      float64     `json:"waste_volume_ml"`
	VialTotalCount     int         `json:"vial_total_count"`
}

// StepKind tags an InfusionStep. The set is closed: every switch over it
// must handle all three kinds.
type StepKind string

const (
	StepRamp          StepKind = "ramp"
	StepUntilComplete StepKind = "untilComplete"
	StepFlush         StepKind = "flush"
)

// Known reports whether k is one of the defined step kinds.
func (k StepKind) Known() bool {
	switch k {
	case StepRamp, StepUntilComplete, StepFlush:
		return true
	default:
		return false
	}
}

// InfusionStep is one pump programming step.
type InfusionStep struct {
	Index       int      `json:"index" yaml:"index"`
	Kind        StepKind `json:"kind" yaml:"kind"`
	RateMLPerHr float64  `json:"rate_ml_per_hr" yaml:"rate_ml_per_hr"`
	DurationMin float64  `json:"duration_min" yaml:"duration_min"`
	VolumeML    float64  `json:"volume_ml" yaml:"volume_ml"`
}

// ReadonlyDuration reports whether the step's duration is derived rather
// than entered by the user.
func (s InfusionStep) ReadonlyDuration() bool {
	return s.Kind == StepUntilComplete || s.Kind == StepFlush
}

// PumpRate is the step's rate at pump display precision.
func (s InfusionStep) PumpRate() float64 {
	return RoundPumpRate(s.RateMLPerHr)
}

// ScheduleMode records how a schedule was generated.
type ScheduleMode string

const (
	ModeSimple   ScheduleMode = "simple"
	ModeProtocol ScheduleMode = "protocol"
)

// Schedule is an ordered list of infusion steps.
type Schedule struct {
	Mode             ScheduleMode   `json:"mode"`
	Steps            []InfusionStep `json:"steps"`
	TotalVolumeML    float64        `json:"total_volume_ml"`
	TotalDurationMin float64        `json:"total_duration_min"`
}

// StepResult is the validation outcome for one step.
type StepResult struct {
	StepIndex int      `json:"step_index"`
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors"`
	Warnings  []string `json:"warnings"`
}

// ValidationReport is produced fresh by every ValidateSchedule call.
type ValidationReport struct {
	Valid              bool         `json:"valid"`
	Steps              []StepResult `json:"steps"`
	TotalVolumeML      float64      `json:"total_volume_ml"`
	TotalDurationMin   float64      `json:"total_duration_min"`
	TotalVolumeError   string       `json:"total_volume_error,omitempty"`
	TotalDurationError string       `json:"total_duration_error,omitempty"`
	Errors             []string     `json:"errors,omitempty"`
}
