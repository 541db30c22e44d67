package infusion

import (
	"fmt"
	"math"
)

// DefaultFlushML is the standard line flush volume.
const DefaultFlushML = 10

// durationTolerance is how far step durations may drift from the target
// total time, in minutes.
const durationTolerance = 1.0

// SimpleParams are the inputs of a single-rate schedule.
type SimpleParams struct {
	TotalVolumeML float64
	PrimeVolumeML float64
	FlushVolumeML float64
	TotalTimeMin  float64
}

// BuildSimple builds a two step schedule: the main volume and a flush, both
// at the single rate that infuses everything but the prime volume in
// TotalTimeMin. The rate is stored unrounded.
func BuildSimple(p SimpleParams) (*Schedule, error) {
	if p.TotalVolumeML <= 0 {
		return nil, fmt.Errorf("%w: total volume %v mL", ErrInvalidDose, p.TotalVolumeML)
	}
	if p.TotalTimeMin <= 0 {
		return nil, fmt.Errorf("%w: total time %v min", ErrInvalidDose, p.TotalTimeMin)
	}
	if p.PrimeVolumeML < 0 || p.FlushVolumeML < 0 {
		return nil, fmt.Errorf("%w: prime %v mL, flush %v mL", ErrInvalidDose, p.PrimeVolumeML, p.FlushVolumeML)
	}

	infused := p.TotalVolumeML - p.PrimeVolumeML
	mainVolume := infused - p.FlushVolumeML
	if mainVolume < 0 {
		return nil, &OverAllocatedError{DeficitML: round2(mainVolume)}
	}
	if mainVolume == 0 {
		return nil, fmt.Errorf("%w: no volume left after prime and flush", ErrInvalidDose)
	}

	// Steps keep the exact rate so every duration equals volume/rate*60 on
	// the step itself; PumpRate rounds it for the pump display.
	rate := infused / (p.TotalTimeMin / 60)
	mainVolume = round2(mainVolume)

	steps := []InfusionStep{{
		Kind:        StepUntilComplete,
		RateMLPerHr: rate,
		VolumeML:    mainVolume,
		DurationMin: derivedDuration(mainVolume, rate),
	}}
	if p.FlushVolumeML > 0 {
		steps = append(steps, InfusionStep{
			Kind:        StepFlush,
			RateMLPerHr: rate,
			VolumeML:    round2(p.FlushVolumeML),
			DurationMin: derivedDuration(p.FlushVolumeML, rate),
		})
	}

	s := newSchedule(ModeSimple, steps)
	if math.Abs(s.TotalDurationMin-p.TotalTimeMin) > durationTolerance {
		return nil, fmt.Errorf("%w: steps last %.2f min, target %.2f min", ErrScheduleInconsistent, s.TotalDurationMin, p.TotalTimeMin)
	}
	return s, nil
}

// ProtocolParams are the inputs of a protocol-driven schedule.
type ProtocolParams struct {
	Protocol *Protocol
	Rules    Rules

	TotalVolumeML float64
	PrimeVolumeML float64
	// FlushVolumeML is the caller's flush volume, used when neither the
	// medication rules nor the protocol fix one.
	FlushVolumeML float64

	WeightKg             float64
	DoseMass             float64
	ConcentrationMgPerML float64
}

// BuildFromProtocol expands a ramp protocol into pump steps. Fixed steps get
// volume rate*duration/60, the until-complete step takes what is left after
// the fixed steps and the flush, and the flush runs last at the final rate.
func BuildFromProtocol(p ProtocolParams) (*Schedule, error) {
	if p.Protocol == nil {
		return nil, fmt.Errorf("%w: no protocol", ErrInvalidProtocol)
	}
	if err := p.Protocol.Validate(); err != nil {
		return nil, err
	}
	if p.TotalVolumeML <= 0 {
		return nil, fmt.Errorf("%w: total volume %v mL", ErrInvalidDose, p.TotalVolumeML)
	}
	if p.PrimeVolumeML < 0 || p.PrimeVolumeML >= p.TotalVolumeML {
		return nil, fmt.Errorf("%w: prime volume %v mL", ErrInvalidDose, p.PrimeVolumeML)
	}

	unit := p.Protocol.RateUnit
	if p.Rules.RateUnit != "" {
		unit = p.Rules.RateUnit
	}
	if unit == "" {
		unit = RateMLPerHr
	}
	bandKey := p.WeightKg
	if p.Protocol.BandBasis == BandByDose {
		bandKey = p.DoseMass
	}

	flush := 0.0
	if p.Protocol.Flush {
		flush = firstPositive(p.Rules.FlushVolumeML, p.Protocol.FlushVolumeML, p.FlushVolumeML, DefaultFlushML)
	}

	infused := p.TotalVolumeML - p.PrimeVolumeML
	steps := make([]InfusionStep, 0, len(p.Protocol.Steps)+1)
	allocated := 0.0
	for i, ps := range p.Protocol.Steps {
		rate, err := pumpRate(ps, bandKey, unit, p)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if ps.UntilComplete {
			// Validate guarantees this is the last protocol step.
			remaining := infused - allocated - flush
			if remaining < -capacityEpsilon {
				return nil, &OverAllocatedError{DeficitML: round2(remaining)}
			}
			remaining = math.Max(round2(remaining), 0)
			steps = append(steps, InfusionStep{
				Kind:        StepUntilComplete,
				RateMLPerHr: rate,
				VolumeML:    remaining,
				DurationMin: round2(remaining / rate * 60),
			})
			continue
		}
		volume := round2(rate * ps.DurationMin / 60)
		allocated += volume
		steps = append(steps, InfusionStep{
			Kind:        StepRamp,
			RateMLPerHr: rate,
			VolumeML:    volume,
			DurationMin: ps.DurationMin,
		})
	}

	if flush > 0 {
		last := steps[len(steps)-1].RateMLPerHr
		steps = append(steps, InfusionStep{
			Kind:        StepFlush,
			RateMLPerHr: last,
			VolumeML:    flush,
			DurationMin: round2(flush / last * 60),
		})
	}
	return newSchedule(ModeProtocol, steps), nil
}

// pumpRate resolves one protocol step to a pump rate in mL/hr: band lookup,
// unit conversion, the medication's rate transform, display rounding.
func pumpRate(ps ProtocolStep, bandKey float64, unit RateUnit, p ProtocolParams) (float64, error) {
	value, err := ps.StepRate(bandKey)
	if err != nil {
		return 0, err
	}
	mlPerHr, err := MassRateToVolumeRate(value, unit, p.ConcentrationMgPerML, p.WeightKg)
	if err != nil {
		return 0, err
	}
	mlPerHr, err = p.Rules.Transform.Apply(mlPerHr)
	if err != nil {
		return 0, err
	}
	rate := RoundPumpRate(mlPerHr)
	if rate <= 0 {
		return 0, fmt.Errorf("%w: rate rounds to %v mL/hr", ErrInvalidProtocol, rate)
	}
	return rate, nil
}

// Recalculate refreshes the derived fields of an edited schedule: the
// until-complete volume absorbs whatever the other steps leave of
// infusedVolumeML, and derived durations follow their step's volume and
// rate. Steps are renumbered from 1. The input slice is not modified.
func Recalculate(steps []InfusionStep, infusedVolumeML float64) []InfusionStep {
	out := make([]InfusionStep, len(steps))
	copy(out, steps)

	fixed := 0.0
	for _, s := range out {
		if s.Kind != StepUntilComplete {
			fixed += s.VolumeML
		}
	}
	for i := range out {
		s := &out[i]
		s.Index = i + 1
		switch s.Kind {
		case StepUntilComplete:
			s.VolumeML = math.Max(round2(infusedVolumeML-fixed), 0)
			s.DurationMin = derivedDuration(s.VolumeML, s.RateMLPerHr)
		case StepFlush:
			s.DurationMin = derivedDuration(s.VolumeML, s.RateMLPerHr)
		case StepRamp:
		}
	}
	return out
}

func derivedDuration(volumeML, rate float64) float64 {
	if rate <= 0 {
		return 0
	}
	return round2(volumeML / rate * 60)
}

func newSchedule(mode ScheduleMode, steps []InfusionStep) *Schedule {
	s := &Schedule{Mode: mode, Steps: steps}
	for i := range s.Steps {
		s.Steps[i].Index = i + 1
		s.TotalVolumeML += s.Steps[i].VolumeML
		s.TotalDurationMin += s.Steps[i].DurationMin
	}
	s.TotalVolumeML = round2(s.TotalVolumeML)
	s.TotalDurationMin = round2(s.TotalDurationMin)
	return s
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
