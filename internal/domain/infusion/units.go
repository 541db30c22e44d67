package infusion

import (
	"fmt"
	"math"
)

// RateUnit is the unit a protocol or order expresses an infusion rate in.
type RateUnit string

const (
	RateMLPerHr      RateUnit = "mL/hr"
	RateMLPerKgHr    RateUnit = "mL/kg/hr"
	RateMgPerKgHr    RateUnit = "mg/kg/hr"
	RateUnitsPerKgHr RateUnit = "units/kg/hr"
	RateMgPerHr      RateUnit = "mg/hr"
	RateUnitsPerHr   RateUnit = "units/hr"
)

// volumeTolerance is the floating point slack allowed when comparing volumes.
const volumeTolerance = 0.1

// MassRateToVolumeRate converts a rate in unit into mL/hr.
func MassRateToVolumeRate(value float64, unit RateUnit, concentration, weightKg float64) (float64, error) {
	if value < 0 {
		return 0, fmt.Errorf("%w: rate %v is negative", ErrInvalidDose, value)
	}
	perKg := unit == RateMLPerKgHr || unit == RateMgPerKgHr || unit == RateUnitsPerKgHr
	if perKg && weightKg <= 0 {
		return 0, fmt.Errorf("%w: weight %v kg", ErrInvalidDose, weightKg)
	}

	switch unit {
	case RateMLPerHr:
		return value, nil
	case RateMLPerKgHr:
		return value * weightKg, nil
	case RateMgPerKgHr, RateUnitsPerKgHr:
		if concentration <= 0 {
			return 0, fmt.Errorf("%w: %s requires a positive concentration, got %v", ErrInvalidUnit, unit, concentration)
		}
		return value * weightKg / concentration, nil
	case RateMgPerHr, RateUnitsPerHr:
		if concentration <= 0 {
			return 0, fmt.Errorf("%w: %s requires a positive concentration, got %v", ErrInvalidUnit, unit, concentration)
		}
		return value / concentration, nil
	default:
		return 0, fmt.Errorf("%w: unrecognized rate unit %q", ErrInvalidUnit, unit)
	}
}

// DoseToVolume returns the volume of drug solution holding doseMass.
func DoseToVolume(doseMass, concentration float64) (float64, error) {
	if concentration == 0 {
		return 0, fmt.Errorf("%w: concentration is zero", ErrDivisionByZero)
	}
	if doseMass < 0 || concentration < 0 {
		return 0, fmt.Errorf("%w: dose %v at concentration %v", ErrInvalidDose, doseMass, concentration)
	}
	return doseMass / concentration, nil
}

// VolumeToDose is the inverse of DoseToVolume.
func VolumeToDose(volumeML, concentration float64) (float64, error) {
	if volumeML < 0 || concentration < 0 {
		return 0, fmt.Errorf("%w: volume %v at concentration %v", ErrInvalidDose, volumeML, concentration)
	}
	return volumeML * concentration, nil
}

// TotalDose resolves an ordered dose to an absolute quantity (mg or units).
func TotalDose(d Dose, weightKg float64) (float64, error) {
	if d.Value <= 0 {
		return 0, fmt.Errorf("%w: dose %v must be positive", ErrInvalidDose, d.Value)
	}
	switch d.Unit {
	case DoseMg, DoseUnits, "":
		return d.Value, nil
	case DoseMgPerKg, DoseUnitsPerKg:
		if weightKg <= 0 {
			return 0, fmt.Errorf("%w: weight %v kg", ErrInvalidDose, weightKg)
		}
		return d.Value * weightKg, nil
	default:
		return 0, fmt.Errorf("%w: unrecognized dose unit %q", ErrInvalidUnit, d.Unit)
	}
}

// RoundPumpRate rounds a rate to what an infusion pump can display:
// one decimal below 1000 mL/hr, whole numbers above.
func RoundPumpRate(rate float64) float64 {
	if math.Abs(rate) < 1000 {
		return Round1(rate)
	}
	return math.Round(rate)
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
