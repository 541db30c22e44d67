package infusion

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDose               = errors.New("invalid dose")
	ErrInvalidUnit               = errors.New("invalid unit")
	ErrDivisionByZero            = errors.New("division by zero")
	ErrUnknownBagSize            = errors.New("unknown bag size")
	ErrOverAllocated             = errors.New("schedule steps exceed total volume")
	ErrInvalidProtocol           = errors.New("invalid infusion protocol")
	ErrInconsistentConcentration = errors.New("vial sizes have different concentrations")
	ErrUnsupportedForm           = errors.New("dosage form cannot be infused")
	ErrMedicationNotFound        = errors.New("medication not found")

	// ErrScheduleInconsistent signals a builder bug, not bad user input.
	ErrScheduleInconsistent = errors.New("generated schedule failed its own consistency check")
)

// OverAllocatedError is returned when fixed ramp and flush volumes leave a
// negative remainder for the until-complete step.
type OverAllocatedError struct {
	// DeficitML is the (negative) remaining volume.
	DeficitML float64
}

func (e *OverAllocatedError) Error() string {
	return fmt.Sprintf("%s: remaining volume %.1f mL", ErrOverAllocated.Error(), e.DeficitML)
}

func (e *OverAllocatedError) Is(target error) bool {
	return target == ErrOverAllocated
}
