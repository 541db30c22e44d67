package infusion

import (
	"fmt"
	"math"
)

// ValidationTarget holds the totals a schedule must add up to. A zero
// DurationMin skips the total time check.
type ValidationTarget struct {
	VolumeML    float64
	DurationMin float64
}

// ValidateSchedule checks every step against the identity for its kind and
// the schedule against its totals. It never stops at the first problem.
func ValidateSchedule(steps []InfusionStep, target ValidationTarget) ValidationReport {
	report := ValidationReport{
		Valid:  true,
		Steps:  make([]StepResult, 0, len(steps)),
		Errors: []string{},
	}
	if len(steps) == 0 {
		report.Valid = false
		report.Errors = append(report.Errors, "Schedule has no steps")
		return report
	}

	untilComplete := 0
	last := len(steps) - 1
	for i, s := range steps {
		res := validateStep(s)
		if s.Index == 0 {
			res.StepIndex = i + 1
		}
		if s.Kind == StepUntilComplete {
			untilComplete++
		}
		if s.Kind == StepFlush && i != last {
			res.Errors = append(res.Errors, "Flush step must be the last step")
		}
		res.Valid = len(res.Errors) == 0
		if !res.Valid {
			report.Valid = false
		}
		report.Steps = append(report.Steps, res)
		report.TotalVolumeML += s.VolumeML
		report.TotalDurationMin += s.DurationMin
	}
	report.TotalVolumeML = round2(report.TotalVolumeML)
	report.TotalDurationMin = round2(report.TotalDurationMin)

	if untilComplete > 1 {
		report.Valid = false
		report.Errors = append(report.Errors, fmt.Sprintf("Only one until-complete step is allowed, found %d", untilComplete))
	}
	if target.VolumeML > 0 && exceeds(report.TotalVolumeML-target.VolumeML, volumeTolerance) {
		report.Valid = false
		report.TotalVolumeError = fmt.Sprintf("Total step volume %.1f mL must equal total infusion volume %.1f mL", report.TotalVolumeML, target.VolumeML)
	}
	if target.DurationMin > 0 && exceeds(report.TotalDurationMin-target.DurationMin, durationTolerance) {
		report.Valid = false
		report.TotalDurationError = fmt.Sprintf("Total step duration %.1f min must equal total infusion time %.1f min", report.TotalDurationMin, target.DurationMin)
	}
	return report
}

func validateStep(s InfusionStep) StepResult {
	res := StepResult{StepIndex: s.Index, Errors: []string{}, Warnings: []string{}}
	if !s.Kind.Known() {
		res.Errors = append(res.Errors, fmt.Sprintf("Unknown step type %q", s.Kind))
		return res
	}

	switch s.Kind {
	case StepRamp:
		if s.RateMLPerHr <= 0 {
			res.Errors = append(res.Errors, "Rate must be greater than 0")
		}
		if s.DurationMin <= 0 {
			res.Errors = append(res.Errors, "Duration must be greater than 0")
		}
		if s.VolumeML <= 0 {
			res.Errors = append(res.Errors, "Volume must be greater than 0")
		}
		if len(res.Errors) == 0 {
			expected := s.RateMLPerHr * s.DurationMin / 60
			if exceeds(s.VolumeML-expected, volumeTolerance) {
				res.Errors = append(res.Errors, fmt.Sprintf("Volume must equal (Rate × Duration) ÷ 60. Expected: %.1f mL", expected))
			}
		}
	case StepUntilComplete:
		if s.RateMLPerHr <= 0 {
			res.Errors = append(res.Errors, "Rate must be greater than 0")
		}
		if s.VolumeML <= 0 {
			res.Errors = append(res.Errors, "Volume calculated as 0. Check other steps")
		}
		checkDerivedDuration(s, &res)
	case StepFlush:
		if s.RateMLPerHr <= 0 {
			res.Errors = append(res.Errors, "Rate must be greater than 0")
		}
		if s.VolumeML <= 0 {
			res.Errors = append(res.Errors, "Flush volume must be greater than 0")
		}
		checkDerivedDuration(s, &res)
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// checkDerivedDuration warns when a derived duration no longer matches its
// step's volume and rate. It is a display concern, never an error.
func checkDerivedDuration(s InfusionStep, res *StepResult) {
	if s.RateMLPerHr <= 0 || s.VolumeML <= 0 {
		return
	}
	want := s.VolumeML / s.RateMLPerHr * 60
	if exceeds(s.DurationMin-want, durationTolerance) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Duration recalculated as %.1f min", want))
	}
}

// exceeds reports |diff| > tol, with slack for float error at the boundary.
func exceeds(diff, tol float64) bool {
	return math.Abs(diff) > tol+1e-9
}
