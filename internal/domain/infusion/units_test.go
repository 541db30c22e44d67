package infusion

import (
	"errors"
	"math"
	"testing"
)

func TestMassRateToVolumeRate(t *testing.T) {
	tests := []struct {
		name   string
		value  float64
		unit   RateUnit
		conc   float64
		weight float64
		want   float64
		err    error
	}{
		{"mL/hr passes through", 120, RateMLPerHr, 0, 0, 120, nil},
		{"mL/kg/hr scales by weight", 0.5, RateMLPerKgHr, 0, 70, 35, nil},
		{"mg/kg/hr", 2, RateMgPerKgHr, 4, 70, 35, nil},
		{"units/kg/hr", 18, RateUnitsPerKgHr, 100, 80, 14.4, nil},
		{"mg/hr", 50, RateMgPerHr, 2, 0, 25, nil},
		{"units/hr", 1000, RateUnitsPerHr, 100, 0, 10, nil},
		{"zero rate", 0, RateMLPerHr, 0, 0, 0, nil},
		{"negative rate", -1, RateMLPerHr, 0, 0, 0, ErrInvalidDose},
		{"per-kg without weight", 2, RateMgPerKgHr, 4, 0, 0, ErrInvalidDose},
		{"mass rate without concentration", 2, RateMgPerHr, 0, 0, 0, ErrInvalidUnit},
		{"negative concentration", 2, RateMgPerKgHr, -1, 70, 0, ErrInvalidUnit},
		{"unknown unit", 2, RateUnit("mcg/min"), 1, 70, 0, ErrInvalidUnit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MassRateToVolumeRate(tt.value, tt.unit, tt.conc, tt.weight)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %v mL/hr, got %v", tt.want, got)
			}
		})
	}
}

func TestDoseToVolume(t *testing.T) {
	got, err := DoseToVolume(100, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 50 {
		t.Errorf("expected 50 mL, got %v", got)
	}

	if _, err := DoseToVolume(100, 0); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
	if _, err := DoseToVolume(-1, 2); !errors.Is(err, ErrInvalidDose) {
		t.Errorf("expected ErrInvalidDose, got %v", err)
	}
}

func TestVolumeToDose_InvertsDoseToVolume(t *testing.T) {
	for _, dose := range []float64{0.5, 7, 100, 1234.5} {
		vol, err := DoseToVolume(dose, 2.5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		back, err := VolumeToDose(vol, 2.5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(back-dose) > 1e-9 {
			t.Errorf("dose %v came back as %v", dose, back)
		}
	}
	if _, err := VolumeToDose(-1, 2); !errors.Is(err, ErrInvalidDose) {
		t.Errorf("expected ErrInvalidDose, got %v", err)
	}
}

func TestTotalDose(t *testing.T) {
	tests := []struct {
		name   string
		dose   Dose
		weight float64
		want   float64
		err    error
	}{
		{"absolute mg", Dose{Value: 700, Unit: DoseMg}, 0, 700, nil},
		{"absolute units", Dose{Value: 25000, Unit: DoseUnits}, 0, 25000, nil},
		{"missing unit means mg", Dose{Value: 8}, 0, 8, nil},
		{"mg/kg", Dose{Value: 5, Unit: DoseMgPerKg}, 70, 350, nil},
		{"units/kg", Dose{Value: 80, Unit: DoseUnitsPerKg}, 50, 4000, nil},
		{"per-kg without weight", Dose{Value: 5, Unit: DoseMgPerKg}, 0, 0, ErrInvalidDose},
		{"zero dose", Dose{Value: 0, Unit: DoseMg}, 70, 0, ErrInvalidDose},
		{"unknown unit", Dose{Value: 1, Unit: "g"}, 70, 0, ErrInvalidUnit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TotalDose(tt.dose, tt.weight)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRoundPumpRate(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{166.666, 166.7},
		{160, 160},
		{0.04, 0},
		{999.94, 999.9},
		{1234.5, 1235},
		{1500.2, 1500},
	}
	for _, tt := range tests {
		if got := RoundPumpRate(tt.in); got != tt.want {
			t.Errorf("RoundPumpRate(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
