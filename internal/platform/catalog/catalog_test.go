package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/ehr/infusion/internal/domain/infusion"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var names []string
	for _, m := range c.List() {
		names = append(names, m.Name)
	}
	want := []string{
		"Heparin",
		"Immune Globulin 10%",
		"Immune Globulin 5%",
		"Infliximab",
		"Ondansetron ODT",
		"Rituximab",
		"Vancomycin",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("catalog names mismatch (-want +got):\n%s", diff)
	}
	if c.Len() != len(want) {
		t.Errorf("expected Len %d, got %d", len(want), c.Len())
	}
}

func TestLookup(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	med, err := c.Lookup("  rituximab ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if med.Name != "Rituximab" {
		t.Errorf("expected Rituximab, got %s", med.Name)
	}
	if med.PrepMethod != infusion.PrepStandard {
		t.Errorf("expected default prep method, got %q", med.PrepMethod)
	}

	if _, err := c.Lookup("aspirin"); !errors.Is(err, infusion.ErrMedicationNotFound) {
		t.Errorf("expected ErrMedicationNotFound, got %v", err)
	}
}

func TestDefault_Rules(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rules := func(name string) infusion.Rules {
		t.Helper()
		med, err := c.Lookup(name)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return c.Adapter().Rules(med)
	}

	ivig5 := rules("Immune Globulin 5%")
	if ivig5.Transform != infusion.Double() {
		t.Errorf("expected IVIG 5%% rates doubled, got %+v", ivig5.Transform)
	}
	if ivig5.Protocol == nil || ivig5.Protocol.Name != "ivig-standard" {
		t.Errorf("expected ivig-standard protocol, got %+v", ivig5.Protocol)
	}
	if !ivig5.NoRemoval {
		t.Error("expected IVIG 5% to skip removal")
	}

	ritux := rules("Rituximab")
	if ritux.Protocol == nil || ritux.Protocol.Name != "rituximab-first-infusion" {
		t.Errorf("expected inline protocol, got %+v", ritux.Protocol)
	}
	if ritux.CompanionNote == "" {
		t.Error("expected a companion note")
	}

	if r := rules("Vancomycin"); r.RemovalMinBagML != 250 || r.Protocol != nil {
		t.Errorf("unexpected vancomycin rules: %+v", r)
	}
	if r := rules("Heparin"); r.Protocol == nil || r.Protocol.RateUnit != infusion.RateUnitsPerKgHr {
		t.Errorf("unexpected heparin rules: %+v", r)
	}
}

func TestDefault_EveryMedicationPrepares(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := infusion.NewService(c.Adapter(), zerolog.Nop())

	for _, med := range c.List() {
		if med.DosageForm == infusion.FormOral {
			continue
		}
		t.Run(med.Name, func(t *testing.T) {
			o := infusion.Order{
				Medication:    med,
				WeightKg:      70,
				BagSizeML:     250,
				FlushVolumeML: 10,
				TotalTimeMin:  120,
			}
			prep, err := svc.Prepare(o)
			if err != nil {
				t.Fatalf("simple: unexpected error: %v", err)
			}
			if !prep.Validation.Valid {
				t.Errorf("simple: invalid schedule %+v", prep.Validation)
			}

			if svc.Rules(med).Protocol == nil {
				return
			}
			o.UseProtocol = true
			prep, err = svc.Prepare(o)
			if err != nil {
				t.Fatalf("protocol: unexpected error: %v", err)
			}
			if !prep.Validation.Valid {
				t.Errorf("protocol: invalid schedule %+v", prep.Validation)
			}
		})
	}
}

func TestParse_ZeroOverfillOverride(t *testing.T) {
	doc := `
medications:
  - name: Premixed
    dosage_form: solution
    overfill_override_ml: 0
    vial_sizes: [{strength_value: 2, strength_unit: mg/mL, volume_ml: 10}]
  - name: Overridden
    dosage_form: solution
    vial_sizes: [{strength_value: 2, strength_unit: mg/mL, volume_ml: 10}]
  - name: Plain
    dosage_form: solution
    vial_sizes: [{strength_value: 2, strength_unit: mg/mL, volume_ml: 10}]
overrides:
  - {medication: Overridden, overfill_ml: 0}
`
	c, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name string
		want float64
	}{
		{"Premixed", 0},
		{"Overridden", 0},
		{"Plain", 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			med, err := c.Lookup(tt.name)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, err := infusion.OverfillML(250, c.Adapter().Rules(med))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v mL overfill in a 250 mL bag, got %v", tt.want, got)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{
			name: "duplicate medication",
			doc: `
medications:
  - {name: Heparin, dosage_form: solution, vial_sizes: [{strength_value: 5000, strength_unit: units, volume_ml: 1}]}
  - {name: heparin, dosage_form: solution, vial_sizes: [{strength_value: 5000, strength_unit: units, volume_ml: 1}]}
`,
		},
		{
			name: "protocol without until-complete step",
			doc: `
protocols:
  - name: broken
    rate_unit: mL/hr
    steps:
      - {rate: 50, duration_min: 30}
`,
			want: infusion.ErrInvalidProtocol,
		},
		{
			name: "mixed vial concentrations",
			doc: `
medications:
  - name: Mixed
    dosage_form: solution
    vial_sizes:
      - {strength_value: 2, strength_unit: mg/mL, volume_ml: 10}
      - {strength_value: 4, strength_unit: mg/mL, volume_ml: 5}
`,
			want: infusion.ErrInconsistentConcentration,
		},
		{
			name: "override names unknown protocol",
			doc: `
overrides:
  - {medication: Heparin, protocol: missing}
`,
			want: infusion.ErrInvalidProtocol,
		},
		{
			name: "unknown dosage form",
			doc: `
medications:
  - {name: Patch, dosage_form: transdermal, vial_sizes: [{strength_value: 5, strength_unit: mg, volume_ml: 1}]}
`,
			want: infusion.ErrUnsupportedForm,
		},
		{
			name: "not yaml",
			doc:  "medications: [unterminated",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Len() == 0 {
		t.Error("expected the built-in catalog for an empty path")
	}

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := `
medications:
  - name: Cefazolin
    dosage_form: lyophilized
    standard_dose: {value: 2000, unit: mg}
    vial_sizes:
      - {strength_value: 1000, strength_unit: mg, volume_ml: 10, reconstitution_volume_ml: 10}
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	c, err = Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 medication, got %d", c.Len())
	}
	med, err := c.Lookup("cefazolin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if med.Concentration() != 100 {
		t.Errorf("expected 100 mg/mL after reconstitution, got %v", med.Concentration())
	}

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read catalog") {
		t.Errorf("expected a read error, got %v", err)
	}
}
