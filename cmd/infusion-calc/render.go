package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ehr/infusion/internal/domain/infusion"
)

func printCatalog(w io.Writer, meds []*infusion.Medication, svc *infusion.Service) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tFORM\tVIALS\tSTANDARD DOSE\tPROTOCOL")
	for _, m := range meds {
		protocol := "-"
		if p := svc.Rules(m).Protocol; p != nil {
			protocol = p.Name
		}
		vials := make([]string, 0, len(m.VialSizes))
		for _, v := range m.VialSizes {
			vials = append(vials, formatVial(v))
		}
		if len(vials) == 0 {
			vials = append(vials, "-")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.Name, m.DosageForm, strings.Join(vials, ", "),
			formatDose(m.StandardDose.Value, m.StandardDose.Unit), protocol)
	}
	tw.Flush()
}

func printVialOptions(w io.Writer, combos []infusion.VialCombination) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OPTION\tVIALS\tCOUNT\tVOLUME (mL)\tWASTE")
	for i, c := range combos {
		items := make([]string, 0, len(c.Items))
		for _, it := range c.Items {
			items = append(items, fmt.Sprintf("%d x %s", it.Count, formatVial(it.Vial)))
		}
		fmt.Fprintf(tw, "%d (%s)\t%s\t%d\t%.1f\t%.2f (%.1f mL)\n", i+1, c.Strategy, strings.Join(items, " + "),
			c.VialTotalCount, c.TotalVolumeML, c.WasteMass, c.WasteVolumeML)
	}
	tw.Flush()
}

func printPreparation(w io.Writer, p *infusion.Preparation) {
	fmt.Fprintf(w, "%s\n", p.Medication)
	fmt.Fprintf(w, "  Dose:           %s\n", formatDose(p.TotalDose, p.DoseUnit))
	fmt.Fprintf(w, "  Concentration:  %.2f per mL\n", p.ConcentrationMgML)
	fmt.Fprintf(w, "  Drug volume:    %.1f mL\n", p.DrugVolumeML)
	fmt.Fprintf(w, "  Overfill:       %.1f mL\n", p.OverfillML)
	fmt.Fprintf(w, "  Remove:         %.1f mL\n", p.RemovalML)
	fmt.Fprintf(w, "  Final volume:   %.1f mL\n", p.FinalVolumeML)
	if p.CompanionNote != "" {
		fmt.Fprintf(w, "  Note:           %s\n", p.CompanionNote)
	}
	for _, n := range p.Notes {
		fmt.Fprintf(w, "  Note:           %s\n", n)
	}

	fmt.Fprintln(w, "\nVials")
	printVialOptions(w, p.VialOptions)

	fmt.Fprintf(w, "\nPump schedule (%s)\n", p.Schedule.Mode)
	printSteps(w, p.Schedule.Steps)
	fmt.Fprintf(w, "Total: %.1f mL over %.1f min\n\n", p.Schedule.TotalVolumeML, p.Schedule.TotalDurationMin)
	printReport(w, p.Validation)
}

func printSteps(w io.Writer, steps []infusion.InfusionStep) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tTYPE\tRATE (mL/hr)\tDURATION (min)\tVOLUME (mL)")
	for _, s := range steps {
		duration := fmt.Sprintf("%.2f", s.DurationMin)
		if s.ReadonlyDuration() {
			duration += " *"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.2f\n", s.Index, s.Kind, formatRate(s.PumpRate()), duration, s.VolumeML)
	}
	tw.Flush()
}

func printReport(w io.Writer, r infusion.ValidationReport) {
	if r.Valid {
		fmt.Fprintln(w, "Schedule valid")
	} else {
		fmt.Fprintln(w, "Schedule INVALID")
	}
	for _, s := range r.Steps {
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  step %d: %s\n", s.StepIndex, e)
		}
		for _, warn := range s.Warnings {
			fmt.Fprintf(w, "  step %d (warning): %s\n", s.StepIndex, warn)
		}
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
	if r.TotalVolumeError != "" {
		fmt.Fprintf(w, "  %s\n", r.TotalVolumeError)
	}
	if r.TotalDurationError != "" {
		fmt.Fprintf(w, "  %s\n", r.TotalDurationError)
	}
}

func printBatch(w io.Writer, results []infusion.BatchResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tMEDICATION\tDOSE\tREMOVE (mL)\tSTEPS\tDURATION (min)\tSTATUS")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t%s\n", r.OrderID, r.Error)
			continue
		}
		p := r.Preparation
		status := "ok"
		if !p.Validation.Valid {
			status = "invalid schedule"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%d\t%.1f\t%s\n", r.OrderID, p.Medication, formatDose(p.TotalDose, p.DoseUnit),
			p.RemovalML, len(p.Schedule.Steps), p.Schedule.TotalDurationMin, status)
	}
	tw.Flush()
}

func formatVial(v infusion.VialDescriptor) string {
	unit := "mg"
	if v.StrengthUnit == infusion.StrengthUnits {
		unit = "units"
	}
	return fmt.Sprintf("%s %s/%s mL", trimFloat(v.Mass()), unit, trimFloat(v.DrawVolume()))
}

func formatDose(value float64, unit infusion.DoseUnit) string {
	if unit == "" {
		unit = infusion.DoseMg
	}
	return fmt.Sprintf("%s %s", trimFloat(value), unit)
}

// formatRate shows pump precision: one decimal below 1000 mL/hr.
func formatRate(rate float64) string {
	if rate < 1000 {
		return fmt.Sprintf("%.1f", rate)
	}
	return fmt.Sprintf("%.0f", rate)
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
