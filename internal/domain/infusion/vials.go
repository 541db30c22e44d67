package infusion

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// QuantityBasis selects whether a vial request is for drug mass or volume.
type QuantityBasis string

const (
	BasisMass   QuantityBasis = "mass"
	BasisVolume QuantityBasis = "volume"
)

const (
	StrategyLargestFirst = "largest-first"
	StrategySmallestOnly = "smallest-only"
)

// capacityEpsilon absorbs float error when dividing a quantity by a vial
// capacity, so 0.3/0.1 counts as three vials rather than two plus a filler.
const capacityEpsilon = 1e-9

// ResolveVials returns vial combinations that supply amount, best first.
//
// The primary candidate consumes the largest vials first and tops up any
// remainder with exactly one smallest vial. Medications with more than one
// vial size also get a smallest-only candidate. Candidates after the first
// are ordered by waste, then by vial count.
func ResolveVials(amount float64, basis QuantityBasis, vials []VialDescriptor, form DosageForm) ([]VialCombination, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, fmt.Errorf("%w: required %s %v must be positive", ErrInvalidDose, basis, amount)
	}
	if basis != BasisMass && basis != BasisVolume {
		return nil, fmt.Errorf("%w: unknown quantity basis %q", ErrInvalidUnit, basis)
	}
	if err := checkVials(vials, form); err != nil {
		return nil, err
	}

	sorted := sortVials(vials, basis)
	caps := make([]float64, len(sorted))
	for i, v := range sorted {
		caps[i] = vialCapacity(v, basis)
		if caps[i] <= 0 {
			return nil, fmt.Errorf("%w: vial size %d has no usable %s", ErrInvalidDose, i, basis)
		}
	}

	primary := greedyCounts(amount, caps)
	candidates := []VialCombination{newCombination(StrategyLargestFirst, sorted, primary, amount, basis)}

	if len(sorted) > 1 {
		last := len(sorted) - 1
		smallest := make([]int, len(sorted))
		smallest[last] = int(math.Ceil(amount/caps[last] - capacityEpsilon))
		if !sameCounts(primary, smallest) {
			candidates = append(candidates, newCombination(StrategySmallestOnly, sorted, smallest, amount, basis))
		}
	}

	rest := candidates[1:]
	sort.SliceStable(rest, func(i, j int) bool {
		if rest[i].WasteMass != rest[j].WasteMass {
			return rest[i].WasteMass < rest[j].WasteMass
		}
		return rest[i].VialTotalCount < rest[j].VialTotalCount
	})

	return candidates, nil
}

// greedyCounts takes whole vials largest first, then adds one vial of the
// smallest size if anything is left. caps must be sorted descending.
func greedyCounts(amount float64, caps []float64) []int {
	counts := make([]int, len(caps))
	remaining := amount
	for i, c := range caps {
		n := int(math.Floor(remaining/c + capacityEpsilon))
		if n > 0 {
			counts[i] = n
			remaining -= float64(n) * c
		}
	}
	last := len(caps) - 1
	if remaining/caps[last] > capacityEpsilon {
		counts[last]++
	}
	return counts
}

func checkVials(vials []VialDescriptor, form DosageForm) error {
	switch form {
	case FormSolution, FormLyophilized:
	case FormOral:
		return fmt.Errorf("%w: %s", ErrUnsupportedForm, form)
	default:
		return fmt.Errorf("%w: unknown dosage form %q", ErrUnsupportedForm, form)
	}
	if len(vials) == 0 {
		return fmt.Errorf("%w: no vial sizes", ErrUnsupportedForm)
	}

	conc := 0.0
	for _, v := range vials {
		if v.StrengthUnit != StrengthMgPerML {
			continue
		}
		if conc == 0 {
			conc = v.StrengthValue
			continue
		}
		if math.Abs(v.StrengthValue-conc) > capacityEpsilon*conc {
			return fmt.Errorf("%w: %v mg/mL vs %v mg/mL", ErrInconsistentConcentration, conc, v.StrengthValue)
		}
	}
	return nil
}

// sortVials orders vial sizes by capacity in the requested basis, largest
// first, so the greedy pass always fills with the biggest draw.
func sortVials(vials []VialDescriptor, basis QuantityBasis) []VialDescriptor {
	sorted := make([]VialDescriptor, len(vials))
	copy(sorted, vials)
	sort.SliceStable(sorted, func(i, j int) bool {
		return vialCapacity(sorted[i], basis) > vialCapacity(sorted[j], basis)
	})
	return sorted
}

func vialCapacity(v VialDescriptor, basis QuantityBasis) float64 {
	if basis == BasisVolume {
		return v.DrawVolume()
	}
	return v.Mass()
}

func newCombination(strategy string, vials []VialDescriptor, counts []int, amount float64, basis QuantityBasis) VialCombination {
	combo := VialCombination{Strategy: strategy, Items: []VialCount{}}
	for i, n := range counts {
		if n == 0 {
			continue
		}
		v := vials[i]
		combo.Items = append(combo.Items, VialCount{Vial: v, Count: n})
		combo.VialTotalCount += n
		combo.TotalVolumeML += float64(n) * v.DrawVolume()
		combo.TotalMassDelivered += float64(n) * v.Mass()
	}

	// Waste is measured in the request's basis and carried over to the other
	// one at the combination's average concentration.
	if basis == BasisMass {
		combo.WasteMass = nonNegative(combo.TotalMassDelivered - amount)
		if combo.TotalMassDelivered > 0 {
			combo.WasteVolumeML = combo.TotalVolumeML * combo.WasteMass / combo.TotalMassDelivered
		}
	} else {
		combo.WasteVolumeML = nonNegative(combo.TotalVolumeML - amount)
		if combo.TotalVolumeML > 0 {
			combo.WasteMass = combo.TotalMassDelivered * combo.WasteVolumeML / combo.TotalVolumeML
		}
	}
	return combo
}

func sameCounts(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func nonNegative(v float64) float64 {
	if v < 1e-9 {
		return 0
	}
	return v
}

// Validate checks a catalog record before the engine relies on it.
func (m *Medication) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: medication name is required", ErrInvalidProtocol)
	}
	if m.OverfillOverrideML != nil && *m.OverfillOverrideML < 0 {
		return fmt.Errorf("%w: %s overfill override %v mL", ErrInvalidDose, m.Name, *m.OverfillOverrideML)
	}
	if m.InfusionProtocol != nil {
		if err := m.InfusionProtocol.Validate(); err != nil {
			return fmt.Errorf("%s: %w", m.Name, err)
		}
	}
	if m.DosageForm == FormOral {
		return nil
	}
	if err := checkVials(m.VialSizes, m.DosageForm); err != nil {
		return fmt.Errorf("%s: %w", m.Name, err)
	}
	for i, v := range m.VialSizes {
		if v.Mass() <= 0 || v.DrawVolume() <= 0 {
			return fmt.Errorf("%w: %s vial size %d needs a positive strength and volume", ErrInvalidDose, m.Name, i+1)
		}
	}
	return nil
}
