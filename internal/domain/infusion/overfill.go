package infusion

import (
	"fmt"
	"sort"
)

// standardOverfill maps nominal bag sizes (mL) to manufacturer overfill (mL).
var standardOverfill = map[float64]float64{
	50:   5,
	100:  7,
	150:  25,
	250:  30,
	500:  40,
	1000: 60,
}

// BagSizes returns the canonical bag sizes in ascending order.
func BagSizes() []float64 {
	sizes := make([]float64, 0, len(standardOverfill))
	for s := range standardOverfill {
		sizes = append(sizes, s)
	}
	sort.Float64s(sizes)
	return sizes
}

// OverfillML returns the overfill for bagSizeML. A medication override wins
// over the table and also covers bag sizes the table does not know.
func OverfillML(bagSizeML float64, rules Rules) (float64, error) {
	if bagSizeML <= 0 {
		return 0, fmt.Errorf("%w: bag size %v mL", ErrInvalidDose, bagSizeML)
	}
	if rules.OverfillML != nil {
		return *rules.OverfillML, nil
	}
	overfill, ok := standardOverfill[bagSizeML]
	if !ok {
		return 0, fmt.Errorf("%w: %v mL", ErrUnknownBagSize, bagSizeML)
	}
	return overfill, nil
}

// RemovalInput holds the volumes needed to compute a bag removal.
type RemovalInput struct {
	DrugVolumeML float64
	OverfillML   float64
	BagSizeML    float64
}

// RemovalML returns the diluent volume to withdraw before adding drug, so
// the bag ends at its nominal size. No fluid is withdrawn for no-removal
// medications or for bags below the medication's removal threshold.
func RemovalML(in RemovalInput, rules Rules) (float64, error) {
	if in.DrugVolumeML < 0 || in.OverfillML < 0 {
		return 0, fmt.Errorf("%w: drug volume %v mL, overfill %v mL", ErrInvalidDose, in.DrugVolumeML, in.OverfillML)
	}
	if rules.NoRemoval {
		return 0, nil
	}
	if rules.RemovalMinBagML > 0 && in.BagSizeML < rules.RemovalMinBagML {
		return 0, nil
	}
	return in.DrugVolumeML + in.OverfillML, nil
}

// FinalVolumeML is the volume in the bag after removal and drug addition.
// Empty-bag preparations hold only the drug.
func FinalVolumeML(in RemovalInput, removalML float64, method PrepMethod) float64 {
	if method == PrepEmptyBag {
		return in.DrugVolumeML
	}
	return in.BagSizeML + in.OverfillML - removalML + in.DrugVolumeML
}
