// Package catalog provides the medication reference data the infusion engine
// reads: medication records, named ramp protocols and the per-medication
// override table. Records are decoded from YAML; the built-in catalog is
// embedded in the binary.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ehr/infusion/internal/domain/infusion"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// document is the on-disk layout of a catalog file.
type document struct {
	Protocols   []*infusion.Protocol  `yaml:"protocols"`
	Medications []infusion.Medication `yaml:"medications"`
	Overrides   []infusion.Override   `yaml:"overrides"`
}

// Catalog is an immutable, validated set of medications.
type Catalog struct {
	meds    map[string]*infusion.Medication
	order   []*infusion.Medication
	adapter *infusion.ProtocolAdapter
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	c, err := Parse(defaultCatalog)
	if err != nil {
		return nil, fmt.Errorf("built-in catalog: %w", err)
	}
	return c, nil
}

// Load reads a catalog file. An empty path selects the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	adapter, err := infusion.NewProtocolAdapter(doc.Overrides, doc.Protocols)
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		meds:    make(map[string]*infusion.Medication, len(doc.Medications)),
		adapter: adapter,
	}
	for i := range doc.Medications {
		med := &doc.Medications[i]
		if med.PrepMethod == "" {
			med.PrepMethod = infusion.PrepStandard
		}
		if err := med.Validate(); err != nil {
			return nil, err
		}
		key := normalize(med.Name)
		if _, dup := c.meds[key]; dup {
			return nil, fmt.Errorf("duplicate medication %q", med.Name)
		}
		c.meds[key] = med
		c.order = append(c.order, med)
	}
	sort.Slice(c.order, func(i, j int) bool {
		return normalize(c.order[i].Name) < normalize(c.order[j].Name)
	})
	return c, nil
}

// Lookup finds a medication by name, ignoring case and surrounding space.
func (c *Catalog) Lookup(name string) (*infusion.Medication, error) {
	med, ok := c.meds[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", infusion.ErrMedicationNotFound, name)
	}
	return med, nil
}

// List returns all medications sorted by name.
func (c *Catalog) List() []*infusion.Medication {
	out := make([]*infusion.Medication, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of medications.
func (c *Catalog) Len() int {
	return len(c.order)
}

// Adapter returns the protocol adapter built from the catalog's overrides.
func (c *Catalog) Adapter() *infusion.ProtocolAdapter {
	return c.adapter
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
