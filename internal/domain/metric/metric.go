// Package metric describes the warehouse metrics a dashboard can show and
// how their values are formatted for tables.
package metric

import (
	"errors"
	"fmt"
	"math"
	"regexp"
)

// Format is the presentation class of a metric.
type Format string

const (
	FormatNumber  Format = "number"
	FormatPercent Format = "percent"
	FormatDollar  Format = "dollar"
)

// Rebills is rounded to whole units in Crystal Ball tables.
const Rebills = "Rebills"

var (
	ErrUnknownMetric = errors.New("unknown metric")
	ErrInvalidMetric = errors.New("invalid metric definition")
)

// identifier matches the column names that may be interpolated into SQL.
var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Definition describes one metric column.
type Definition struct {
	Key     string `json:"key"`
	Display string `json:"display"`
	Format  Format `json:"format"`
	Suffix  string `json:"suffix,omitempty"`
}

// Catalog holds metric definitions in declaration order.
type Catalog struct {
	defs  []Definition
	index map[string]int
}

// NewCatalog validates defs and builds a catalog.
func NewCatalog(defs []Definition) (*Catalog, error) {
	c := &Catalog{index: make(map[string]int, len(defs))}
	for _, d := range defs {
		if !identifier.MatchString(d.Key) {
			return nil, fmt.Errorf("%w: key %q is not a column identifier", ErrInvalidMetric, d.Key)
		}
		if _, dup := c.index[d.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrInvalidMetric, d.Key)
		}
		switch d.Format {
		case FormatNumber, FormatPercent, FormatDollar:
		case "":
			d.Format = FormatNumber
		default:
			return nil, fmt.Errorf("%w: %s has unknown format %q", ErrInvalidMetric, d.Key, d.Format)
		}
		if d.Display == "" {
			d.Display = d.Key
		}
		c.index[d.Key] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// Lookup returns the definition for key.
func (c *Catalog) Lookup(key string) (Definition, bool) {
	i, ok := c.index[key]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Keys returns every metric key in declaration order.
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.defs))
	for i, d := range c.defs {
		keys[i] = d.Key
	}
	return keys
}

// Definitions returns a copy of all definitions.
func (c *Catalog) Definitions() []Definition {
	return append([]Definition(nil), c.defs...)
}

// Validate returns ErrUnknownMetric for the first key not in the catalog.
func (c *Catalog) Validate(keys []string) error {
	for _, k := range keys {
		if _, ok := c.index[k]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownMetric, k)
		}
	}
	return nil
}

// DisplayName returns the display label with its suffix, or key itself
// for unknown metrics.
func (c *Catalog) DisplayName(key string) string {
	d, ok := c.Lookup(key)
	if !ok {
		return key
	}
	return d.Display + d.Suffix
}

// FormatValue converts a raw warehouse value for table display. Percent
// metrics are scaled by 100. Values are rounded half to even to two
// decimals except Rebills in Crystal Ball tables, which are whole numbers.
func (c *Catalog) FormatValue(key string, v *float64, crystalBall bool) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	format := FormatNumber
	if d, ok := c.Lookup(key); ok {
		format = d.Format
	}

	var out float64
	switch {
	case key == Rebills && crystalBall:
		out = math.RoundToEven(*v)
	case format == FormatPercent:
		out = round2(*v * 100)
	default:
		out = round2(*v)
	}
	return &out
}

func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
