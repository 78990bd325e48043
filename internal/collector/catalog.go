// Package collector implements per-device hardware counter sampling: counter
// name resolution, profile construction and caching, synchronous sample
// execution with record decoding, and session validity tracking across polls.
package collector

import (
	"fmt"

	"github.com/AMDResearch/pmc-collector/internal/rocm"
)

// Catalog resolves the counter namespace of one device. Every underlying
// query is expensive, so results are cached for the lifetime of the catalog:
// the supported-counter map once per device, dimensions once per counter, and
// the handle-to-name index lazily on first decode.
type Catalog struct {
	lib   rocm.Library
	agent rocm.AgentID

	supported map[string]rocm.CounterID
	dims      map[rocm.CounterID][]rocm.Dimension
	names     map[rocm.CounterID]string
}

func NewCatalog(lib rocm.Library, agent rocm.AgentID) *Catalog {
	return &Catalog{
		lib:   lib,
		agent: agent,
		dims:  make(map[rocm.CounterID][]rocm.Dimension),
	}
}

// SupportedCounters returns the device's name-to-handle map. The device
// query runs once; counter sets do not change at runtime.
func (c *Catalog) SupportedCounters() (map[string]rocm.CounterID, error) {
	if c.supported == nil {
		supported, err := c.lib.SupportedCounters(c.agent)
		if err != nil {
			return nil, fmt.Errorf("listing supported counters: %w", err)
		}
		c.supported = supported
	}
	return c.supported, nil
}

// Dimensions returns the ordered decomposition axes of a counter.
func (c *Catalog) Dimensions(counter rocm.CounterID) ([]rocm.Dimension, error) {
	if dims, ok := c.dims[counter]; ok {
		return dims, nil
	}
	dims, err := c.lib.CounterDimensions(counter)
	if err != nil {
		return nil, fmt.Errorf("querying dimensions of counter %d: %w", counter, err)
	}
	c.dims[counter] = dims
	return dims, nil
}

// InstanceCount is the number of records the counter contributes to one
// sample: the product of all of its dimension instance counts.
func (c *Catalog) InstanceCount(counter rocm.CounterID) (uint64, error) {
	dims, err := c.Dimensions(counter)
	if err != nil {
		return 0, err
	}
	count := uint64(1)
	for _, d := range dims {
		count *= d.InstanceCount
	}
	return count, nil
}

// DecodeName maps a record back to its counter's name. The inverse index is
// built from the supported-counter map on first use.
func (c *Catalog) DecodeName(rec rocm.Record) (string, error) {
	if c.names == nil {
		supported, err := c.SupportedCounters()
		if err != nil {
			return "", err
		}
		c.names = make(map[rocm.CounterID]string, len(supported))
		for name, id := range supported {
			c.names[id] = name
		}
	}
	counter, err := c.lib.RecordCounterID(rec.ID)
	if err != nil {
		return "", fmt.Errorf("decoding record counter: %w", err)
	}
	name, ok := c.names[counter]
	if !ok {
		return "", fmt.Errorf("counter %d: %w", counter, rocm.ErrNotFound)
	}
	return name, nil
}

// DecodeDimensions returns the record's coordinate along each of its
// counter's axes, e.g. {"SE": 2, "CU": 13}. One position query per axis.
func (c *Catalog) DecodeDimensions(rec rocm.Record) (map[string]uint64, error) {
	counter, err := c.lib.RecordCounterID(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("decoding record counter: %w", err)
	}
	dims, err := c.Dimensions(counter)
	if err != nil {
		return nil, err
	}
	out := make(map[string]uint64, len(dims))
	for _, d := range dims {
		pos, err := c.lib.RecordDimensionPosition(rec.ID, d.ID)
		if err != nil {
			return nil, fmt.Errorf("querying position on axis %s: %w", d.Name, err)
		}
		out[d.Name] = pos
	}
	return out, nil
}
