// Package report emits the line-oriented counter report consumed by
// downstream tooling. The shape is a fixed contract:
//
//	start:
//	- gpu:
//	  - GRBM_COUNT: 12345
//	end:
//	- gpu:
//	  - GRBM_COUNT: 23456
//	valid: 1
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
)

type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Start opens the initial section.
func (r *Writer) Start() {
	fmt.Fprintln(r.w, "start:")
}

// End opens the final section.
func (r *Writer) End() {
	fmt.Fprintln(r.w, "end:")
}

// Device writes one device's accumulated counter values under a "- gpu:"
// heading, one "  - <name>: <value>" line per counter in name order.
func (r *Writer) Device(values map[string]float64) {
	fmt.Fprintln(r.w, "- gpu:")
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(r.w, "  - %s: %s\n", name, formatValue(values[name]))
	}
}

// Valid writes the trailing validity line: "valid: 1" or "valid: 0".
func (r *Writer) Valid(valid bool) {
	v := 0
	if valid {
		v = 1
	}
	fmt.Fprintf(r.w, "valid: %d\n", v)
}

// formatValue renders the shortest round-tripping representation. Values of
// 1e6 and above come out in exponential form, matching the C++ ostream
// output downstream consumers already parse.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
