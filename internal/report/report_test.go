package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReportShape(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	w.Start()
	w.Device(map[string]float64{
		"SQ_WAVES":   1.5,
		"GRBM_COUNT": 42,
	})
	w.End()
	w.Device(map[string]float64{
		"SQ_WAVES":   3,
		"GRBM_COUNT": 84,
	})
	w.Valid(true)

	want := "start:\n" +
		"- gpu:\n" +
		"  - GRBM_COUNT: 42\n" +
		"  - SQ_WAVES: 1.5\n" +
		"end:\n" +
		"- gpu:\n" +
		"  - GRBM_COUNT: 84\n" +
		"  - SQ_WAVES: 3\n" +
		"valid: 1\n"
	assert.Equal(t, want, buf.String())
}

func TestReportInvalidSession(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Valid(false)
	assert.Equal(t, "valid: 0\n", buf.String())
}

func TestReportEmptyDevice(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Device(nil)
	assert.Equal(t, "- gpu:\n", buf.String())
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "0", formatValue(0))
	assert.Equal(t, "123456", formatValue(123456))
	assert.Equal(t, "0.25", formatValue(0.25))
	// Large accumulated totals (GRBM_COUNT passes 1e6 within seconds) take
	// the shortest exponential form, like the original's ostream output.
	assert.Equal(t, "1.234567e+06", formatValue(1234567))
	assert.Equal(t, "1.23456789e+08", formatValue(123456789))
	assert.Equal(t, "1.5e+20", formatValue(1.5e20))
}
