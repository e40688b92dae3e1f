package tracer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitTracerDisabled(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	shutdown := InitTracer("test")
	assert.NoError(t, shutdown(t.Context()))
}

func TestSampleRatio(t *testing.T) {
	cases := map[string]float64{"": 1, "0.25": 0.25, "2": 1, "abc": 1, "0": 0}
	for in, want := range cases {
		t.Setenv("OTEL_SAMPLE_RATIO", in)
		assert.Equal(t, want, sampleRatio(), in)
	}
}
