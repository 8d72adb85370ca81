package coverage_test

import (
	"testing"

	"github.com/TuSKan/coverage"
	"github.com/stretchr/testify/assert"
)

func TestCloseEnough(t *testing.T) {
	tests := []struct {
		a, b, tol float64
		want      bool
	}{
		{6, 6.005, 1e-3, true},
		{6, 6.1, 1e-3, false},
		{0, 1e-4, 1e-3, true},
		{1e6, 1e6 + 500, 1e-3, true},
		{1e6, 1e6 + 5000, 1e-3, false},
		{-12, 12, 1e-3, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, coverage.CloseEnough(tt.a, tt.b, tt.tol), "%g ~ %g", tt.a, tt.b)
	}
	assert.True(t, coverage.SameValue(850, 850.0000001))
	assert.False(t, coverage.SameValue(850, 850.01))
}
