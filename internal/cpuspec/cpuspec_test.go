package cpuspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAvailableCores(t *testing.T) {
	tests := []struct {
		name string
		spec CPUSpec
		want int
	}{
		{"cpuid unknown", CPUSpec{LogicalCores: 0, Schedulable: 4}, 4},
		{"container limit below cpuid", CPUSpec{LogicalCores: 16, Schedulable: 2}, 2},
		{"cpuid below runtime", CPUSpec{LogicalCores: 8, Schedulable: 12}, 8},
		{"nothing known", CPUSpec{}, 1},
		{"single core", CPUSpec{LogicalCores: 1, Schedulable: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.spec.AvailableCores())
		})
	}
}

func TestAvailableCoresHost(t *testing.T) {
	assert.GreaterOrEqual(t, AvailableCores(), 1)
}
