package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewardForMiles(t *testing.T) {
	tests := []struct {
		miles    float64
		expected string
	}{
		{0, "0"},
		{0.3, "0"},
		{0.49, "0"},
		{0.5, "0.5"},
		{0.99, "0.5"},
		{1.0, "1"},
		{2.7, "2"},
		{13.1, "13"},
	}

	for _, tt := range tests {
		got := RewardForMiles(tt.miles)
		assert.Equal(t, tt.expected, got.String(), "miles=%v", tt.miles)
	}
}
