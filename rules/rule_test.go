package rules

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRule_Validate(t *testing.T) {
	testCases := []struct {
		name        string
		rule        Rule
		expectError bool
	}{
		{
			name: "valid rule",
			rule: Rule{
				Capacity:   10,
				RefillRate: 2,
				Window:     time.Minute,
				Enabled:    true,
			},
			expectError: false,
		},
		{
			name: "valid disabled rule",
			rule: Rule{
				Capacity:   10,
				RefillRate: 2,
				Window:     time.Minute,
			},
			expectError: false,
		},
		{
			name: "zero capacity",
			rule: Rule{
				Capacity:   0,
				RefillRate: 2,
				Window:     time.Minute,
			},
			expectError: true,
		},
		{
			name: "zero refill rate",
			rule: Rule{
				Capacity:   10,
				RefillRate: 0,
				Window:     time.Minute,
			},
			expectError: true,
		},
		{
			name: "negative refill rate",
			rule: Rule{
				Capacity:   10,
				RefillRate: -2,
				Window:     time.Minute,
			},
			expectError: true,
		},
		{
			name: "NaN refill rate",
			rule: Rule{
				Capacity:   10,
				RefillRate: math.NaN(),
				Window:     time.Minute,
			},
			expectError: true,
		},
		{
			name: "infinite refill rate",
			rule: Rule{
				Capacity:   10,
				RefillRate: math.Inf(1),
				Window:     time.Minute,
			},
			expectError: true,
		},
		{
			name: "sub-second window",
			rule: Rule{
				Capacity:   10,
				RefillRate: 2,
				Window:     500 * time.Millisecond,
			},
			expectError: true,
		},
		{
			name: "capacity above refill ceiling",
			rule: Rule{
				Capacity:   100,
				RefillRate: 0.1,
				Window:     10 * time.Second, // refills 1 token per window, capacity 100
			},
			expectError: true,
		},
		{
			name: "capacity exactly at ceiling",
			rule: Rule{
				Capacity:   240,
				RefillRate: 2,
				Window:     time.Minute, // 2 * 2 * 60 = 240
			},
			expectError: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rule.Validate()
			if tc.expectError {
				require.Error(t, err, "expected validation error for rule: %+v", tc.rule)
				assert.ErrorIs(t, err, ErrInvalidRule)
			} else {
				assert.NoError(t, err, "unexpected validation error for rule: %+v", tc.rule)
			}
		})
	}
}

func TestRule_WindowMs(t *testing.T) {
	r := Rule{Window: 60 * time.Second}
	assert.Equal(t, int64(60000), r.WindowMs())

	r.Window = 1500 * time.Millisecond
	assert.Equal(t, int64(1500), r.WindowMs())
}
