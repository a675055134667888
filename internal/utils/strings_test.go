package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "AAPL",
			expected: []string{"AAPL"},
		},
		{
			name:     "two values",
			input:    "AAPL, MSFT",
			expected: []string{"AAPL", "MSFT"},
		},
		{
			name:     "three values with varied spacing",
			input:    "AAPL,  MSFT , NVDA",
			expected: []string{"AAPL", "MSFT", "NVDA"},
		},
		{
			name:     "no spaces after comma",
			input:    "run_state_changed,orders_planned",
			expected: []string{"run_state_changed", "orders_planned"},
		},
		{
			name:     "trailing comma",
			input:    "run_state_changed,",
			expected: []string{"run_state_changed"},
		},
		{
			name:     "leading comma",
			input:    ",orders_submitted",
			expected: []string{"orders_submitted"},
		},
		{
			name:     "only spaces",
			input:    "   ",
			expected: nil,
		},
		{
			name:     "comma only",
			input:    ",",
			expected: nil,
		},
		{
			name:     "multiple commas",
			input:    ",,AAPL,,MSFT,,",
			expected: []string{"AAPL", "MSFT"},
		},
		{
			name:     "value with internal spaces preserved",
			input:    "BRK B, SPY US",
			expected: []string{"BRK B", "SPY US"},
		},
		{
			name:     "mixed spacing around values",
			input:    "  AAPL  ,  MSFT  ",
			expected: []string{"AAPL", "MSFT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseCSV(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseCSV_Idempotent(t *testing.T) {
	// Parsing an already-parsed single value should return same result
	input := "AAPL"
	firstParse := ParseCSV(input)
	assert.Equal(t, []string{"AAPL"}, firstParse)

	// Parsing the single result element should give same result
	if len(firstParse) > 0 {
		secondParse := ParseCSV(firstParse[0])
		assert.Equal(t, []string{"AAPL"}, secondParse)
	}
}

func TestParseCSV_PreservesInput(t *testing.T) {
	// Verify that the function doesn't modify the input string
	input := "AAPL, MSFT"
	originalInput := input

	_ = ParseCSV(input)

	assert.Equal(t, originalInput, input, "input should not be modified")
}
