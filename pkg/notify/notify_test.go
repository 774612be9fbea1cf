package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitRecipients(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "single recipient",
			input:    "hr@example.com",
			expected: []string{"hr@example.com"},
		},
		{
			name:     "multiple with spaces",
			input:    "hr@example.com, recruiting@example.com ,ops@example.com",
			expected: []string{"hr@example.com", "recruiting@example.com", "ops@example.com"},
		},
		{
			name:     "empty entries dropped",
			input:    "hr@example.com,,  ,",
			expected: []string{"hr@example.com"},
		},
		{
			name:     "empty string",
			input:    "",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, splitRecipients(tt.input))
		})
	}
}
