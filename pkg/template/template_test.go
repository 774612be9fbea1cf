package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		data     any
		expected string
		wantErr  bool
	}{
		{
			name:     "plain text passes through",
			input:    "Requisition approved",
			data:     nil,
			expected: "Requisition approved",
		},
		{
			name:     "substitutes fields",
			input:    "New {{ .title }} requisition",
			data:     map[string]any{"title": "Backend Engineer"},
			expected: "New Backend Engineer requisition",
		},
		{
			name:     "upper helper",
			input:    "{{ upper .priority }}",
			data:     map[string]any{"priority": "urgent"},
			expected: "URGENT",
		},
		{
			name:    "broken template",
			input:   "{{ .title",
			data:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Render(tt.input, tt.data)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRender_SubjectSnapshot(t *testing.T) {
	data := map[string]any{
		"subject": map[string]any{
			"position_title": "Data Engineer",
			"budget_amount":  90000.0,
		},
		"execution": map[string]any{"subject_id": "req-42"},
	}

	result, err := Render(
		"Requisition {{ .subject.position_title }} ({{ .execution.subject_id }}) needs review",
		data,
	)
	require.NoError(t, err)
	assert.Equal(t, "Requisition Data Engineer (req-42) needs review", result)
}

func TestRender_MissingKeyStillRenders(t *testing.T) {
	result, err := Render("Hello {{ .subject.name }}", map[string]any{"subject": map[string]any{}})
	require.NoError(t, err)
	assert.Contains(t, result, "Hello")
}
