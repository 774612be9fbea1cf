package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "approvers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadApproverConfig(t *testing.T) {
	path := writeConfig(t, `
approvers:
  - type: department_head
    user_id: user-head
    display_name: Dana Head
    email: dana@example.com
  - type: hr_manager
    user_id: user-hr
`)

	resolver, err := LoadApproverConfig(path)
	require.NoError(t, err)
	require.Len(t, resolver, 2)

	head := resolver["department_head"]
	require.NotNil(t, head)
	assert.Equal(t, "user-head", head.ID)
	assert.Equal(t, "dana@example.com", head.Email)
	assert.Nil(t, resolver["finance"])
}

func TestLoadApproverConfig_MissingFile(t *testing.T) {
	_, err := LoadApproverConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadApproverConfig_EmptyAssignments(t *testing.T) {
	path := writeConfig(t, "approvers: []\n")

	_, err := LoadApproverConfig(path)
	assert.Error(t, err)
}

func TestLoadApproverConfig_MissingUserID(t *testing.T) {
	path := writeConfig(t, `
approvers:
  - type: department_head
`)

	_, err := LoadApproverConfig(path)
	assert.Error(t, err)
}
