// Package config provides configuration loading for approver assignments.
package config

import (
	"fmt"
	"os"

	"github.com/talentops/reqflow/pkg/flow"
	"github.com/talentops/reqflow/pkg/models"
	"gopkg.in/yaml.v3"
)

// ApproverConfigFile represents the structure of the approvers.yaml file.
type ApproverConfigFile struct {
	Approvers []ApproverAssignment `yaml:"approvers"`
}

// ApproverAssignment maps an approver type used by approval nodes to the
// user who acts on it.
type ApproverAssignment struct {
	Type        string `yaml:"type"`
	UserID      string `yaml:"user_id"`
	DisplayName string `yaml:"display_name"`
	Email       string `yaml:"email"`
}

// LoadApproverConfig loads approver assignments from a YAML file and builds
// a resolver from them.
func LoadApproverConfig(filepath string) (flow.StaticResolver, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ApproverConfigFile
	if err := yaml.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if len(configFile.Approvers) == 0 {
		return nil, fmt.Errorf("config file %s defines no approvers", filepath)
	}

	resolver := make(flow.StaticResolver, len(configFile.Approvers))

	for i, assignment := range configFile.Approvers {
		if assignment.Type == "" || assignment.UserID == "" {
			return nil, fmt.Errorf("approver %d in %s is missing type or user_id", i, filepath)
		}

		resolver[assignment.Type] = &models.UserRef{
			ID:          assignment.UserID,
			DisplayName: assignment.DisplayName,
			Email:       assignment.Email,
		}
	}

	return resolver, nil
}
