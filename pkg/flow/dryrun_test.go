package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentops/reqflow/pkg/models"
)

func TestDryRun_TracesTrueBranch(t *testing.T) {
	f := approvalFlow()

	result, err := DryRun(f, map[string]any{"budget_amount": 80000.0}, 0)
	require.NoError(t, err)
	assert.True(t, result.Completed)

	nodeIDs := make([]string, 0, len(result.Steps))
	for _, step := range result.Steps {
		nodeIDs = append(nodeIDs, step.NodeID)
	}

	assert.Equal(t, []string{"start-1", "cond-1", "appr-1", "notif-1", "end-1"}, nodeIDs)

	condition := result.Steps[1]
	require.NotNil(t, condition.ConditionResult)
	assert.True(t, *condition.ConditionResult)

	// Non-condition steps carry no condition result.
	assert.Nil(t, result.Steps[0].ConditionResult)
	assert.Nil(t, result.Steps[2].ConditionResult)
}

func TestDryRun_TracesFalseBranch(t *testing.T) {
	f := approvalFlow()

	result, err := DryRun(f, map[string]any{"budget_amount": 10000.0}, 0)
	require.NoError(t, err)
	assert.True(t, result.Completed)

	nodeIDs := make([]string, 0, len(result.Steps))
	for _, step := range result.Steps {
		nodeIDs = append(nodeIDs, step.NodeID)
	}

	assert.Equal(t, []string{"start-1", "cond-1", "end-1"}, nodeIDs)
	require.NotNil(t, result.Steps[1].ConditionResult)
	assert.False(t, *result.Steps[1].ConditionResult)
}

func TestDryRun_NoStartNode(t *testing.T) {
	f := approvalFlow()
	f.Nodes = f.Nodes[1:]

	_, err := DryRun(f, nil, 0)
	assert.ErrorIs(t, err, ErrNoStartNode)
}

func TestDryRun_CyclicGraphHitsCeiling(t *testing.T) {
	f := &models.Flow{
		ID:   "flow-cycle",
		Name: "Cycle",
		Nodes: []*models.FlowNode{
			{NodeID: "start-1", Type: models.NodeTypeStart},
			{NodeID: "notif-1", Type: models.NodeTypeNotification, Properties: models.NodeProperties{
				Recipients: "ops@example.com",
				Message:    "looping",
			}},
			{NodeID: "notif-2", Type: models.NodeTypeNotification, Properties: models.NodeProperties{
				Recipients: "ops@example.com",
				Message:    "still looping",
			}},
		},
		Connections: []*models.FlowConnection{
			{ID: "c1", SourceNodeID: "start-1", TargetNodeID: "notif-1", Type: models.ConnectionTypeOutput},
			{ID: "c2", SourceNodeID: "notif-1", TargetNodeID: "notif-2", Type: models.ConnectionTypeOutput},
			{ID: "c3", SourceNodeID: "notif-2", TargetNodeID: "notif-1", Type: models.ConnectionTypeOutput},
		},
	}

	result, err := DryRun(f, nil, 10)
	require.ErrorIs(t, err, ErrStepCeilingExceeded)
	assert.Len(t, result.Steps, 10)
	assert.False(t, result.Completed)
}

func TestDryRun_DanglingConnection(t *testing.T) {
	f := approvalFlow()
	f.Connections[0].TargetNodeID = "ghost"

	result, err := DryRun(f, nil, 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStepCeilingExceeded)
	assert.Len(t, result.Steps, 1)
}

func TestDryRun_ZeroCeilingUsesDefault(t *testing.T) {
	f := approvalFlow()

	result, err := DryRun(f, map[string]any{"budget_amount": 80000.0}, -5)
	require.NoError(t, err)
	assert.True(t, result.Completed)
}
