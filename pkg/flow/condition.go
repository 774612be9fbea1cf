package flow

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/talentops/reqflow/pkg/models"
)

// EvaluateNode evaluates a condition node against the execution context and
// returns the branch to take. It is a pure function of the node properties
// and the context snapshot.
//
// Conditions are partitioned into groups by group_id, each group combined by
// its own AND/OR logic, and group results combined by the node-level
// logicOperator. A node with no conditions at all routes false. A declared
// group that ends up with no member conditions passes vacuously.
func EvaluateNode(node *models.FlowNode, context map[string]any) bool {
	conditions := node.Properties.Conditions
	if len(conditions) == 0 {
		return false
	}

	groups := node.Properties.Groups
	if len(groups) == 0 {
		// No explicit grouping: a single AND group holds every condition.
		groups = []*models.FlowConditionGroup{{ID: 1, Logic: models.LogicAnd}}

		return combineGroupResults(
			[]bool{evaluateGroup(groups[0], conditions, context)},
			node.Properties.LogicOperator,
		)
	}

	byGroup := make(map[int][]*models.FlowCondition)
	for _, condition := range conditions {
		byGroup[condition.GroupID] = append(byGroup[condition.GroupID], condition)
	}

	results := make([]bool, 0, len(groups))
	for _, group := range groups {
		results = append(results, evaluateGroup(group, byGroup[group.ID], context))
	}

	return combineGroupResults(results, node.Properties.LogicOperator)
}

// evaluateGroup combines the member conditions with the group's logic.
// Groups are evaluated flat: parent_id is persisted but never consulted.
func evaluateGroup(group *models.FlowConditionGroup, conditions []*models.FlowCondition, context map[string]any) bool {
	if len(conditions) == 0 {
		// Vacuous pass: an empty group never vetoes the node.
		return true
	}

	if group.Logic == models.LogicOr {
		for _, condition := range conditions {
			if evaluateCondition(condition, context) {
				return true
			}
		}

		return false
	}

	for _, condition := range conditions {
		if !evaluateCondition(condition, context) {
			return false
		}
	}

	return true
}

func combineGroupResults(results []bool, logic models.LogicOperator) bool {
	if logic == models.LogicOr {
		for _, result := range results {
			if result {
				return true
			}
		}

		return false
	}

	for _, result := range results {
		if !result {
			return false
		}
	}

	return true
}

// evaluateCondition applies one comparison. A malformed condition must never
// abort the whole evaluation, so any panic is mapped to false.
func evaluateCondition(condition *models.FlowCondition, context map[string]any) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("condition evaluation panicked, treating as false",
				"field", condition.Field, "operator", condition.Operator, "panic", r)

			result = false
		}
	}()

	fieldValue, present := context[condition.Field]
	fieldText := stringify(fieldValue)

	switch condition.Operator {
	case models.OperatorEquals:
		return strings.EqualFold(fieldText, condition.Value)
	case models.OperatorNotEquals:
		return !strings.EqualFold(fieldText, condition.Value)
	case models.OperatorGreaterThan, models.OperatorLessThan,
		models.OperatorGreaterEqual, models.OperatorLessEqual:
		return compareNumeric(condition.Operator, fieldText, condition.Value)
	case models.OperatorContains:
		return strings.Contains(strings.ToLower(fieldText), strings.ToLower(condition.Value))
	case models.OperatorStartsWith:
		return strings.HasPrefix(strings.ToLower(fieldText), strings.ToLower(condition.Value))
	case models.OperatorEndsWith:
		return strings.HasSuffix(strings.ToLower(fieldText), strings.ToLower(condition.Value))
	case models.OperatorInList:
		return inList(fieldText, condition.Value)
	case models.OperatorIsNull:
		return isNull(fieldValue, present)
	case models.OperatorIsNotNull:
		return !isNull(fieldValue, present)
	default:
		// Unknown operators never match.
		return false
	}
}

// compareNumeric parses both sides as numbers. A parse failure on either
// side makes the condition false rather than an error.
func compareNumeric(operator models.ConditionOperator, left, right string) bool {
	leftNum, err := strconv.ParseFloat(strings.TrimSpace(left), 64)
	if err != nil {
		return false
	}

	rightNum, err := strconv.ParseFloat(strings.TrimSpace(right), 64)
	if err != nil {
		return false
	}

	switch operator {
	case models.OperatorGreaterThan:
		return leftNum > rightNum
	case models.OperatorLessThan:
		return leftNum < rightNum
	case models.OperatorGreaterEqual:
		return leftNum >= rightNum
	case models.OperatorLessEqual:
		return leftNum <= rightNum
	default:
		return false
	}
}

// inList tests case-insensitive membership in a comma-separated list. An
// empty list never matches.
func inList(fieldText, listValue string) bool {
	if strings.TrimSpace(listValue) == "" {
		return false
	}

	for _, item := range strings.Split(listValue, ",") {
		if strings.EqualFold(strings.TrimSpace(item), strings.TrimSpace(fieldText)) {
			return true
		}
	}

	return false
}

// isNull treats an absent field, nil, the empty string and the literal
// string "null" as null.
func isNull(value any, present bool) bool {
	if !present || value == nil {
		return true
	}

	text := strings.TrimSpace(stringify(value))

	return text == "" || strings.EqualFold(text, "null")
}

// stringify renders a context value the way conditions compare it: as text.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

// NextConnection resolves the outgoing edge a condition result routes to.
// When no edge carries the matching true/false label the first outgoing edge
// is taken; authored graphs occasionally label a single continuation edge as
// output and the engine stays lenient about it.
func NextConnection(f *models.Flow, node *models.FlowNode, result bool) *models.FlowConnection {
	outgoing := f.OutgoingConnections(node.NodeID)
	if len(outgoing) == 0 {
		return nil
	}

	for _, conn := range outgoing {
		if conn.Matches(result) {
			return conn
		}
	}

	return outgoing[0]
}
