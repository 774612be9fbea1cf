package models

// LogicOperator combines condition results within a group and group results
// at the node level.
type LogicOperator string

const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
)

// ConditionOperator is the comparison applied to one field of the execution
// context.
type ConditionOperator string

const (
	OperatorEquals       ConditionOperator = "equals"
	OperatorNotEquals    ConditionOperator = "not_equals"
	OperatorGreaterThan  ConditionOperator = "greater_than"
	OperatorLessThan     ConditionOperator = "less_than"
	OperatorGreaterEqual ConditionOperator = "greater_equal"
	OperatorLessEqual    ConditionOperator = "less_equal"
	OperatorContains     ConditionOperator = "contains"
	OperatorStartsWith   ConditionOperator = "starts_with"
	OperatorEndsWith     ConditionOperator = "ends_with"
	OperatorInList       ConditionOperator = "in_list"
	OperatorIsNull       ConditionOperator = "is_null"
	OperatorIsNotNull    ConditionOperator = "is_not_null"
)

// FlowCondition is one boolean test against a field of the execution context.
// GroupID links the condition to its FlowConditionGroup.
type FlowCondition struct {
	Field    string            `json:"field"    validate:"required"`
	Operator ConditionOperator `json:"operator" validate:"required"`
	Value    string            `json:"value"`
	GroupID  int               `json:"group_id"`
}

// FlowConditionGroup combines its member conditions with Logic. ParentID is
// persisted for the authoring UI but the evaluator combines groups flat; it
// never walks the parent tree.
type FlowConditionGroup struct {
	ID       int           `json:"id"`
	Logic    LogicOperator `json:"logic"`
	ParentID *int          `json:"parent_id,omitempty"`
}
