package models

// NodeProperties carries the per-type configuration of a flow node. Which
// fields are required depends on the node type and is enforced by graph
// validation, not here:
//
//   - approval: ApproverType, TimeoutDays
//   - condition: Conditions (non-empty), optionally Groups and LogicOperator
//   - notification: Recipients, Message
//
// Extra is a free-form bag for node-type-specific extension fields that must
// round-trip through persistence untouched.
type NodeProperties struct {
	// Approval nodes.
	ApproverType string `json:"approverType,omitempty"`
	TimeoutDays  *int   `json:"timeoutDays,omitempty"  validate:"omitempty,min=0"`
	ReminderDays *int   `json:"reminderDays,omitempty" validate:"omitempty,min=0"`

	// Condition nodes.
	Conditions    []*FlowCondition      `json:"conditions,omitempty"`
	Groups        []*FlowConditionGroup `json:"groups,omitempty"`
	LogicOperator LogicOperator         `json:"logicOperator,omitempty"`

	// Notification nodes. Recipients and Message are passed to the
	// notification port verbatim; template substitution happens downstream.
	Recipients string `json:"recipients,omitempty"`
	Message    string `json:"message,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// Copy returns a deep copy of the properties. Conditions and groups are
// copied element-wise so a published snapshot cannot be mutated through the
// draft.
func (p NodeProperties) Copy() NodeProperties {
	copied := p

	copied.TimeoutDays = copyIntPointer(p.TimeoutDays)
	copied.ReminderDays = copyIntPointer(p.ReminderDays)

	if p.Conditions != nil {
		copied.Conditions = make([]*FlowCondition, len(p.Conditions))
		for i, c := range p.Conditions {
			cc := *c
			copied.Conditions[i] = &cc
		}
	}

	if p.Groups != nil {
		copied.Groups = make([]*FlowConditionGroup, len(p.Groups))
		for i, g := range p.Groups {
			gc := *g
			gc.ParentID = copyIntPointer(g.ParentID)
			copied.Groups[i] = &gc
		}
	}

	if p.Extra != nil {
		copied.Extra = make(map[string]any, len(p.Extra))
		for k, v := range p.Extra {
			copied.Extra[k] = v
		}
	}

	return copied
}

func copyIntPointer(original *int) *int {
	if original == nil {
		return nil
	}

	value := *original

	return &value
}
