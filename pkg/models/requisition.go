package models

import "time"

// UserRef identifies a platform user referenced by executions and approvals.
type UserRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// Subject is the record a flow execution routes for approval. The snapshot
// becomes the execution context: scalar fields flattened, related entities
// resolved to their display name or nil.
type Subject interface {
	SubjectID() string
	ExecutionSnapshot() map[string]any
}

// Requisition is a manpower requisition (MPR) record, the subject the
// recruitment platform routes through approval flows.
type Requisition struct {
	ID            string     `json:"id"`
	PositionTitle string     `json:"position_title" validate:"required"`
	Department    string     `json:"department"`
	Location      string     `json:"location"`
	EmploymentType string    `json:"employment_type"`
	Headcount     int        `json:"headcount"      validate:"min=1"`
	BudgetAmount  float64    `json:"budget_amount"  validate:"min=0"`
	Currency      string     `json:"currency"`
	Priority      string     `json:"priority"`
	Justification string     `json:"justification"`
	RequestedBy   *UserRef   `json:"requested_by,omitempty"`
	HiringManager *UserRef   `json:"hiring_manager,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	TargetDate    *time.Time `json:"target_date,omitempty"`
}

// SubjectID implements Subject.
func (r *Requisition) SubjectID() string {
	return r.ID
}

// ExecutionSnapshot flattens the requisition into the immutable evaluation
// environment captured at execution start. Related users collapse to their
// display name so conditions can match on them as plain strings.
func (r *Requisition) ExecutionSnapshot() map[string]any {
	snapshot := map[string]any{
		"id":              r.ID,
		"position_title":  r.PositionTitle,
		"department":      r.Department,
		"location":        r.Location,
		"employment_type": r.EmploymentType,
		"headcount":       r.Headcount,
		"budget_amount":   r.BudgetAmount,
		"currency":        r.Currency,
		"priority":        r.Priority,
		"justification":   r.Justification,
		"status":          r.Status,
	}

	snapshot["requested_by"] = userDisplayName(r.RequestedBy)
	snapshot["hiring_manager"] = userDisplayName(r.HiringManager)

	if r.TargetDate != nil {
		snapshot["target_date"] = r.TargetDate.Format(time.RFC3339)
	} else {
		snapshot["target_date"] = nil
	}

	return snapshot
}

func userDisplayName(user *UserRef) any {
	if user == nil {
		return nil
	}

	return user.DisplayName
}
