package flow

import (
	"context"

	"github.com/talentops/reqflow/pkg/models"
)

// AuthorizationPort answers "does principal P hold permission X?". Backed by
// the platform's RBAC store, consumed here only for the approve-on-behalf
// check.
type AuthorizationPort interface {
	Check(ctx context.Context, principal, permission string) (bool, error)
}

// PermissionApproveOnBehalf lets an actor approve steps assigned to someone
// else.
const PermissionApproveOnBehalf = "flow.approve_on_behalf"

// ApproverResolver maps an approver-type tag from an approval node to the
// user authorized to act on the given subject. A nil UserRef with nil error
// means no approver could be resolved.
type ApproverResolver interface {
	Resolve(ctx context.Context, approverType string, subject models.Subject) (*models.UserRef, error)
}

// NotificationPort dispatches fire-and-forget messages. Send failures are
// logged by the caller and never propagate into the state machine.
type NotificationPort interface {
	Send(ctx context.Context, recipients, subject, message string) error
}

// AuditSink receives append-only structural and execution events.
type AuditSink interface {
	Record(ctx context.Context, entry *models.AuditEntry) error
}

// NopNotifier discards notifications. Used where delivery is wired up later.
type NopNotifier struct{}

func (NopNotifier) Send(_ context.Context, _, _, _ string) error {
	return nil
}

// StaticResolver resolves approver types from a fixed table. Suits tests and
// single-tenant deployments where assignments rarely change.
type StaticResolver map[string]*models.UserRef

func (r StaticResolver) Resolve(_ context.Context, approverType string, _ models.Subject) (*models.UserRef, error) {
	return r[approverType], nil
}
