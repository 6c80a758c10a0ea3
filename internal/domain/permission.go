package domain

import (
	"errors"
	"fmt"
	"time"
)

// Action is the fixed consent vocabulary. Every side-effecting handler maps
// to exactly one action tag; the gatekeeper keys its grant cache on the
// literal (action, resource) pair.
type Action string

const (
	ActionRead        Action = "read"
	ActionWrite       Action = "write"
	ActionEdit        Action = "edit"
	ActionDelete      Action = "delete"
	ActionFind        Action = "find"
	ActionExec        Action = "exec"
	ActionHTTPRequest Action = "http-request"
	ActionDBQuery     Action = "db-query"
)

// PermissionRequest is the ephemeral consent question surfaced to whatever
// prompt backend is attached. ID makes queued requests individually
// addressable so a remote console can resolve them asynchronously.
type PermissionRequest struct {
	ID        string    `json:"id"`
	Action    Action    `json:"action"`
	Resource  string    `json:"resource"`
	Requester string    `json:"requester"`
	CreatedAt time.Time `json:"created_at"`
}

// Pending-request state machine, mirrored by the queue prompt backend.
type PermissionStatus string

const (
	PermissionPending  PermissionStatus = "PENDING"
	PermissionApproved PermissionStatus = "APPROVED"
	PermissionRejected PermissionStatus = "REJECTED"
	PermissionExpired  PermissionStatus = "EXPIRED"
)

var (
	ErrAlreadyProcessed = errors.New("permission request already processed")
	ErrUnknownRequest   = errors.New("permission request not found")
)

// DeniedError is the typed denial carried from the gatekeeper through a
// handler to the dispatcher. Callers detect it with errors.As, never by
// matching message substrings.
type DeniedError struct {
	Action   Action
	Resource string
	Reason   string
}

func (e *DeniedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("permission denied: %s %s (%s)", e.Action, e.Resource, e.Reason)
	}
	return fmt.Sprintf("permission denied: %s %s", e.Action, e.Resource)
}

// IsDenied reports whether err is (or wraps) a gatekeeper denial.
func IsDenied(err error) bool {
	var denied *DeniedError
	return errors.As(err, &denied)
}
