// Package domain contains the core entities for the adminguard authorization core.
package domain

import (
	"time"
)

// AdminRoleRecord is the canonical admin flag for one user, owned by the durable store.
type AdminRoleRecord struct {
	UserID  int64 `json:"user_id"`
	IsAdmin bool  `json:"is_admin"`
}

// User is the profile row kept by the durable store. Only the display fields are
// read by this core.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	IsAdmin   bool      `json:"is_admin"`
	AddedAt   time.Time `json:"added_at"`
}

// DefaultAuditQueryLimit is the page size used when a caller does not ask for one.
const DefaultAuditQueryLimit = 50

// Audit actions counted by the per-admin statistics.
const (
	ActionSendToStart       = "sendto_start"
	ActionSendToSuccess     = "sendto_success"
	ActionSendToError       = "sendto_error"
	ActionBroadcastStart    = "broadcast_start"
	ActionBroadcastComplete = "broadcast_complete"
	ActionBroadcastError    = "broadcast_error"
	ActionAdminAdd          = "admin_add"
	ActionAdminRemove       = "admin_remove"
)

// StatActions is the fixed set of actions reported by AuditLog stats.
var StatActions = []string{
	ActionSendToStart,
	ActionSendToSuccess,
	ActionSendToError,
	ActionBroadcastStart,
	ActionBroadcastComplete,
	ActionBroadcastError,
	ActionAdminAdd,
	ActionAdminRemove,
}

// AuditLogEntry records one administrative action.
type AuditLogEntry struct {
	ID             string         `json:"id"`
	Timestamp      int64          `json:"timestamp"` // unix milliseconds
	Date           string         `json:"date"`      // RFC 3339, UTC
	AdminID        int64          `json:"adminId"`
	AdminUsername  string         `json:"adminUsername"`
	AdminFirstName string         `json:"adminFirstName"`
	Action         string         `json:"action"`
	Payload        map[string]any `json:"data,omitempty"`
}
