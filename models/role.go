package models

// Role describes what an authenticated caller is allowed to do.
type Role string

const (
	// RoleAdmin can manage zones and trigger maintenance operations.
	RoleAdmin Role = "admin"
	// RoleOperator can read coordinator state and manage sessions.
	RoleOperator Role = "operator"
	// RoleHost is held by host agents registering and heartbeating.
	RoleHost Role = "host"
)
