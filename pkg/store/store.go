// Package store is the persistence and authorization boundary for encounters.
//
// Two behaviorally identical variants exist: MemoryStore for salt-only
// deployments and PostgresStore when a database URL is configured. Every
// mutation follows the same commit discipline: copy the state, bump the
// version, stamp updatedAt, append the incoming event to the log, run the
// reducer for action events, persist the snapshot.
package store

import (
	"context"

	"github.com/dndtracker/dndtracker/pkg/state"
)

// Roles authorized by encounter tokens.
const (
	RoleHost   = "HOST"
	RolePlayer = "PLAYER"
)

// CreatedEncounter is the result of creating a fresh encounter. The raw
// tokens are returned exactly once; only their hashes are persisted.
type CreatedEncounter struct {
	EncounterID string
	HostToken   string
	PlayerToken string
}

// Access is the result of resolving a token against an encounter: the
// caller's role plus the current state.
type Access struct {
	EncounterID string
	Role        string
	State       state.State
}

// EncounterStore is the capability set shared by both variants.
type EncounterStore interface {
	// CreateEncounter builds the initial state at version 1 and persists
	// exactly two token records (one HOST, one PLAYER).
	CreateEncounter(ctx context.Context, name, hostToken, playerToken string) (*CreatedEncounter, error)

	// GetAccess resolves a raw token to a role and the current state.
	GetAccess(ctx context.Context, encounterID, rawToken string) (*Access, error)

	// GetState returns the current state for any valid role.
	GetState(ctx context.Context, encounterID, rawToken string) (*state.State, error)

	// ApplyAction runs the reducer for a HOST action and commits the result.
	ApplyAction(ctx context.Context, encounterID, rawToken string, action map[string]any) (*state.State, error)

	// AppendRoll logs an opaque roll record for any valid role and commits.
	AppendRoll(ctx context.Context, encounterID, rawToken string, roll map[string]any) (*state.State, error)

	// AppendChat logs a chat message for any valid role, mirrors it into the
	// chat transcript, and commits.
	AppendChat(ctx context.Context, encounterID, rawToken, message string) (*state.State, error)
}

// roleLabel converts a role constant to its display label ("Host", "Player").
func roleLabel(role string) string {
	if role == "" {
		return ""
	}
	label := []byte(role)
	for i := 1; i < len(label); i++ {
		if label[i] >= 'A' && label[i] <= 'Z' {
			label[i] += 'a' - 'A'
		}
	}
	return string(label)
}
