package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dndtracker/dndtracker/pkg/auth"
	"github.com/dndtracker/dndtracker/pkg/state"
)

// MemoryStore keeps all encounters in process memory. The encounter map is
// guarded by an RWMutex; each encounter additionally owns a mutex so the
// read-modify-write of a commit is atomic per encounter while distinct
// encounters mutate in parallel.
type MemoryStore struct {
	serverSalt string

	mu         sync.RWMutex
	encounters map[string]*memoryEncounter
}

type memoryEncounter struct {
	mu     sync.Mutex
	state  state.State
	tokens map[string]string // role → token hash
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(serverSalt string) *MemoryStore {
	return &MemoryStore{
		serverSalt: serverSalt,
		encounters: make(map[string]*memoryEncounter),
	}
}

var _ EncounterStore = (*MemoryStore)(nil)

// CreateEncounter builds the initial state and records the two token hashes.
func (m *MemoryStore) CreateEncounter(_ context.Context, name, hostToken, playerToken string) (*CreatedEncounter, error) {
	encounterID := uuid.New().String()
	initial := state.BuildInitialState(encounterID, name)

	m.mu.Lock()
	m.encounters[encounterID] = &memoryEncounter{
		state: initial,
		tokens: map[string]string{
			RoleHost:   auth.HashToken(hostToken, m.serverSalt),
			RolePlayer: auth.HashToken(playerToken, m.serverSalt),
		},
	}
	m.mu.Unlock()

	return &CreatedEncounter{
		EncounterID: encounterID,
		HostToken:   hostToken,
		PlayerToken: playerToken,
	}, nil
}

// GetAccess resolves a raw token against the encounter's unrevoked token
// hashes with a constant-time compare per record.
func (m *MemoryStore) GetAccess(_ context.Context, encounterID, rawToken string) (*Access, error) {
	enc, err := m.lookup(encounterID)
	if err != nil {
		return nil, err
	}

	enc.mu.Lock()
	defer enc.mu.Unlock()
	return m.accessLocked(enc, encounterID, rawToken)
}

// GetState returns the current state for any valid role.
func (m *MemoryStore) GetState(ctx context.Context, encounterID, rawToken string) (*state.State, error) {
	access, err := m.GetAccess(ctx, encounterID, rawToken)
	if err != nil {
		return nil, err
	}
	return &access.State, nil
}

// ApplyAction commits a HOST action through the reducer.
func (m *MemoryStore) ApplyAction(_ context.Context, encounterID, rawToken string, action map[string]any) (*state.State, error) {
	return m.commit(encounterID, rawToken, func(role string) (map[string]any, error) {
		if role != RoleHost {
			return nil, ErrForbidden
		}
		return actionEvent(state.CloneRecord(action)), nil
	})
}

// AppendRoll commits a roll log entry for any valid role.
func (m *MemoryStore) AppendRoll(_ context.Context, encounterID, rawToken string, roll map[string]any) (*state.State, error) {
	return m.commit(encounterID, rawToken, func(role string) (map[string]any, error) {
		return rollEvent(role, state.CloneRecord(roll)), nil
	})
}

// AppendChat commits a chat log entry and transcript line for any valid role.
func (m *MemoryStore) AppendChat(_ context.Context, encounterID, rawToken, message string) (*state.State, error) {
	return m.commit(encounterID, rawToken, func(role string) (map[string]any, error) {
		return chatEvent(role, message), nil
	})
}

// commit runs the per-encounter critical section: verify the token, build the
// event for the caller's role, apply the commit discipline, swap the state.
func (m *MemoryStore) commit(encounterID, rawToken string, buildEvent func(role string) (map[string]any, error)) (*state.State, error) {
	enc, err := m.lookup(encounterID)
	if err != nil {
		return nil, err
	}

	enc.mu.Lock()
	defer enc.mu.Unlock()

	access, err := m.accessLocked(enc, encounterID, rawToken)
	if err != nil {
		return nil, err
	}

	event, err := buildEvent(access.Role)
	if err != nil {
		return nil, err
	}

	enc.state = nextStateWithEvent(enc.state, event)
	committed := enc.state.Clone()
	return &committed, nil
}

// PruneIdle removes encounters whose last commit predates the cutoff.
// Taking the map write lock excludes all concurrent commits, so an encounter
// cannot be revived mid-sweep.
func (m *MemoryStore) PruneIdle(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for id, enc := range m.encounters {
		updatedAt, err := time.Parse(time.RFC3339Nano, enc.state.Meta.UpdatedAt)
		if err != nil {
			continue
		}
		if updatedAt.Before(cutoff) {
			delete(m.encounters, id)
			pruned++
		}
	}
	return pruned, nil
}

func (m *MemoryStore) lookup(encounterID string) (*memoryEncounter, error) {
	m.mu.RLock()
	enc, ok := m.encounters[encounterID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return enc, nil
}

// accessLocked must be called with enc.mu held.
func (m *MemoryStore) accessLocked(enc *memoryEncounter, encounterID, rawToken string) (*Access, error) {
	role := ""
	for candidate, tokenHash := range enc.tokens {
		if auth.VerifyToken(rawToken, tokenHash, m.serverSalt) {
			role = candidate
			break
		}
	}
	if role == "" {
		return nil, ErrUnauthorized
	}
	return &Access{
		EncounterID: encounterID,
		Role:        role,
		State:       enc.state.Clone(),
	}, nil
}
