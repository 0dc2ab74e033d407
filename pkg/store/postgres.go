package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dndtracker/dndtracker/pkg/auth"
	"github.com/dndtracker/dndtracker/pkg/state"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint
// violations; hitting it on the snapshot insert means a concurrent commit
// took the same version slot.
const pgUniqueViolation = "23505"

// PostgresStore persists encounters to PostgreSQL. The state document is
// stored as an opaque JSONB snapshot per version; rolls and chat are
// co-written to append-only side tables in the same transaction. Version
// monotonicity is enforced by the unique (encounter_id, version) constraint:
// a lost race surfaces as ErrConflict instead of a silent overwrite.
type PostgresStore struct {
	db         *sql.DB
	serverSalt string
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB, serverSalt string) *PostgresStore {
	return &PostgresStore{db: db, serverSalt: serverSalt}
}

var _ EncounterStore = (*PostgresStore)(nil)

// CreateEncounter persists the encounter row, both token hashes, and the
// version-1 snapshot in one transaction.
func (p *PostgresStore) CreateEncounter(ctx context.Context, name, hostToken, playerToken string) (*CreatedEncounter, error) {
	encounterID := uuid.New().String()
	initial := state.BuildInitialState(encounterID, name)
	stateJSON, err := json.Marshal(initial)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal initial state: %w", err)
	}
	now := time.Now().UTC()

	err = p.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO encounters (id, name, status, current_version, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $5)`,
			encounterID, name, initial.Status, initial.Version, now,
		); err != nil {
			return fmt.Errorf("failed to insert encounter: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO encounter_tokens (id, encounter_id, role, token_hash, created_at, revoked_at)
			 VALUES ($1, $2, $3, $4, $5, NULL), ($6, $2, $7, $8, $5, NULL)`,
			uuid.New().String(), encounterID, RoleHost, auth.HashToken(hostToken, p.serverSalt), now,
			uuid.New().String(), RolePlayer, auth.HashToken(playerToken, p.serverSalt),
		); err != nil {
			return fmt.Errorf("failed to insert tokens: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO encounter_snapshots (id, encounter_id, version, created_at, state_json)
			 VALUES ($1, $2, $3, $4, $5::jsonb)`,
			uuid.New().String(), encounterID, initial.Version, now, stateJSON,
		); err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &CreatedEncounter{
		EncounterID: encounterID,
		HostToken:   hostToken,
		PlayerToken: playerToken,
	}, nil
}

// GetAccess resolves a token hash against the encounter's unrevoked token
// records and loads the current snapshot.
func (p *PostgresStore) GetAccess(ctx context.Context, encounterID, rawToken string) (*Access, error) {
	tokenHash := auth.HashToken(rawToken, p.serverSalt)

	var role string
	var stateJSON []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT t.role, s.state_json
		 FROM encounters e
		 JOIN encounter_snapshots s
		   ON s.encounter_id = e.id AND s.version = e.current_version
		 JOIN encounter_tokens t
		   ON t.encounter_id = e.id
		 WHERE e.id = $1
		   AND t.token_hash = $2
		   AND t.revoked_at IS NULL`,
		encounterID, tokenHash,
	).Scan(&role, &stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, p.missReason(ctx, encounterID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query encounter access: %w", err)
	}

	var st state.State
	if err := json.Unmarshal(stateJSON, &st); err != nil {
		return nil, fmt.Errorf("failed to decode state snapshot: %w", err)
	}

	return &Access{EncounterID: encounterID, Role: role, State: st}, nil
}

// GetState returns the current state for any valid role.
func (p *PostgresStore) GetState(ctx context.Context, encounterID, rawToken string) (*state.State, error) {
	access, err := p.GetAccess(ctx, encounterID, rawToken)
	if err != nil {
		return nil, err
	}
	return &access.State, nil
}

// ApplyAction commits a HOST action through the reducer.
func (p *PostgresStore) ApplyAction(ctx context.Context, encounterID, rawToken string, action map[string]any) (*state.State, error) {
	access, err := p.GetAccess(ctx, encounterID, rawToken)
	if err != nil {
		return nil, err
	}
	if access.Role != RoleHost {
		return nil, ErrForbidden
	}

	next := nextStateWithEvent(access.State, actionEvent(state.CloneRecord(action)))
	if err := p.commit(ctx, encounterID, next, nil); err != nil {
		return nil, err
	}
	return &next, nil
}

// AppendRoll commits a roll log entry and co-writes the encounter_rolls row.
func (p *PostgresStore) AppendRoll(ctx context.Context, encounterID, rawToken string, roll map[string]any) (*state.State, error) {
	access, err := p.GetAccess(ctx, encounterID, rawToken)
	if err != nil {
		return nil, err
	}

	roll = state.CloneRecord(roll)
	event := rollEvent(access.Role, roll)
	next := nextStateWithEvent(access.State, event)

	rollJSON, err := json.Marshal(roll)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal roll: %w", err)
	}

	sideWrite := func(tx *sql.Tx, now time.Time) error {
		var actorID any
		if id, ok := event["actorId"].(string); ok {
			actorID = id
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO encounter_rolls (id, encounter_id, created_at, actor_id, who_label, roll_json)
			 VALUES ($1, $2, $3, $4, $5, $6::jsonb)`,
			uuid.New().String(), encounterID, now, actorID, event["whoLabel"], rollJSON,
		); err != nil {
			return fmt.Errorf("failed to insert roll: %w", err)
		}
		return nil
	}

	if err := p.commit(ctx, encounterID, next, sideWrite); err != nil {
		return nil, err
	}
	return &next, nil
}

// AppendChat commits a chat log entry and co-writes the encounter_chat row.
func (p *PostgresStore) AppendChat(ctx context.Context, encounterID, rawToken, message string) (*state.State, error) {
	access, err := p.GetAccess(ctx, encounterID, rawToken)
	if err != nil {
		return nil, err
	}

	next := nextStateWithEvent(access.State, chatEvent(access.Role, message))

	sideWrite := func(tx *sql.Tx, now time.Time) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO encounter_chat (id, encounter_id, created_at, who_label, actor_id, text)
			 VALUES ($1, $2, $3, $4, NULL, $5)`,
			uuid.New().String(), encounterID, now, roleLabel(access.Role), message,
		); err != nil {
			return fmt.Errorf("failed to insert chat: %w", err)
		}
		return nil
	}

	if err := p.commit(ctx, encounterID, next, sideWrite); err != nil {
		return nil, err
	}
	return &next, nil
}

// commit persists a reduced state: the optional side-table write, the new
// snapshot, and the current_version pointer advance in one transaction.
func (p *PostgresStore) commit(ctx context.Context, encounterID string, next state.State, sideWrite func(tx *sql.Tx, now time.Time) error) error {
	stateJSON, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal state snapshot: %w", err)
	}
	now := time.Now().UTC()

	return p.withTx(ctx, func(tx *sql.Tx) error {
		if sideWrite != nil {
			if err := sideWrite(tx, now); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO encounter_snapshots (id, encounter_id, version, created_at, state_json)
			 VALUES ($1, $2, $3, $4, $5::jsonb)`,
			uuid.New().String(), encounterID, next.Version, now, stateJSON,
		); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return ErrConflict
			}
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE encounters
			 SET current_version = $1, status = $2, updated_at = $3
			 WHERE id = $4`,
			next.Version, next.Status, now, encounterID,
		); err != nil {
			return fmt.Errorf("failed to advance encounter version: %w", err)
		}
		return nil
	})
}

// PruneIdle deletes encounters whose last commit predates the cutoff.
// Tokens, snapshots, rolls, and chat go with them via ON DELETE CASCADE.
func (p *PostgresStore) PruneIdle(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM encounters WHERE updated_at < $1`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune idle encounters: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned encounters: %w", err)
	}
	return int(affected), nil
}

func (p *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// missReason distinguishes an unknown encounter from an invalid token so the
// API can map GETs to 404 and POSTs to 403.
func (p *PostgresStore) missReason(ctx context.Context, encounterID string) error {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM encounters WHERE id = $1)`, encounterID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check encounter existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrUnauthorized
}
