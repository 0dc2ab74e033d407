// Package state defines the encounter state document and its initial builder.
//
// Actors, effects, concentration entries, and log events are open records
// (field-addressable maps): the engine reads the handful of fields it cares
// about and passes everything else through untouched, so clients can attach
// extra fields without breaking the server.
package state

import (
	"time"
)

// Encounter status values. An encounter starts in setup and is promoted to
// running by its first host action; it never transitions back.
const (
	StatusSetup   = "setup"
	StatusRunning = "running"
)

// ChatEntry is one visible chat line.
type ChatEntry struct {
	Role     string  `json:"role"`
	Text     string  `json:"text"`
	WhoLabel string  `json:"whoLabel"`
	ActorID  *string `json:"actorId"`
}

// Meta carries encounter display metadata. Timestamps are ISO-8601 UTC.
type Meta struct {
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// State is the single authoritative document for an encounter at one version.
type State struct {
	ID            string                    `json:"id"`
	Version       int                       `json:"version"`
	Status        string                    `json:"status"`
	Round         int                       `json:"round"`
	TurnIndex     int                       `json:"turnIndex"`
	TurnOrder     []string                  `json:"turnOrder"`
	Actors        map[string]any            `json:"actors"`
	Effects       []map[string]any          `json:"effects"`
	Concentration map[string]map[string]any `json:"concentration"`
	Chat          []ChatEntry               `json:"chat"`
	Log           []map[string]any          `json:"log"`
	Meta          Meta                      `json:"meta"`
}

// NowISO formats the current time as ISO-8601 UTC with sub-second precision.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// BuildInitialState returns a fresh encounter state at version 1 with empty
// collections and createdAt == updatedAt.
func BuildInitialState(encounterID, name string) State {
	now := NowISO()
	return State{
		ID:            encounterID,
		Version:       1,
		Status:        StatusSetup,
		Round:         1,
		TurnIndex:     0,
		TurnOrder:     []string{},
		Actors:        map[string]any{},
		Effects:       []map[string]any{},
		Concentration: map[string]map[string]any{},
		Chat:          []ChatEntry{},
		Log:           []map[string]any{},
		Meta: Meta{
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// Clone returns a deep copy of the state. Mutating the copy never affects the
// original; this backs the reducer's purity and the store's commit discipline.
func (s State) Clone() State {
	out := s
	out.TurnOrder = append([]string(nil), s.TurnOrder...)
	out.Actors = CloneRecord(s.Actors)
	out.Effects = cloneRecordSlice(s.Effects)
	out.Concentration = make(map[string]map[string]any, len(s.Concentration))
	for actorID, entry := range s.Concentration {
		out.Concentration[actorID] = CloneRecord(entry)
	}
	out.Chat = append([]ChatEntry(nil), s.Chat...)
	out.Log = cloneRecordSlice(s.Log)
	return out
}

// CloneRecord deep-copies an open record. A nil record stays nil so that
// cleared concentration slots keep serializing as null.
func CloneRecord(record map[string]any) map[string]any {
	if record == nil {
		return nil
	}
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneRecordSlice(records []map[string]any) []map[string]any {
	if records == nil {
		return nil
	}
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = CloneRecord(r)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneRecord(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
