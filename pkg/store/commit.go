package store

import (
	"strings"

	"github.com/dndtracker/dndtracker/pkg/engine"
	"github.com/dndtracker/dndtracker/pkg/state"
)

// nextStateWithEvent applies the shared commit discipline: copy the state,
// increment the version, stamp updatedAt, append the incoming event, then for
// action events run the reducer and append its events after the trigger.
// Reducer no-ops still produce a committed version.
func nextStateWithEvent(s state.State, event map[string]any) state.State {
	next := s.Clone()
	next.Version++
	next.Meta.UpdatedAt = state.NowISO()
	next.Log = append(next.Log, event)

	kind, _ := event["kind"].(string)

	if kind == "chat" {
		message, _ := event["message"].(string)
		role, _ := event["role"].(string)
		whoLabel, _ := event["whoLabel"].(string)
		next.Chat = append(next.Chat, state.ChatEntry{
			Role:     role,
			Text:     message,
			WhoLabel: whoLabel,
			ActorID:  nil,
		})
	}

	if kind == "action" {
		action, _ := event["action"].(map[string]any)
		reduced, engineEvents := engine.ApplyHostAction(next, action)
		reduced.Log = append(reduced.Log, engineEvents...)
		next = reduced
	}

	return next
}

// actionEvent shapes the log entry for a host action.
func actionEvent(action map[string]any) map[string]any {
	return map[string]any{"kind": "action", "role": RoleHost, "action": action}
}

// rollEvent shapes the log entry for a dice roll. whoLabel defaults to the
// caller's role label unless the roll carries a non-empty override; actorId
// is taken from the roll when present.
func rollEvent(role string, roll map[string]any) map[string]any {
	var actorID any
	if id, ok := roll["actorId"].(string); ok {
		actorID = id
	}

	whoLabel := roleLabel(role)
	if raw, ok := roll["whoLabel"].(string); ok {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			whoLabel = trimmed
		}
	}

	return map[string]any{
		"kind":     "roll",
		"role":     role,
		"roll":     roll,
		"whoLabel": whoLabel,
		"actorId":  actorID,
	}
}

// chatEvent shapes the log entry for a chat message.
func chatEvent(role, message string) map[string]any {
	return map[string]any{
		"kind":     "chat",
		"role":     role,
		"message":  message,
		"whoLabel": roleLabel(role),
		"actorId":  nil,
	}
}
