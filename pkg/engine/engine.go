// Package engine implements the deterministic reducer for host actions.
//
// ApplyHostAction is pure: it never mutates its input and equal inputs always
// produce equal outputs. Unknown action types and malformed parameters are
// no-ops, except that every action promotes a setup encounter to running.
package engine

import (
	"math"
	"strings"

	"github.com/dndtracker/dndtracker/pkg/state"
)

// ApplyHostAction reduces one host action into the next state plus the list
// of engine-emitted events. Events carry the originating action verbatim
// under the "action" key so the log preserves the full wire record.
func ApplyHostAction(s state.State, action map[string]any) (state.State, []map[string]any) {
	next := s.Clone()
	action = state.CloneRecord(action)

	switch strings.ToUpper(stringField(action, "type")) {
	case "NEXT_TURN":
		return applyNextTurn(next, action)
	case "ADD_EFFECT":
		return applyAddEffect(next, action)
	case "REMOVE_EFFECT":
		return applyRemoveEffect(next, action)
	case "APPLY_DAMAGE":
		return applyDamage(next, action)
	case "RESOLVE_CONCENTRATION_SAVE":
		return applyResolveConcentrationSave(next, action)
	case "APPLY_SAVE_RESULT":
		return applySaveResult(next, action)
	}
	return withRunningStatus(next), nil
}

// withRunningStatus performs the first-mutation promotion.
func withRunningStatus(s state.State) state.State {
	if s.Status == state.StatusSetup {
		s.Status = state.StatusRunning
	}
	return s
}

func applyNextTurn(s state.State, action map[string]any) (state.State, []map[string]any) {
	next := withRunningStatus(s)

	if len(next.TurnOrder) == 0 {
		// No combatants: log the empty turn end, leave round and turnIndex alone.
		return next, []map[string]any{
			{"kind": "timing", "timing": "turn_end", "actorId": nil, "action": action},
		}
	}

	current := next.TurnOrder[next.TurnIndex]
	events := []map[string]any{
		{"kind": "timing", "timing": "turn_end", "actorId": current, "action": action},
	}

	newIndex := next.TurnIndex + 1
	wrapped := newIndex >= len(next.TurnOrder)
	if wrapped {
		newIndex = 0
	}
	next.TurnIndex = newIndex

	if wrapped {
		events = append(events, map[string]any{"kind": "timing", "timing": "round_end", "action": action})
		next.Effects = tickRoundEndEffects(next.Effects)
		next.Round++
		events = append(events, map[string]any{"kind": "timing", "timing": "round_start", "action": action})
	}

	events = append(events, map[string]any{
		"kind": "timing", "timing": "turn_start", "actorId": next.TurnOrder[newIndex], "action": action,
	})
	return next, events
}

func applyAddEffect(s state.State, action map[string]any) (state.State, []map[string]any) {
	next := withRunningStatus(s)
	effect, ok := action["effect"].(map[string]any)
	if !ok {
		return next, nil
	}
	next.Effects = append(next.Effects, state.CloneRecord(effect))
	return next, []map[string]any{
		{"kind": "effect_added", "effect": state.CloneRecord(effect), "action": action},
	}
}

func applyRemoveEffect(s state.State, action map[string]any) (state.State, []map[string]any) {
	next := withRunningStatus(s)
	effectID := stringField(action, "effectId")
	if effectID == "" {
		return next, nil
	}

	filtered := make([]map[string]any, 0, len(next.Effects))
	for _, effect := range next.Effects {
		if stringField(effect, "id") == effectID {
			continue
		}
		filtered = append(filtered, effect)
	}
	if len(filtered) == len(next.Effects) {
		return next, nil
	}

	next.Effects = filtered
	return next, []map[string]any{
		{"kind": "effect_removed", "effectId": effectID, "action": action},
	}
}

func applyDamage(s state.State, action map[string]any) (state.State, []map[string]any) {
	next := withRunningStatus(s)
	actorID := stringField(action, "actorId")
	damageTaken, _ := intField(action, "damageTaken")
	if actorID == "" || damageTaken <= 0 {
		return next, nil
	}

	entry := next.Concentration[actorID]
	if len(entry) == 0 {
		// Not concentrating (missing, cleared, or empty slot): nothing to check.
		return next, nil
	}

	dc := damageTaken / 2
	if dc < 10 {
		dc = 10
	}
	entry["checkNeeded"] = true
	entry["dc"] = dc
	entry["lastDamageTaken"] = damageTaken
	next.Concentration[actorID] = entry

	return next, []map[string]any{
		{"kind": "concentration_check_needed", "actorId": actorID, "dc": dc, "action": action},
	}
}

func applyResolveConcentrationSave(s state.State, action map[string]any) (state.State, []map[string]any) {
	next := withRunningStatus(s)
	actorID := stringField(action, "actorId")
	success := boolField(action, "success")
	if actorID == "" {
		return next, nil
	}

	entry, exists := next.Concentration[actorID]
	if !exists || entry == nil {
		return next, nil
	}

	if success {
		entry["checkNeeded"] = false
		entry["lastResult"] = "success"
		next.Concentration[actorID] = entry
		return next, []map[string]any{
			{"kind": "concentration_resolved", "actorId": actorID, "success": true, "action": action},
		}
	}

	// Failed save: clear the slot and drop every effect sustained by this actor.
	next.Concentration[actorID] = nil
	filtered := make([]map[string]any, 0, len(next.Effects))
	for _, effect := range next.Effects {
		if concentrationBound(effect, actorID) {
			continue
		}
		filtered = append(filtered, effect)
	}
	next.Effects = filtered
	return next, []map[string]any{
		{"kind": "concentration_resolved", "actorId": actorID, "success": false, "action": action},
	}
}

// concentrationBound reports whether an effect depends on the given actor's
// concentration: either it names the actor as its concentration anchor, or it
// was sourced by the actor and flagged requiresConcentration.
func concentrationBound(effect map[string]any, actorID string) bool {
	if effect == nil {
		return false
	}
	if effect["concentrationActorId"] == actorID {
		return true
	}
	return effect["sourceActorId"] == actorID && effect["requiresConcentration"] == true
}

func applySaveResult(s state.State, action map[string]any) (state.State, []map[string]any) {
	next := withRunningStatus(s)
	effectID := stringField(action, "effectId")
	success := boolField(action, "success")
	if effectID == "" {
		return next, nil
	}

	if !success {
		return next, []map[string]any{
			{"kind": "save_applied", "effectId": effectID, "success": false, "action": action},
		}
	}

	filtered := make([]map[string]any, 0, len(next.Effects))
	for _, effect := range next.Effects {
		if stringField(effect, "id") == effectID {
			continue
		}
		filtered = append(filtered, effect)
	}
	next.Effects = filtered
	return next, []map[string]any{
		{"kind": "save_applied", "effectId": effectID, "success": true, "action": action},
	}
}

// tickRoundEndEffects decrements every integer roundsRemaining by one and
// drops effects that reach zero. Effects without a duration pass through and
// relative order is preserved.
func tickRoundEndEffects(effects []map[string]any) []map[string]any {
	next := make([]map[string]any, 0, len(effects))
	for _, effect := range effects {
		if effect == nil {
			next = append(next, effect)
			continue
		}
		remaining, ok := intValue(effect["roundsRemaining"])
		if ok {
			remaining--
			if remaining <= 0 {
				continue
			}
			effect["roundsRemaining"] = remaining
		}
		next = append(next, effect)
	}
	return next
}

func stringField(record map[string]any, key string) string {
	if record == nil {
		return ""
	}
	str, _ := record[key].(string)
	return str
}

func boolField(record map[string]any, key string) bool {
	if record == nil {
		return false
	}
	b, _ := record[key].(bool)
	return b
}

func intField(record map[string]any, key string) (int, bool) {
	if record == nil {
		return 0, false
	}
	return intValue(record[key])
}

// intValue normalizes the numeric shapes JSON decoding produces. A float is
// treated as an integer only when it has no fractional part.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
