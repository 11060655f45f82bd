// Package conversation maintains per-session transcripts under a size or
// token budget. Turns are append-only except for eviction, and eviction
// always removes an assistant turn together with the tool turns its plan
// produced so no tool turn is ever orphaned.
package conversation

import (
	"fmt"
	"time"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is a single transcript entry.
type Turn struct {
	Role    Role
	Content string

	// CorrelationID links a tool turn to the assistant-issued invocation
	// that produced it. Required for tool turns, empty otherwise.
	CorrelationID string

	// InvocationIDs lists the invocation ids an assistant turn issued.
	// Tool turns appended after it must correlate to one of these.
	InvocationIDs []string

	// TokenEstimate is the approximate token weight of this turn. When zero
	// the manager computes it on append.
	TokenEstimate int

	CreatedAt time.Time
}

// Manager is the transcript contract consumed by the agent loop.
type Manager interface {
	// Append adds a turn, evicting older turns if the strategy's bound is
	// exceeded. It fails when the turn would violate the tool/assistant
	// correlation invariant.
	Append(turn Turn) error
	// Snapshot returns the retained turns in order.
	Snapshot() []Turn
	// EstimateTokens returns the cumulative token estimate of retained turns.
	EstimateTokens() int
	// OverBudget reports whether the most recent turns alone exceed the
	// budget and were kept anyway.
	OverBudget() bool
}

// EstimateTurnTokens approximates the token weight of a turn: four characters
// per token plus fixed overhead for role and formatting.
func EstimateTurnTokens(content string) int {
	return len(content)/4 + 4
}

// transcript holds shared append/invariant logic for both eviction strategies.
type transcript struct {
	turns   []Turn
	usedIDs map[string]bool
}

func newTranscript() transcript {
	return transcript{usedIDs: make(map[string]bool)}
}

// append validates the correlation invariant and adds the turn.
func (t *transcript) append(turn Turn) error {
	if turn.TokenEstimate == 0 {
		turn.TokenEstimate = EstimateTurnTokens(turn.Content)
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	if turn.Role == RoleTool {
		if turn.CorrelationID == "" {
			return fmt.Errorf("tool turn has no correlation id")
		}
		if t.usedIDs[turn.CorrelationID] {
			return fmt.Errorf("correlation id %s already consumed", turn.CorrelationID)
		}
		assistant := t.trailingAssistant()
		if assistant == nil || !containsID(assistant.InvocationIDs, turn.CorrelationID) {
			return fmt.Errorf("tool turn %s does not follow the assistant turn that issued it", turn.CorrelationID)
		}
		t.usedIDs[turn.CorrelationID] = true
	}

	t.turns = append(t.turns, turn)
	return nil
}

// trailingAssistant returns the assistant turn heading the current trailing
// assistant/tool block, or nil if the transcript does not end in one.
func (t *transcript) trailingAssistant() *Turn {
	for i := len(t.turns) - 1; i >= 0; i-- {
		switch t.turns[i].Role {
		case RoleTool:
			continue
		case RoleAssistant:
			return &t.turns[i]
		default:
			return nil
		}
	}
	return nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// snapshot returns a copy of the retained turns.
func (t *transcript) snapshot() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// totalTokens sums the token estimates of retained turns.
func (t *transcript) totalTokens() int {
	total := 0
	for _, turn := range t.turns {
		total += turn.TokenEstimate
	}
	return total
}

// countNonSystem counts retained non-system turns.
func (t *transcript) countNonSystem() int {
	n := 0
	for _, turn := range t.turns {
		if turn.Role != RoleSystem {
			n++
		}
	}
	return n
}

// oldestUnit locates the oldest evictable unit: a contiguous run of turns
// that must leave together. An assistant turn and the tool turns that follow
// it form one unit; a user turn is its own unit; system turns are skipped.
// Returns the start index and length, or (-1, 0) when nothing is evictable.
func (t *transcript) oldestUnit() (int, int) {
	for i, turn := range t.turns {
		switch turn.Role {
		case RoleSystem:
			continue
		case RoleAssistant:
			n := 1
			for j := i + 1; j < len(t.turns) && t.turns[j].Role == RoleTool; j++ {
				n++
			}
			return i, n
		default:
			return i, 1
		}
	}
	return -1, 0
}

// isLastUnit reports whether the unit starting at index start extends to the
// end of the transcript, i.e. evicting it would drop the most recent turns.
func (t *transcript) isLastUnit(start, length int) bool {
	return start+length >= len(t.turns)
}

// evict removes the unit at [start, start+length).
func (t *transcript) evict(start, length int) {
	t.turns = append(t.turns[:start], t.turns[start+length:]...)
}
