package conversation

import "sync"

// SlidingWindow retains at most maxTurns of the most recent non-system turns.
// System turns are never evicted. When the bound is exceeded, the oldest
// non-system unit (an assistant turn plus its tool turns, or a lone user
// turn) is removed whole.
type SlidingWindow struct {
	mu       sync.Mutex
	t        transcript
	maxTurns int
}

// NewSlidingWindow creates a sliding-window manager retaining maxTurns
// non-system turns.
func NewSlidingWindow(maxTurns int) *SlidingWindow {
	return &SlidingWindow{t: newTranscript(), maxTurns: maxTurns}
}

// Append implements Manager.
func (m *SlidingWindow) Append(turn Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.t.append(turn); err != nil {
		return err
	}

	for m.t.countNonSystem() > m.maxTurns {
		start, length := m.t.oldestUnit()
		if start < 0 || m.t.isLastUnit(start, length) {
			// Never drop the turns just appended, even over-bound.
			break
		}
		m.t.evict(start, length)
	}
	return nil
}

// Snapshot implements Manager.
func (m *SlidingWindow) Snapshot() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.snapshot()
}

// EstimateTokens implements Manager.
func (m *SlidingWindow) EstimateTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.totalTokens()
}

// OverBudget implements Manager. The sliding window bounds turn count, not
// tokens, so it never reports over-budget.
func (m *SlidingWindow) OverBudget() bool { return false }
