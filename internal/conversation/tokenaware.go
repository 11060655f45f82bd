package conversation

import "sync"

// TokenAware retains turns while their cumulative token estimate stays within
// the budget. On overflow the oldest non-system units are evicted until the
// transcript fits. If the most recent unit alone exceeds the budget it is
// kept anyway and the manager reports over-budget, so the content needed to
// answer the current step is never dropped.
type TokenAware struct {
	mu         sync.Mutex
	t          transcript
	budget     int
	overBudget bool
}

// NewTokenAware creates a token-aware manager with the given budget.
func NewTokenAware(budget int) *TokenAware {
	return &TokenAware{t: newTranscript(), budget: budget}
}

// Append implements Manager.
func (m *TokenAware) Append(turn Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.t.append(turn); err != nil {
		return err
	}

	m.overBudget = false
	for m.t.totalTokens() > m.budget {
		start, length := m.t.oldestUnit()
		if start < 0 || m.t.isLastUnit(start, length) {
			m.overBudget = true
			break
		}
		m.t.evict(start, length)
	}
	return nil
}

// Snapshot implements Manager.
func (m *TokenAware) Snapshot() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.snapshot()
}

// EstimateTokens implements Manager.
func (m *TokenAware) EstimateTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.totalTokens()
}

// OverBudget implements Manager.
func (m *TokenAware) OverBudget() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overBudget
}
