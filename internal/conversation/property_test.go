package conversation

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// appendUnits appends n assistant/tool units, each with toolsPerUnit tool
// turns of the given weight, returning an error on any invariant violation.
func appendUnits(m Manager, n, toolsPerUnit, weight int) error {
	for i := 0; i < n; i++ {
		ids := make([]string, toolsPerUnit)
		for j := range ids {
			ids[j] = fmt.Sprintf("inv-%d-%d", i, j)
		}
		if err := m.Append(Turn{
			Role:          RoleAssistant,
			Content:       fmt.Sprintf("plan %d", i),
			InvocationIDs: ids,
			TokenEstimate: weight,
		}); err != nil {
			return err
		}
		for _, id := range ids {
			if err := m.Append(Turn{
				Role:          RoleTool,
				Content:       "result " + id,
				CorrelationID: id,
				TokenEstimate: weight,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// noOrphans reports whether every tool turn correlates to the assistant turn
// heading its block.
func noOrphans(turns []Turn) bool {
	var issued []string
	for _, turn := range turns {
		switch turn.Role {
		case RoleAssistant:
			issued = turn.InvocationIDs
		case RoleTool:
			if !containsID(issued, turn.CorrelationID) {
				return false
			}
		default:
			issued = nil
		}
	}
	return true
}

func TestSlidingWindowInvariantsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("eviction never orphans a tool turn", prop.ForAll(
		func(units, toolsPerUnit, maxTurns int) bool {
			m := NewSlidingWindow(maxTurns)
			if err := appendUnits(m, units, toolsPerUnit, 1); err != nil {
				return false
			}
			return noOrphans(m.Snapshot())
		},
		gen.IntRange(1, 12),
		gen.IntRange(1, 4),
		gen.IntRange(1, 10),
	))

	properties.Property("retained turn count respects the bound when multiple units exist", prop.ForAll(
		func(units, maxTurns int) bool {
			m := NewSlidingWindow(maxTurns)
			if err := appendUnits(m, units, 1, 1); err != nil {
				return false
			}
			turns := m.Snapshot()
			// A single unit may exceed the bound; otherwise the bound holds
			// within one unit's slack.
			return len(turns) <= maxTurns+1
		},
		gen.IntRange(1, 15),
		gen.IntRange(2, 10),
	))

	properties.TestingRun(t)
}

func TestTokenAwareInvariantsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("within budget or flagged over-budget", prop.ForAll(
		func(units, weight, budget int) bool {
			m := NewTokenAware(budget)
			if err := appendUnits(m, units, 1, weight); err != nil {
				return false
			}
			return m.EstimateTokens() <= budget || m.OverBudget()
		},
		gen.IntRange(1, 12),
		gen.IntRange(1, 50),
		gen.IntRange(10, 200),
	))

	properties.Property("eviction never orphans a tool turn", prop.ForAll(
		func(units, toolsPerUnit, weight, budget int) bool {
			m := NewTokenAware(budget)
			if err := appendUnits(m, units, toolsPerUnit, weight); err != nil {
				return false
			}
			return noOrphans(m.Snapshot())
		},
		gen.IntRange(1, 10),
		gen.IntRange(1, 3),
		gen.IntRange(1, 40),
		gen.IntRange(10, 150),
	))

	properties.TestingRun(t)
}
