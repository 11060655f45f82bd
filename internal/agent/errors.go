package agent

import "fmt"

// BudgetExceededError is terminal: the session ran out of iterations. The
// caller still receives a partial answer built from the last observation.
type BudgetExceededError struct {
	Iterations int
	Max        int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("iteration budget exceeded: %d iterations used, max %d", e.Iterations, e.Max)
}

// InferenceError is terminal: the inference capability failed or timed out.
// LastObservation carries the last good tool output so the failure is not
// silent.
type InferenceError struct {
	Err             error
	LastObservation string
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
