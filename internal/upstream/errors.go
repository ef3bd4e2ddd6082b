package upstream

import "fmt"

// Error is the normalized form of a non-200 upstream response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Message)
}

// ContractError marks a 200 response whose body does not match the
// documented shape of the upstream operation.
type ContractError struct {
	Op     string
	Detail string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("upstream contract violation in %s: %s", e.Op, e.Detail)
}
