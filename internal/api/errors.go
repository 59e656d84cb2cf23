package api

import "fmt"

// HTTPError is a reachable-but-erroring backend: the request was delivered
// and the server answered with a non-2xx status.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// ContractError is a 2xx response whose body does not satisfy the fixed
// schema. Kept distinct from HTTPError so callers can tell a broken backend
// from a broken contract.
type ContractError struct {
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("unexpected response shape: %s", e.Reason)
}
