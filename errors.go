package parley

import "fmt"

// ErrModel reports a failure inside a model backend.
type ErrModel struct {
	Model   string
	Message string
}

func (e *ErrModel) Error() string {
	return fmt.Sprintf("%s: %s", e.Model, e.Message)
}

// ErrHTTP reports a non-2xx response from a model API.
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}
