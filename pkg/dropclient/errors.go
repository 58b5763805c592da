package dropclient

import "fmt"

// DomainError is a backend business rejection (not in phase, sold out,
// already claimed, ...). It is returned as a value alongside results, never
// as the error return: callers render Reason inline without try/catch-style
// handling. Network failures use the plain error return instead.
type DomainError struct {
	Op     string // join | leave | claim | complete | create
	Key    string // dropID or claimID the rejection applies to
	Reason string // human-readable message from the server
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s rejected: key=%s reason=%s", e.Op, e.Key, e.Reason)
}

type UnexpectedStatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("unexpected status: %s %s -> %d body=%q", e.Method, e.Path, e.Code, e.Body)
}
