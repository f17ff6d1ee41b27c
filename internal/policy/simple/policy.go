// Package simple contains a permissive policy for local development.
package simple

// Policy admits every fetch and headless request.
type Policy struct{}

// New creates a new Policy.
func New() *Policy {
	return &Policy{}
}

// AllowHeadless always admits.
func (Policy) AllowHeadless(_ string, _ string) bool {
	return true
}

// AllowFetch always admits.
func (Policy) AllowFetch(_ string, _ string) bool {
	return true
}
