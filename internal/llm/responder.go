// Package llm holds the response back ends and the registry that picks one
// and falls back to the others when it fails.
package llm

import (
	"context"
	"fmt"
)

// Role tags one turn of the conversation sent to a back end.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged conversation entry.
type Turn struct {
	Role    Role
	Content string
}

// Request is everything a responder needs for one call. Turns always ends
// with the new prompt as a user turn.
type Request struct {
	System string
	Turns  []Turn
}

// Responder is a remote text-generation capability. Implementations keep no
// session state; all context comes in through Request.
type Responder interface {
	Name() string
	Type() string
	Model() string
	Generate(ctx context.Context, req Request) (string, error)
}

// ProviderError wraps a failure of a single responder.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 2000
)
