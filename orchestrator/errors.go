package orchestrator

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAgentNotFound     = errors.New("agent not found")
	ErrStatusRegression  = errors.New("status cannot move backwards")
	ErrAlreadyTerminal   = errors.New("agent is already terminal")
	ErrDuplicateDelivery = errors.New("duplicate terminal delivery")
	ErrNotStarted        = errors.New("runtime not started")
	ErrRuntimeClosed     = errors.New("runtime closed")
	ErrNoActiveTurn      = errors.New("no turn has begun")
)

// ValidationError rejects a spawn request before any agent is created
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// AgentFailure is a child that ended with an error outcome
type AgentFailure struct {
	AgentID     string
	DisplayName string
	Message     string
}

func (e *AgentFailure) Error() string {
	return fmt.Sprintf("agent %s (%s) failed: %s", e.DisplayName, ShortID(e.AgentID), e.Message)
}

// AgentTimeout is a child that did not finish within the watch ceiling
type AgentTimeout struct {
	AgentID string
	After   time.Duration
}

func (e *AgentTimeout) Error() string {
	return fmt.Sprintf("agent %s timed out after %s", ShortID(e.AgentID), e.After)
}

// SummarizationFailure leaves the raw log in place
type SummarizationFailure struct {
	AgentID string
	Err     error
}

func (e *SummarizationFailure) Error() string {
	return fmt.Sprintf("summarize agent %s: %v", ShortID(e.AgentID), e.Err)
}

func (e *SummarizationFailure) Unwrap() error {
	return e.Err
}

// CancellationTimeout means the child ignored a cancel for the whole grace
// period. The agent is marked cancelled and its partial output is dropped.
type CancellationTimeout struct {
	AgentID string
	Grace   time.Duration
}

func (e *CancellationTimeout) Error() string {
	return fmt.Sprintf("agent %s did not stop within %s; forced cancel, partial output discarded", ShortID(e.AgentID), e.Grace)
}

// failureOf maps a terminal outcome onto the error taxonomy, nil on success
func failureOf(rec AgentRecord, ceiling time.Duration) error {
	switch rec.Status {
	case StatusFailed:
		return &AgentFailure{AgentID: rec.AgentID, DisplayName: rec.DisplayName, Message: rec.Detail}
	case StatusTimedOut:
		return &AgentTimeout{AgentID: rec.AgentID, After: ceiling}
	}
	return nil
}
