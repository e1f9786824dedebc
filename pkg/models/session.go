package models

import (
	"errors"
	"time"
)

// SessionStatus is the lifecycle state of a FlowSession.
type SessionStatus string

const (
	SessionStatusActive   SessionStatus = "active"
	SessionStatusInactive SessionStatus = "inactive"
	SessionStatusTimeout  SessionStatus = "timeout"
)

// WaitKind tells what a suspended active session is waiting for.
type WaitKind string

const (
	WaitNone  WaitKind = ""
	WaitInput WaitKind = "input"
	WaitDelay WaitKind = "delay"
)

// HistoryRole identifies who produced a history entry.
type HistoryRole string

const (
	RoleCustomer HistoryRole = "customer"
	RoleBot      HistoryRole = "bot"
	RoleSystem   HistoryRole = "system"
	RoleError    HistoryRole = "error"
)

// ErrSessionTerminal is returned when mutating a session that already ended.
var ErrSessionTerminal = errors.New("session is terminal")

// HistoryEntry is one item of a session's message history.
type HistoryEntry struct {
	ID        string      `json:"id"`
	Role      HistoryRole `json:"role"`
	Type      string      `json:"type,omitempty"`
	Content   string      `json:"content"`
	NodeID    string      `json:"node_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// FlowSession is one execution of a flow against one chat. Variables start as
// a copy of the flow defaults and are owned by the session afterwards.
type FlowSession struct {
	ID                string            `json:"id"`
	FlowID            string            `json:"flow_id"`
	TriggerID         string            `json:"trigger_id,omitempty"`
	OrganizationID    string            `json:"organization_id"`
	ChatID            string            `json:"chat_id"`
	CustomerID        string            `json:"customer_id"`
	CurrentNodeID     string            `json:"current_node_id"`
	Status            SessionStatus     `json:"status"`
	Variables         map[string]string `json:"variables"`
	MessageHistory    []HistoryEntry    `json:"message_history"`
	Waiting           WaitKind          `json:"waiting,omitempty"`
	TimeoutAt         *time.Time        `json:"timeout_at,omitempty"`
	ResumeAt          *time.Time        `json:"resume_at,omitempty"`
	DebounceTimestamp *time.Time        `json:"debounce_timestamp,omitempty"`
	PendingInput      []string          `json:"pending_input,omitempty"`
	Error             string            `json:"error,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	EndedAt           *time.Time        `json:"ended_at,omitempty"`
}

// IsTerminal reports whether the session can no longer change.
func (s *FlowSession) IsTerminal() bool {
	return s.Status == SessionStatusInactive || s.Status == SessionStatusTimeout
}

// Append records a history entry.
func (s *FlowSession) Append(entry HistoryEntry) {
	s.MessageHistory = append(s.MessageHistory, entry)
}

// End moves the session to a terminal status and clears any pending wait.
func (s *FlowSession) End(status SessionStatus, now time.Time) error {
	if s.IsTerminal() {
		return ErrSessionTerminal
	}

	s.Status = status
	s.ClearWait()
	s.EndedAt = &now
	s.UpdatedAt = now

	return nil
}

// ClearWait drops every timer and buffered input.
func (s *FlowSession) ClearWait() {
	s.Waiting = WaitNone
	s.TimeoutAt = nil
	s.ResumeAt = nil
	s.DebounceTimestamp = nil
	s.PendingInput = nil
}

// DueAt returns when the scheduler must look at the session again. Buffered
// input waiting for the debounce window takes precedence over the input
// timeout.
func (s *FlowSession) DueAt() (time.Time, bool) {
	if s.IsTerminal() {
		return time.Time{}, false
	}

	switch s.Waiting {
	case WaitDelay:
		if s.ResumeAt != nil {
			return *s.ResumeAt, true
		}
	case WaitInput:
		if len(s.PendingInput) > 0 && s.DebounceTimestamp != nil {
			return *s.DebounceTimestamp, true
		}

		if s.TimeoutAt != nil {
			return *s.TimeoutAt, true
		}
	}

	return time.Time{}, false
}

// IsDue reports whether the session has a timer that elapsed at now.
func (s *FlowSession) IsDue(now time.Time) bool {
	at, ok := s.DueAt()

	return ok && !at.After(now)
}

// Clone returns a deep copy of the session.
func (s *FlowSession) Clone() *FlowSession {
	clone := *s

	if s.Variables != nil {
		clone.Variables = make(map[string]string, len(s.Variables))
		for k, v := range s.Variables {
			clone.Variables[k] = v
		}
	}

	if s.MessageHistory != nil {
		clone.MessageHistory = append([]HistoryEntry(nil), s.MessageHistory...)
	}

	if s.PendingInput != nil {
		clone.PendingInput = append([]string(nil), s.PendingInput...)
	}

	clone.TimeoutAt = copyTime(s.TimeoutAt)
	clone.ResumeAt = copyTime(s.ResumeAt)
	clone.DebounceTimestamp = copyTime(s.DebounceTimestamp)
	clone.EndedAt = copyTime(s.EndedAt)

	return &clone
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	c := *t

	return &c
}
