package domain

import "time"

type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusSuccess   TaskStatus = "success"
	StatusFailure   TaskStatus = "failure"
	StatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether no further transition is permitted from s.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo enforces the task state machine:
// pending -> running, running -> success|failure, pending|running -> cancelled.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusCancelled
	case StatusRunning:
		return next == StatusSuccess || next == StatusFailure || next == StatusCancelled
	}
	return false
}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSuccess, StatusFailure, StatusCancelled:
		return true
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

type Task struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	Payload     map[string]string `json:"payload,omitempty"`
	Status      TaskStatus        `json:"status"`
	Progress    float64           `json:"progress"`
	Priority    Priority          `json:"priority"`
	Owner       string            `json:"owner,omitempty"`
	RetryCount  int               `json:"retry_count"`
	MaxRetries  int               `json:"max_retries"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Result      map[string]string `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
}
