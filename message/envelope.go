/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

// Package message defines the alert envelope sent to the relay and the
// bookkeeping attached to it while it waits in the retry queue.
package message

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/xid"
)

// ErrEmptyMessage is returned when an envelope is built without text.
var ErrEmptyMessage = errors.New("message text is empty")

// Tags are the contextual values attached to every envelope by the client configuration.
type Tags struct {
	ProjectID   string
	Environment string
}

// Envelope is one alert message with its context. It's treated as immutable once built.
type Envelope struct {
	Message     string
	Severity    Severity
	Metadata    map[string]interface{}
	Timestamp   time.Time
	ProjectID   string
	Environment string
}

// NewEnvelope validates text and builds an envelope stamped with now.
// An empty severity defaults to info; metadata is copied.
func NewEnvelope(text string, severity Severity, metadata map[string]interface{}, tags Tags, now time.Time) (Envelope, error) {
	if text == "" {
		return Envelope{}, ErrEmptyMessage
	}
	if severity == "" {
		severity = SeverityInfo
	}
	var md map[string]interface{}
	if len(metadata) > 0 {
		md = make(map[string]interface{}, len(metadata))
		for k, v := range metadata {
			md[k] = v
		}
	}
	return Envelope{
		Message:     text,
		Severity:    severity,
		Metadata:    md,
		Timestamp:   now,
		ProjectID:   tags.ProjectID,
		Environment: tags.Environment,
	}, nil
}

type wireEnvelope struct {
	Message     string                 `json:"message"`
	Severity    Severity               `json:"severity"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   int64                  `json:"timestamp"`
	ProjectID   string                 `json:"projectId"`
	Environment string                 `json:"environment"`
}

// MarshalJSON encodes the envelope in the relay wire format (timestamp in Unix milliseconds).
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEnvelope{
		Message:     e.Message,
		Severity:    e.Severity,
		Metadata:    e.Metadata,
		Timestamp:   e.Timestamp.UnixMilli(),
		ProjectID:   e.ProjectID,
		Environment: e.Environment,
	})
}

// UnmarshalJSON decodes the relay wire format.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Envelope{
		Message:     w.Message,
		Severity:    w.Severity,
		Metadata:    w.Metadata,
		Timestamp:   time.UnixMilli(w.Timestamp),
		ProjectID:   w.ProjectID,
		Environment: w.Environment,
	}
	return nil
}

// Queued is an envelope owned by the retry queue.
type Queued struct {
	Envelope

	ID          string
	RetryCount  int
	ScheduledAt time.Time
}

// NewQueued wraps env for the queue with a fresh ID, no retries and ScheduledAt set to now.
func NewQueued(env Envelope, now time.Time) *Queued {
	return &Queued{Envelope: env, ID: xid.New().String(), ScheduledAt: now}
}

// Due reports whether the next attempt may happen at now.
func (q *Queued) Due(now time.Time) bool {
	return !now.Before(q.ScheduledAt)
}
