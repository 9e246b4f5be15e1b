/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

// Package ratelimit provides the severity-weighted token bucket that throttles outgoing alerts.
package ratelimit

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/consoletext/consoletext-go/message"
)

// Limiter admits or denies work by its token cost.
type Limiter interface {
	// CanSend reports whether cost tokens are available without consuming them.
	CanSend(cost int) bool
	// Consume takes cost tokens and reports whether it did. Nothing is taken on failure.
	Consume(cost int) bool
	// TimeUntilNextToken is an estimate of how long until at least one token is available.
	TimeUntilNextToken() time.Duration
	// Status returns a snapshot of the limiter state.
	Status() Status
}

// Status is a snapshot of a limiter.
// In JSON, TimeUntilNextToken is in milliseconds and Never is encoded as null.
type Status struct {
	AvailableTokens    int
	Capacity           int
	TimeUntilNextToken time.Duration
}

type jsonStatus struct {
	AvailableTokens    int    `json:"availableTokens"`
	Capacity           int    `json:"capacity"`
	TimeUntilNextToken *int64 `json:"timeUntilNextToken"`
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	js := jsonStatus{AvailableTokens: s.AvailableTokens, Capacity: s.Capacity}
	if s.TimeUntilNextToken != Never {
		ms := s.TimeUntilNextToken.Milliseconds()
		js.TimeUntilNextToken = &ms
	}
	return json.Marshal(js)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var js jsonStatus
	if err := json.Unmarshal(data, &js); err != nil {
		return err
	}
	*s = Status{AvailableTokens: js.AvailableTokens, Capacity: js.Capacity, TimeUntilNextToken: Never}
	if js.TimeUntilNextToken != nil {
		s.TimeUntilNextToken = time.Duration(*js.TimeUntilNextToken) * time.Millisecond
	}
	return nil
}

// CostBySeverity returns the number of tokens a message of the given severity costs.
// Unknown severities cost as much as critical ones.
func CostBySeverity(sev message.Severity) int {
	switch sev {
	case message.SeverityCritical, message.SeverityError:
		return 1
	case message.SeverityWarning:
		return 2
	case message.SeverityInfo:
		return 3
	}
	return 1
}

// Conjunctive admits work only when every one of its limiters admits it.
// It's used to enforce several horizons at once (e.g. per-minute and per-hour).
// Tokens are taken from every limiter or from none of them, provided the underlying
// limiters are not consumed from directly.
type Conjunctive struct {
	mu       sync.Mutex
	limiters []Limiter
}

var _ Limiter = (*Conjunctive)(nil)

// NewConjunctive joins the limiters. Nil limiters are skipped.
func NewConjunctive(limiters ...Limiter) *Conjunctive {
	c := &Conjunctive{limiters: make([]Limiter, 0, len(limiters))}
	for _, l := range limiters {
		if l != nil {
			c.limiters = append(c.limiters, l)
		}
	}
	return c
}

// CanSend implements Limiter.
func (c *Conjunctive) CanSend(cost int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSend(cost)
}

func (c *Conjunctive) canSend(cost int) bool {
	for _, l := range c.limiters {
		if !l.CanSend(cost) {
			return false
		}
	}
	return true
}

// Consume implements Limiter.
func (c *Conjunctive) Consume(cost int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.canSend(cost) {
		return false
	}
	for _, l := range c.limiters {
		l.Consume(cost)
	}
	return true
}

// TimeUntilNextToken implements Limiter. The longest wait among the limiters is returned.
func (c *Conjunctive) TimeUntilNextToken() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var res time.Duration
	for _, l := range c.limiters {
		if d := l.TimeUntilNextToken(); d > res {
			res = d
		}
	}
	return res
}

// Status implements Limiter. It reports the capacity and tokens of the limiter with
// the fewest available tokens, and the longest wait.
func (c *Conjunctive) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	var res Status
	for i, l := range c.limiters {
		st := l.Status()
		if i == 0 || st.AvailableTokens < res.AvailableTokens {
			res.AvailableTokens = st.AvailableTokens
			res.Capacity = st.Capacity
		}
		if st.TimeUntilNextToken > res.TimeUntilNextToken {
			res.TimeUntilNextToken = st.TimeUntilNextToken
		}
	}
	return res
}
