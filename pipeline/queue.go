/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package pipeline

import (
	"sync"

	"github.com/consoletext/consoletext-go/message"
)

// retryQueue is a FIFO of messages waiting for tokens or for another delivery attempt.
type retryQueue struct {
	mu      sync.Mutex
	items   []*message.Queued
	maxSize int
	policy  OverflowPolicy
}

func newRetryQueue(maxSize int, policy OverflowPolicy) *retryQueue {
	if policy == "" {
		policy = OverflowPolicyDropOldest
	}
	return &retryQueue{maxSize: maxSize, policy: policy}
}

// Push appends m to the tail. If the queue is full, the message chosen by the overflow
// policy is dropped and returned: the current head for drop-oldest, m itself for drop-newest.
func (q *retryQueue) Push(m *message.Queued) (dropped *message.Queued) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		if q.policy == OverflowPolicyDropNewest {
			return m
		}
		dropped = q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
	}
	q.items = append(q.items, m)
	return dropped
}

// PushFront puts m back at the head, where a message popped by PopHeadIf was.
// If the queue filled up in the meantime, the overflow policy applies: m is the oldest
// message, so it's dropped for drop-oldest, while drop-newest drops the tail.
func (q *retryQueue) PushFront(m *message.Queued) (dropped *message.Queued) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		if q.policy != OverflowPolicyDropNewest {
			return m
		}
		last := len(q.items) - 1
		dropped = q.items[last]
		q.items[last] = nil
		q.items = q.items[:last]
	}
	q.items = append([]*message.Queued{m}, q.items...)
	return dropped
}

// PopHeadIf removes and returns the head if admit accepts it. admit is called with the queue locked,
// so the head it sees is the one removed. Nil and false are returned for an empty queue.
func (q *retryQueue) PopHeadIf(admit func(head *message.Queued) bool) (*message.Queued, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	head := q.items[0]
	if !admit(head) {
		return head, false
	}
	q.items[0] = nil
	q.items = q.items[1:]
	return head, true
}

// Len returns the number of queued messages.
func (q *retryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear drops all messages and returns how many there were.
func (q *retryQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}
