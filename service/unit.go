/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

// Package service provides lifecycle primitives for background work owned by the client:
// workers that run periodically and units that can be started and stopped.
package service

// Unit represents a component that can be started and stopped.
type Unit interface {
	// Start begins the unit's operation. It may block for the unit's lifetime.
	// If Start fails, it writes the error to fatalErr; on success it must not use the channel.
	Start(fatalErr chan<- error)

	// Stop halts the unit. If gracefully is true, it waits for in-progress work to finish.
	// Stop may be called even if Start has failed or was never called.
	Stop(gracefully bool) error
}
