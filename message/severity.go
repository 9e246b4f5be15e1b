/*
Copyright © 2025 Console.text contributors.

Released under MIT license.
*/

package message

import (
	"fmt"
	"strings"
)

// Severity classifies an alert. It drives both the token cost of a message and
// whether it may bypass throttling.
type Severity string

// Known severities, from least to most urgent.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Severities lists the known severities from least to most urgent.
var Severities = []Severity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical}

// ParseSeverity converts s to a Severity. Matching is case-insensitive and
// an empty string yields SeverityInfo.
func ParseSeverity(s string) (Severity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return SeverityInfo, nil
	}
	for _, sev := range Severities {
		if string(sev) == s {
			return sev, nil
		}
	}
	return "", fmt.Errorf("unknown severity %q, should be one of %v", s, Severities)
}

// IsUrgent reports whether messages of this severity are delivered even when throttled.
func (s Severity) IsUrgent() bool {
	return s == SeverityCritical || s == SeverityError
}

// String implements fmt.Stringer.
func (s Severity) String() string {
	return string(s)
}
