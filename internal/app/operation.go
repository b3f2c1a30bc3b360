package app

import (
	"strings"
	"time"
)

// Operation identifies one CLI invocation. Its ID tags every log line the invocation
// writes, so interleaved runs can be told apart in docchat.log.
type Operation struct {
	Name    string
	Started time.Time
}

// NewOperation creates an Operation for the named command started at now.
func NewOperation(name string, now time.Time) *Operation {
	return &Operation{
		Name:    strings.TrimSpace(name),
		Started: now.UTC(),
	}
}

// ID returns the log correlation id, e.g. "20240115T103000Z-upload".
func (op *Operation) ID() string {
	ts := op.Started.Format("20060102T150405Z")
	if op.Name == "" {
		return ts
	}
	return ts + "-" + strings.ReplaceAll(op.Name, " ", "-")
}
