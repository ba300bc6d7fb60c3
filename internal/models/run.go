// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import (
	"encoding/json"
	"time"
)

// WorkflowRun is one execution instance of a CI workflow.
type WorkflowRun struct {
	// ID is the remote database id; RunNumber is the per-repository
	// ordinal used in human-facing URLs. They usually differ.
	ID        int64
	RunNumber int64
	Title     string

	Status     Status
	Conclusion Conclusion

	Branch string
	SHA    string
	Event  string
	Actor  string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Ephemeral marks records whose id had to be synthesized because
	// the payload carried none. They must never be used as request
	// idempotency keys.
	Ephemeral bool
}

// Job is one execution unit within a run.
type Job struct {
	ID         int64
	Name       string
	Status     Status
	Conclusion Conclusion

	StartedAt   time.Time
	CompletedAt time.Time

	// Steps is nil until the job has been hydrated.
	Steps []Step
	// StepsError records a failed hydration attempt, if any.
	StepsError string

	Ephemeral bool
}

// Active reports whether the job is still queued or running.
func (j *Job) Active() bool {
	return IsActive(j.Status)
}

// Step is the smallest log-addressable unit within a job. Steps have
// no stable remote id; Index (0-based position within the job) is the
// join key to the log protocol.
type Step struct {
	Index      int
	Name       string
	Status     Status
	Conclusion Conclusion
	Duration   string
}

// LogLine is one line of step log output.
type LogLine struct {
	Index     int64   `json:"index"`
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
}

// StepLog carries the full log content for one step. Cursor is an
// opaque position marker owned by the remote; it is replayed verbatim.
type StepLog struct {
	Step   int             `json:"step"`
	Cursor json.RawMessage `json:"cursor"`
	Lines  []LogLine       `json:"lines"`
}
