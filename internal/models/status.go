// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import "strings"

// Status is the normalized run/job/step status vocabulary.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusUnknown   Status = "unknown"
)

// Conclusion is the normalized conclusion vocabulary. The zero value
// means "no conclusion yet".
type Conclusion string

const (
	ConclusionNone      Conclusion = ""
	ConclusionSuccess   Conclusion = "success"
	ConclusionFailure   Conclusion = "failure"
	ConclusionCancelled Conclusion = "cancelled"
	ConclusionSkipped   Conclusion = "skipped"
	ConclusionUnknown   Conclusion = "unknown"
)

// Gitea and its forks are not consistent about status strings across
// versions, so both tables carry every alias observed in the wild.
var statusAliases = map[string]Status{
	"queued":      StatusQueued,
	"waiting":     StatusQueued,
	"pending":     StatusQueued,
	"running":     StatusRunning,
	"in_progress": StatusRunning,
	"progress":    StatusRunning,
	"completed":   StatusCompleted,
	"finished":    StatusCompleted,
	"done":        StatusCompleted,
}

var conclusionAliases = map[string]Conclusion{
	"success":   ConclusionSuccess,
	"passed":    ConclusionSuccess,
	"ok":        ConclusionSuccess,
	"failure":   ConclusionFailure,
	"failed":    ConclusionFailure,
	"error":     ConclusionFailure,
	"cancelled": ConclusionCancelled,
	"canceled":  ConclusionCancelled,
	"skipped":   ConclusionSkipped,
	"skip":      ConclusionSkipped,
}

// NormalizeStatus maps a raw remote status string onto the fixed
// 4-state vocabulary. Unrecognized or empty input maps to unknown.
func NormalizeStatus(raw string) Status {
	if s, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return StatusUnknown
}

// NormalizeConclusion maps a raw conclusion string onto the fixed
// 5-state vocabulary. Empty input means "no conclusion yet".
func NormalizeConclusion(raw string) Conclusion {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ConclusionNone
	}
	if c, ok := conclusionAliases[raw]; ok {
		return c
	}
	return ConclusionUnknown
}

// statusRank is the total order used for monotonic display-status
// upgrades: queued < running < completed. Unknown ranks below queued
// so it can never downgrade a real status.
var statusRank = map[Status]int{
	StatusUnknown:   0,
	StatusQueued:    1,
	StatusRunning:   2,
	StatusCompleted: 3,
}

// StatusRank returns the position of a status in the upgrade order.
func StatusRank(s Status) int {
	return statusRank[s]
}

// MaxStatus returns the higher-ranked of two statuses.
func MaxStatus(a, b Status) Status {
	if StatusRank(b) > StatusRank(a) {
		return b
	}
	return a
}

// IsActive reports whether a status means the entity is still queued
// or executing.
func IsActive(s Status) bool {
	return s == StatusQueued || s == StatusRunning
}
