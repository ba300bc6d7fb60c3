// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Status
	}{
		{"canonical queued", "queued", StatusQueued},
		{"canonical running", "running", StatusRunning},
		{"canonical completed", "completed", StatusCompleted},
		{"waiting alias", "waiting", StatusQueued},
		{"pending alias", "pending", StatusQueued},
		{"in_progress alias", "in_progress", StatusRunning},
		{"progress alias", "progress", StatusRunning},
		{"finished alias", "finished", StatusCompleted},
		{"done alias", "done", StatusCompleted},
		{"mixed case", "In_Progress", StatusRunning},
		{"surrounding whitespace", "  running  ", StatusRunning},
		{"empty string", "", StatusUnknown},
		{"garbage", "exploded", StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeStatus(tt.input))
		})
	}
}

func TestNormalizeConclusion(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Conclusion
	}{
		{"canonical success", "success", ConclusionSuccess},
		{"passed alias", "passed", ConclusionSuccess},
		{"ok alias", "ok", ConclusionSuccess},
		{"failed alias", "failed", ConclusionFailure},
		{"error alias", "error", ConclusionFailure},
		{"american spelling", "canceled", ConclusionCancelled},
		{"skip alias", "skip", ConclusionSkipped},
		{"empty means none", "", ConclusionNone},
		{"garbage", "whatever", ConclusionUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeConclusion(tt.input))
		})
	}
}

func TestStatusRankOrdering(t *testing.T) {
	assert.Less(t, StatusRank(StatusQueued), StatusRank(StatusRunning))
	assert.Less(t, StatusRank(StatusRunning), StatusRank(StatusCompleted))
	assert.Less(t, StatusRank(StatusUnknown), StatusRank(StatusQueued))
}

func TestMaxStatusNeverDowngrades(t *testing.T) {
	t.Run("running beats queued", func(t *testing.T) {
		assert.Equal(t, StatusRunning, MaxStatus(StatusRunning, StatusQueued))
		assert.Equal(t, StatusRunning, MaxStatus(StatusQueued, StatusRunning))
	})

	t.Run("completed is terminal", func(t *testing.T) {
		assert.Equal(t, StatusCompleted, MaxStatus(StatusCompleted, StatusRunning))
		assert.Equal(t, StatusCompleted, MaxStatus(StatusCompleted, StatusQueued))
		assert.Equal(t, StatusCompleted, MaxStatus(StatusCompleted, StatusUnknown))
	})

	t.Run("unknown never wins", func(t *testing.T) {
		assert.Equal(t, StatusQueued, MaxStatus(StatusUnknown, StatusQueued))
	})
}

func TestIsActive(t *testing.T) {
	assert.True(t, IsActive(StatusQueued))
	assert.True(t, IsActive(StatusRunning))
	assert.False(t, IsActive(StatusCompleted))
	assert.False(t, IsActive(StatusUnknown))
}

func TestJobActive(t *testing.T) {
	assert.True(t, (&Job{Status: StatusRunning}).Active())
	assert.False(t, (&Job{Status: StatusCompleted}).Active())
}
