// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

// Composite keys are compared structurally. String concatenation keys
// silently collide when owner or name contains the separator, so they
// are banned here.

// RunKey identifies one run of one repository.
type RunKey struct {
	Owner string
	Name  string
	RunID int64
}

// JobKey identifies one job by position within its run. Jobs are
// addressed positionally by the session protocol, so the index is part
// of the key.
type JobKey struct {
	Owner    string
	Name     string
	RunID    int64
	JobIndex int
}

// RunKeyOf returns the RunKey a JobKey belongs to.
func (k JobKey) RunKeyOf() RunKey {
	return RunKey{Owner: k.Owner, Name: k.Name, RunID: k.RunID}
}
