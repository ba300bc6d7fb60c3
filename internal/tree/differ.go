// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tree computes, from old vs new cached state, the minimal set
// of UI nodes to invalidate, and tracks which nodes the user has
// expanded so children are fetched proactively only where visible.
package tree

import (
	"sync"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/cache"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/models"
)

// Differ maintains the persistent node map, the expansion set, and the
// parent-to-children order, and diffs every cache mutation down to the
// nodes that actually changed. Identical input produces zero events;
// spurious invalidations reset scroll and selection in the host.
type Differ struct {
	mu       sync.Mutex
	repoIDs  []Identity
	nodes    map[Identity]*Node
	children map[Identity][]Identity
	expanded map[Identity]struct{}

	// Notify, when set, receives every non-empty invalidation.
	Notify func(Invalidation)
}

// NewDiffer builds an empty differ.
func NewDiffer() *Differ {
	return &Differ{
		nodes:    make(map[Identity]*Node),
		children: make(map[Identity][]Identity),
		expanded: make(map[Identity]struct{}),
	}
}

func (d *Differ) emit(iv Invalidation) Invalidation {
	if !iv.Empty() && d.Notify != nil {
		d.Notify(iv)
	}
	return iv
}

func sameIdentities(a, b []Identity) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// removeSubtree drops a node, its descendants, and their expansion
// entries.
func (d *Differ) removeSubtree(id Identity) {
	for _, child := range d.children[id] {
		d.removeSubtree(child)
	}
	delete(d.children, id)
	delete(d.nodes, id)
	delete(d.expanded, id)
}

// SetRepositories replaces the root repository list. Membership or
// order changes trigger a whole-tree invalidation and prune every
// identity belonging to removed repositories.
func (d *Differ) SetRepositories(refs []models.RepositoryRef) Invalidation {
	d.mu.Lock()
	defer d.mu.Unlock()

	newIDs := make([]Identity, 0, len(refs))
	for _, ref := range refs {
		newIDs = append(newIDs, RepositoryIdentity(ref.Owner, ref.Name))
	}

	if sameIdentities(d.repoIDs, newIDs) {
		return d.emit(Invalidation{})
	}

	keep := make(map[Identity]bool, len(newIDs))
	for _, id := range newIDs {
		keep[id] = true
	}
	for _, old := range d.repoIDs {
		if !keep[old] {
			d.removeSubtree(old)
		}
	}

	for i, ref := range refs {
		id := newIDs[i]
		if n, ok := d.nodes[id]; ok {
			n.Repo = ref
		} else {
			d.nodes[id] = &Node{ID: id, Repo: ref}
		}
	}
	d.repoIDs = newIDs

	return d.emit(Invalidation{All: true})
}

// SetRepositoryPhase records a repository entering loading or error
// state and invalidates its node when the rendered state changed.
func (d *Differ) SetRepositoryPhase(owner, name string, phase cache.Phase, message string) Invalidation {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.nodes[RepositoryIdentity(owner, name)]
	if !ok {
		return Invalidation{}
	}
	if n.Phase == phase && n.Message == message {
		return d.emit(Invalidation{})
	}
	n.Phase = phase
	n.Message = message

	var iv Invalidation
	iv.add(n)
	return d.emit(iv)
}

func runFieldsEqual(old *Node, run *models.WorkflowRun, display models.Status) bool {
	prev := old.Run
	return prev.Status == run.Status &&
		prev.Conclusion == run.Conclusion &&
		prev.Title == run.Title &&
		prev.Branch == run.Branch &&
		prev.CreatedAt.Equal(run.CreatedAt) &&
		prev.UpdatedAt.Equal(run.UpdatedAt) &&
		old.DisplayStatus == display
}

// UpdateRuns diffs a repository's new run list against the tree.
// Membership or order changes invalidate the repository node (children
// reload) and prune removed run subtrees; otherwise only runs whose
// observable fields changed are invalidated. display resolves a run's
// monotonic display status.
func (d *Differ) UpdateRuns(owner, name string, runs []*models.WorkflowRun, display func(int64) models.Status) Invalidation {
	d.mu.Lock()
	defer d.mu.Unlock()

	repoID := RepositoryIdentity(owner, name)
	repoNode, ok := d.nodes[repoID]
	if !ok {
		return Invalidation{}
	}

	newIDs := make([]Identity, 0, len(runs))
	for _, run := range runs {
		newIDs = append(newIDs, RunIdentity(owner, name, run.ID))
	}
	oldIDs := d.children[repoID]

	if !sameIdentities(oldIDs, newIDs) {
		keep := make(map[Identity]bool, len(newIDs))
		for _, id := range newIDs {
			keep[id] = true
		}
		for _, old := range oldIDs {
			if !keep[old] {
				d.removeSubtree(old)
			}
		}
		for i, run := range runs {
			d.upsertRun(newIDs[i], run, display(run.ID))
		}
		d.children[repoID] = newIDs

		var iv Invalidation
		iv.add(repoNode)
		return d.emit(iv)
	}

	var iv Invalidation
	for i, run := range runs {
		id := newIDs[i]
		n := d.nodes[id]
		ds := display(run.ID)
		if n == nil {
			d.upsertRun(id, run, ds)
			iv.add(d.nodes[id])
			continue
		}
		if !runFieldsEqual(n, run, ds) {
			n.Run = run
			n.DisplayStatus = ds
			iv.add(n)
		} else {
			// Keep the freshest record even when nothing observable
			// changed.
			n.Run = run
		}
	}
	return d.emit(iv)
}

func (d *Differ) upsertRun(id Identity, run *models.WorkflowRun, display models.Status) {
	if n, ok := d.nodes[id]; ok {
		n.Run = run
		n.DisplayStatus = display
		return
	}
	d.nodes[id] = &Node{ID: id, Run: run, DisplayStatus: display}
}

func jobFieldsEqual(a, b *models.Job) bool {
	return a.Status == b.Status &&
		a.Conclusion == b.Conclusion &&
		a.Name == b.Name &&
		a.StartedAt.Equal(b.StartedAt) &&
		a.CompletedAt.Equal(b.CompletedAt) &&
		a.StepsError == b.StepsError
}

func stepFieldsEqual(a, b models.Step) bool {
	return a.Name == b.Name &&
		a.Status == b.Status &&
		a.Conclusion == b.Conclusion &&
		a.Duration == b.Duration
}

// stepsSameShape reports whether two step lists have identical
// membership and order, judged by index and name.
func stepsSameShape(a, b []models.Step) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Index != b[i].Index || a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}

// UpdateJobs diffs a run's new job list. Membership or order changes
// invalidate the run node; job-field changes invalidate job nodes;
// step-field changes invalidate step nodes, unless the step list shape
// itself changed, which invalidates the owning job node.
func (d *Differ) UpdateJobs(key cache.RunKey, jobs []*models.Job) Invalidation {
	d.mu.Lock()
	defer d.mu.Unlock()

	runID := RunIdentity(key.Owner, key.Name, key.RunID)
	runNode, ok := d.nodes[runID]
	if !ok {
		return Invalidation{}
	}

	newIDs := make([]Identity, 0, len(jobs))
	for _, job := range jobs {
		newIDs = append(newIDs, JobIdentity(key.Owner, key.Name, key.RunID, job.ID))
	}
	oldIDs := d.children[runID]

	if !sameIdentities(oldIDs, newIDs) {
		keep := make(map[Identity]bool, len(newIDs))
		for _, id := range newIDs {
			keep[id] = true
		}
		for _, old := range oldIDs {
			if !keep[old] {
				d.removeSubtree(old)
			}
		}
		for i, job := range jobs {
			d.upsertJob(newIDs[i], job)
		}
		d.children[runID] = newIDs

		var iv Invalidation
		iv.add(runNode)
		return d.emit(iv)
	}

	var iv Invalidation
	for i, job := range jobs {
		id := newIDs[i]
		n := d.nodes[id]
		if n == nil {
			d.upsertJob(id, job)
			iv.add(d.nodes[id])
			continue
		}

		prev := n.Job
		fieldsChanged := !jobFieldsEqual(prev, job)
		shapeChanged := !stepsSameShape(prev.Steps, job.Steps)

		var stepNodes []*Node
		if !shapeChanged {
			for si := range job.Steps {
				if !stepFieldsEqual(prev.Steps[si], job.Steps[si]) {
					stepNodes = append(stepNodes, d.upsertStep(id, job, si))
				}
			}
		}

		n.Job = job
		d.syncStepChildren(id, job)

		switch {
		case shapeChanged:
			iv.add(n)
		case fieldsChanged:
			iv.add(n)
			iv.Nodes = append(iv.Nodes, stepNodes...)
		default:
			iv.Nodes = append(iv.Nodes, stepNodes...)
		}
	}
	return d.emit(iv)
}

func (d *Differ) upsertJob(id Identity, job *models.Job) {
	if n, ok := d.nodes[id]; ok {
		n.Job = job
	} else {
		d.nodes[id] = &Node{ID: id, Job: job}
	}
	d.syncStepChildren(id, job)
}

// syncStepChildren keeps the step child list and nodes aligned with a
// job's hydrated steps, pruning stale step nodes.
func (d *Differ) syncStepChildren(jobID Identity, job *models.Job) {
	newIDs := make([]Identity, 0, len(job.Steps))
	for i := range job.Steps {
		newIDs = append(newIDs, StepIdentity(jobID.Owner, jobID.Name, jobID.RunID, jobID.JobID, job.Steps[i].Index))
	}
	old := d.children[jobID]
	keep := make(map[Identity]bool, len(newIDs))
	for _, id := range newIDs {
		keep[id] = true
	}
	for _, id := range old {
		if !keep[id] {
			d.removeSubtree(id)
		}
	}
	for i := range job.Steps {
		step := job.Steps[i]
		id := newIDs[i]
		if n, ok := d.nodes[id]; ok {
			n.Step = &step
		} else {
			d.nodes[id] = &Node{ID: id, Step: &step}
		}
	}
	if len(newIDs) == 0 {
		delete(d.children, jobID)
	} else {
		d.children[jobID] = newIDs
	}
}

func (d *Differ) upsertStep(jobID Identity, job *models.Job, si int) *Node {
	step := job.Steps[si]
	id := StepIdentity(jobID.Owner, jobID.Name, jobID.RunID, jobID.JobID, step.Index)
	if n, ok := d.nodes[id]; ok {
		n.Step = &step
		return n
	}
	n := &Node{ID: id, Step: &step}
	d.nodes[id] = n
	return n
}

// InvalidateRun signals that a run's child payload changed without a
// job diff, e.g. its job cache entered loading or error and the host
// must re-render the placeholder child.
func (d *Differ) InvalidateRun(key cache.RunKey) Invalidation {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.nodes[RunIdentity(key.Owner, key.Name, key.RunID)]
	if !ok {
		return Invalidation{}
	}
	var iv Invalidation
	iv.add(n)
	return d.emit(iv)
}

// Expand records an externally reported node expansion.
func (d *Differ) Expand(id Identity) {
	d.mu.Lock()
	d.expanded[id] = struct{}{}
	d.mu.Unlock()
}

// Collapse records an externally reported node collapse.
func (d *Differ) Collapse(id Identity) {
	d.mu.Lock()
	delete(d.expanded, id)
	d.mu.Unlock()
}

// IsExpanded reports whether a node identity is currently expanded.
// The set survives refresh cycles; entries are pruned only when the
// underlying entity is removed.
func (d *Differ) IsExpanded(id Identity) bool {
	d.mu.Lock()
	_, ok := d.expanded[id]
	d.mu.Unlock()
	return ok
}

// ExpandedRuns returns the identities of every expanded run node.
func (d *Differ) ExpandedRuns() []Identity {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ids []Identity
	for id := range d.expanded {
		if id.Kind == KindRun {
			ids = append(ids, id)
		}
	}
	return ids
}

// ExpandedRunsNeedingJobs returns the run keys whose node is expanded
// but whose jobs are still unloaded, loading, or errored. state
// resolves the job-cache lifecycle for a run; the orchestrator's
// secondary pass consumes this.
func (d *Differ) ExpandedRunsNeedingJobs(state func(cache.RunKey) cache.JobState) []cache.RunKey {
	var keys []cache.RunKey
	for _, id := range d.ExpandedRuns() {
		key := id.RunKey()
		if s := state(key); s != cache.JobStateIdle {
			keys = append(keys, key)
		}
	}
	return keys
}

// WalkVisible traverses repositories, runs, jobs, and steps in display
// order, skipping the children of collapsed nodes, and hands fn a copy
// of each node taken under the differ lock. Renderers run on their own
// goroutine; the persistent *Node instances must not be read while a
// sweep is writing their fields, so they never leave this traversal.
// jobIndex is the position of the enclosing job within its run, 0 for
// repository and run nodes.
func (d *Differ) WalkVisible(fn func(n Node, depth, jobIndex int, expanded bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	isExpanded := func(id Identity) bool {
		_, ok := d.expanded[id]
		return ok
	}

	for _, repoID := range d.repoIDs {
		repo, ok := d.nodes[repoID]
		if !ok {
			continue
		}
		repoOpen := isExpanded(repoID)
		fn(*repo, 0, 0, repoOpen)
		if !repoOpen {
			continue
		}
		for _, runID := range d.children[repoID] {
			run, ok := d.nodes[runID]
			if !ok {
				continue
			}
			runOpen := isExpanded(runID)
			fn(*run, 1, 0, runOpen)
			if !runOpen {
				continue
			}
			for ji, jobID := range d.children[runID] {
				job, ok := d.nodes[jobID]
				if !ok {
					continue
				}
				jobOpen := isExpanded(jobID)
				fn(*job, 2, ji, jobOpen)
				if !jobOpen {
					continue
				}
				for _, stepID := range d.children[jobID] {
					if step, ok := d.nodes[stepID]; ok {
						fn(*step, 3, ji, false)
					}
				}
			}
		}
	}
}

// Node resolves an identity to its persistent node instance.
func (d *Differ) Node(id Identity) *Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nodes[id]
}

// Roots returns the repository nodes in resolution order.
func (d *Differ) Roots() []*Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Node, 0, len(d.repoIDs))
	for _, id := range d.repoIDs {
		if n, ok := d.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Children returns the ordered children of a node.
func (d *Differ) Children(id Identity) []*Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := d.children[id]
	out := make([]*Node, 0, len(ids))
	for _, cid := range ids {
		if n, ok := d.nodes[cid]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Parent returns the parent node, or nil for roots.
func (d *Differ) Parent(id Identity) *Node {
	pid, ok := id.Parent()
	if !ok {
		return nil
	}
	return d.Node(pid)
}
