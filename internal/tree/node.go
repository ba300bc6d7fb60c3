// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package tree

import (
	"fmt"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/cache"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/models"
)

// Kind is the closed set of tree node kinds. Child resolution and
// rendering switch over it exhaustively; adding a kind means updating
// both sites.
type Kind int

const (
	KindRepository Kind = iota
	KindRun
	KindJob
	KindStep
)

// Identity is the stable, structural identity of a node. It is derived
// from remote ids, never from array position, so replacing cached
// slices cannot invalidate an unrelated node's expansion state. Maps
// key on the struct itself; the string form exists only for the host
// interface.
type Identity struct {
	Kind  Kind
	Owner string
	Name  string
	RunID int64
	JobID int64
	Step  int
}

// String renders the host-facing identity form.
func (id Identity) String() string {
	switch id.Kind {
	case KindRepository:
		return fmt.Sprintf("repo-%s-%s", id.Owner, id.Name)
	case KindRun:
		return fmt.Sprintf("run-%s-%s-%d", id.Owner, id.Name, id.RunID)
	case KindJob:
		return fmt.Sprintf("job-%s-%s-%d-%d", id.Owner, id.Name, id.RunID, id.JobID)
	case KindStep:
		return fmt.Sprintf("step-%s-%s-%d-%d-%d", id.Owner, id.Name, id.RunID, id.JobID, id.Step)
	default:
		return fmt.Sprintf("node-%s-%s", id.Owner, id.Name)
	}
}

// RunKey converts a run/job/step identity into its cache run key.
func (id Identity) RunKey() cache.RunKey {
	return cache.RunKey{Owner: id.Owner, Name: id.Name, RunID: id.RunID}
}

// Parent returns the identity of the node's parent. Repository nodes
// have no parent; the second return is false for them.
func (id Identity) Parent() (Identity, bool) {
	switch id.Kind {
	case KindRun:
		return RepositoryIdentity(id.Owner, id.Name), true
	case KindJob:
		return RunIdentity(id.Owner, id.Name, id.RunID), true
	case KindStep:
		return JobIdentity(id.Owner, id.Name, id.RunID, id.JobID), true
	default:
		return Identity{}, false
	}
}

func RepositoryIdentity(owner, name string) Identity {
	return Identity{Kind: KindRepository, Owner: owner, Name: name}
}

func RunIdentity(owner, name string, runID int64) Identity {
	return Identity{Kind: KindRun, Owner: owner, Name: name, RunID: runID}
}

func JobIdentity(owner, name string, runID, jobID int64) Identity {
	return Identity{Kind: KindJob, Owner: owner, Name: name, RunID: runID, JobID: jobID}
}

func StepIdentity(owner, name string, runID, jobID int64, step int) Identity {
	return Identity{Kind: KindStep, Owner: owner, Name: name, RunID: runID, JobID: jobID, Step: step}
}

// Node is one logical tree entry. The differ keeps a persistent
// identity-to-node map so "invalidate this node" always names the same
// instance across polls; hosts that diff by reference depend on that.
// Only the field set matching Kind is populated.
type Node struct {
	ID Identity

	Repo models.RepositoryRef
	// Phase and Message render repository loading/error state inline.
	Phase   cache.Phase
	Message string

	Run *models.WorkflowRun
	// DisplayStatus is the monotonic status shown for a run; it may be
	// ahead of Run.Status when the raw record is stale.
	DisplayStatus models.Status

	Job  *models.Job
	Step *models.Step
}

// Invalidation is the minimal set of UI refreshes one mutation
// requires. Zero value means nothing changed and no event may be
// emitted.
type Invalidation struct {
	// All requests a whole-tree reload (root membership change).
	All bool
	// Nodes lists specific nodes to refresh; a parent node implies its
	// children collection changed.
	Nodes []*Node
}

// Empty reports whether this invalidation carries no work.
func (iv Invalidation) Empty() bool {
	return !iv.All && len(iv.Nodes) == 0
}

func (iv *Invalidation) add(n *Node) {
	iv.Nodes = append(iv.Nodes, n)
}
