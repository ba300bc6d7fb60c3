// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package tree

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/cache"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/models"
)

func widgetsRef() models.RepositoryRef {
	return models.RepositoryRef{Host: "git.example.com", Owner: "acme", Name: "widgets"}
}

func gadgetsRef() models.RepositoryRef {
	return models.RepositoryRef{Host: "git.example.com", Owner: "acme", Name: "gadgets"}
}

func runningDisplay(int64) models.Status { return models.StatusRunning }

func newPopulatedDiffer(t *testing.T) *Differ {
	t.Helper()
	d := NewDiffer()
	iv := d.SetRepositories([]models.RepositoryRef{widgetsRef()})
	require.True(t, iv.All)
	return d
}

func TestSetRepositories(t *testing.T) {
	d := NewDiffer()

	t.Run("initial set invalidates everything", func(t *testing.T) {
		iv := d.SetRepositories([]models.RepositoryRef{widgetsRef(), gadgetsRef()})
		assert.True(t, iv.All)
		assert.Len(t, d.Roots(), 2)
	})

	t.Run("identical set emits nothing", func(t *testing.T) {
		iv := d.SetRepositories([]models.RepositoryRef{widgetsRef(), gadgetsRef()})
		assert.True(t, iv.Empty())
	})

	t.Run("reorder invalidates everything", func(t *testing.T) {
		iv := d.SetRepositories([]models.RepositoryRef{gadgetsRef(), widgetsRef()})
		assert.True(t, iv.All)
	})

	t.Run("removal prunes the whole subtree", func(t *testing.T) {
		d.UpdateRuns("acme", "widgets", []*models.WorkflowRun{{ID: 1, Status: models.StatusRunning}}, runningDisplay)
		runID := RunIdentity("acme", "widgets", 1)
		d.Expand(runID)
		require.NotNil(t, d.Node(runID))

		iv := d.SetRepositories([]models.RepositoryRef{gadgetsRef()})
		assert.True(t, iv.All)
		assert.Nil(t, d.Node(runID))
		assert.False(t, d.IsExpanded(runID), "expansion entry pruned with the node")
	})
}

func TestSetRepositoryPhase(t *testing.T) {
	d := newPopulatedDiffer(t)

	iv := d.SetRepositoryPhase("acme", "widgets", cache.PhaseLoading, "")
	require.Len(t, iv.Nodes, 1)
	assert.Equal(t, cache.PhaseLoading, iv.Nodes[0].Phase)

	// Same phase again is not a change.
	iv = d.SetRepositoryPhase("acme", "widgets", cache.PhaseLoading, "")
	assert.True(t, iv.Empty())

	iv = d.SetRepositoryPhase("acme", "widgets", cache.PhaseError, "connection refused")
	require.Len(t, iv.Nodes, 1)
	assert.Equal(t, "connection refused", iv.Nodes[0].Message)

	iv = d.SetRepositoryPhase("acme", "unknown", cache.PhaseLoading, "")
	assert.True(t, iv.Empty())
}

func TestUpdateRunsIdenticalDataEmitsNothing(t *testing.T) {
	d := newPopulatedDiffer(t)

	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	mkRuns := func() []*models.WorkflowRun {
		return []*models.WorkflowRun{
			{ID: 1, RunNumber: 1, Title: "ci", Status: models.StatusRunning, Branch: "main", CreatedAt: created},
			{ID: 2, RunNumber: 2, Title: "deploy", Status: models.StatusCompleted, Conclusion: models.ConclusionSuccess, CreatedAt: created},
		}
	}
	display := func(id int64) models.Status {
		if id == 1 {
			return models.StatusRunning
		}
		return models.StatusCompleted
	}

	iv := d.UpdateRuns("acme", "widgets", mkRuns(), display)
	assert.False(t, iv.Empty(), "first update populates the children")

	// A second poll returning byte-identical data must be silent, even
	// though the record pointers are brand new.
	iv = d.UpdateRuns("acme", "widgets", mkRuns(), display)
	assert.True(t, iv.Empty())
}

func TestUpdateRunsFieldChangeInvalidatesOnlyThatRun(t *testing.T) {
	d := newPopulatedDiffer(t)
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	runs := []*models.WorkflowRun{
		{ID: 1, Status: models.StatusRunning, CreatedAt: created},
		{ID: 2, Status: models.StatusQueued, CreatedAt: created},
	}
	d.UpdateRuns("acme", "widgets", runs, runningDisplay)

	changed := []*models.WorkflowRun{
		{ID: 1, Status: models.StatusRunning, CreatedAt: created},
		{ID: 2, Status: models.StatusRunning, CreatedAt: created},
	}
	iv := d.UpdateRuns("acme", "widgets", changed, runningDisplay)
	require.Len(t, iv.Nodes, 1)
	assert.Equal(t, RunIdentity("acme", "widgets", 2), iv.Nodes[0].ID)
	assert.False(t, iv.All)
}

func TestUpdateRunsMembershipChangeInvalidatesRepoNode(t *testing.T) {
	d := newPopulatedDiffer(t)

	d.UpdateRuns("acme", "widgets", []*models.WorkflowRun{
		{ID: 1, Status: models.StatusCompleted},
		{ID: 2, Status: models.StatusRunning},
	}, runningDisplay)

	// Run 3 appears at the top, run 1 ages out.
	iv := d.UpdateRuns("acme", "widgets", []*models.WorkflowRun{
		{ID: 3, Status: models.StatusQueued},
		{ID: 2, Status: models.StatusRunning},
	}, runningDisplay)

	require.Len(t, iv.Nodes, 1)
	assert.Equal(t, RepositoryIdentity("acme", "widgets"), iv.Nodes[0].ID)
	assert.Nil(t, d.Node(RunIdentity("acme", "widgets", 1)))
	assert.NotNil(t, d.Node(RunIdentity("acme", "widgets", 3)))
}

func TestUpdateRunsDisplayStatusChangeInvalidates(t *testing.T) {
	d := newPopulatedDiffer(t)
	runs := []*models.WorkflowRun{{ID: 1, Status: models.StatusQueued}}

	d.UpdateRuns("acme", "widgets", runs, func(int64) models.Status { return models.StatusQueued })

	// The raw record is unchanged but the monotonic display moved.
	iv := d.UpdateRuns("acme", "widgets", runs, func(int64) models.Status { return models.StatusRunning })
	require.Len(t, iv.Nodes, 1)
	assert.Equal(t, models.StatusRunning, iv.Nodes[0].DisplayStatus)
}

func TestExpansionSurvivesRefreshCycles(t *testing.T) {
	d := newPopulatedDiffer(t)
	runID := RunIdentity("acme", "widgets", 42)

	d.UpdateRuns("acme", "widgets", []*models.WorkflowRun{{ID: 42, Status: models.StatusRunning}}, runningDisplay)
	d.Expand(runID)

	// Several polls with fresh slices; run 42 stays present.
	for i := 0; i < 3; i++ {
		d.UpdateRuns("acme", "widgets", []*models.WorkflowRun{
			{ID: 42, Status: models.StatusRunning},
			{ID: int64(100 + i), Status: models.StatusQueued},
		}, runningDisplay)
	}
	assert.True(t, d.IsExpanded(runID))

	d.Collapse(runID)
	assert.False(t, d.IsExpanded(runID))
}

func TestIdentityStringForms(t *testing.T) {
	assert.Equal(t, "repo-acme-widgets", RepositoryIdentity("acme", "widgets").String())
	assert.Equal(t, "run-acme-widgets-42", RunIdentity("acme", "widgets", 42).String())
	assert.Equal(t, "job-acme-widgets-42-7", JobIdentity("acme", "widgets", 42, 7).String())
	assert.Equal(t, "step-acme-widgets-42-7-3", StepIdentity("acme", "widgets", 42, 7, 3).String())
}

func jobWithSteps(id int64, name string, status models.Status, steps ...models.Step) *models.Job {
	return &models.Job{ID: id, Name: name, Status: status, Steps: steps}
}

func TestUpdateJobs(t *testing.T) {
	key := cache.RunKey{Owner: "acme", Name: "widgets", RunID: 1}
	runID := RunIdentity("acme", "widgets", 1)

	setup := func(t *testing.T) *Differ {
		d := newPopulatedDiffer(t)
		d.UpdateRuns("acme", "widgets", []*models.WorkflowRun{{ID: 1, Status: models.StatusRunning}}, runningDisplay)
		return d
	}

	t.Run("identical jobs emit nothing", func(t *testing.T) {
		d := setup(t)
		mk := func() []*models.Job {
			return []*models.Job{jobWithSteps(10, "build", models.StatusRunning,
				models.Step{Index: 0, Name: "checkout", Status: models.StatusCompleted, Conclusion: models.ConclusionSuccess},
				models.Step{Index: 1, Name: "compile", Status: models.StatusRunning},
			)}
		}
		iv := d.UpdateJobs(key, mk())
		assert.False(t, iv.Empty())

		iv = d.UpdateJobs(key, mk())
		assert.True(t, iv.Empty())
	})

	t.Run("step field change invalidates only the step", func(t *testing.T) {
		d := setup(t)
		d.UpdateJobs(key, []*models.Job{jobWithSteps(10, "build", models.StatusRunning,
			models.Step{Index: 0, Name: "checkout", Status: models.StatusRunning},
			models.Step{Index: 1, Name: "compile", Status: models.StatusQueued},
		)})

		iv := d.UpdateJobs(key, []*models.Job{jobWithSteps(10, "build", models.StatusRunning,
			models.Step{Index: 0, Name: "checkout", Status: models.StatusCompleted, Conclusion: models.ConclusionSuccess},
			models.Step{Index: 1, Name: "compile", Status: models.StatusQueued},
		)})

		require.Len(t, iv.Nodes, 1)
		assert.Equal(t, KindStep, iv.Nodes[0].ID.Kind)
		assert.Equal(t, 0, iv.Nodes[0].ID.Step)
		assert.Equal(t, models.StatusCompleted, iv.Nodes[0].Step.Status)
	})

	t.Run("step shape change invalidates the job", func(t *testing.T) {
		d := setup(t)
		d.UpdateJobs(key, []*models.Job{jobWithSteps(10, "build", models.StatusRunning,
			models.Step{Index: 0, Name: "checkout", Status: models.StatusRunning},
		)})

		iv := d.UpdateJobs(key, []*models.Job{jobWithSteps(10, "build", models.StatusRunning,
			models.Step{Index: 0, Name: "checkout", Status: models.StatusCompleted},
			models.Step{Index: 1, Name: "compile", Status: models.StatusQueued},
		)})

		require.Len(t, iv.Nodes, 1)
		assert.Equal(t, KindJob, iv.Nodes[0].ID.Kind)
		assert.Len(t, d.Children(JobIdentity("acme", "widgets", 1, 10)), 2)
	})

	t.Run("job membership change invalidates the run", func(t *testing.T) {
		d := setup(t)
		d.UpdateJobs(key, []*models.Job{jobWithSteps(10, "build", models.StatusRunning)})

		iv := d.UpdateJobs(key, []*models.Job{
			jobWithSteps(10, "build", models.StatusRunning),
			jobWithSteps(11, "test", models.StatusQueued),
		})
		require.Len(t, iv.Nodes, 1)
		assert.Equal(t, runID, iv.Nodes[0].ID)
	})

	t.Run("unknown run is ignored", func(t *testing.T) {
		d := setup(t)
		iv := d.UpdateJobs(cache.RunKey{Owner: "acme", Name: "widgets", RunID: 999}, nil)
		assert.True(t, iv.Empty())
	})
}

func TestInvalidateRun(t *testing.T) {
	d := newPopulatedDiffer(t)
	d.UpdateRuns("acme", "widgets", []*models.WorkflowRun{{ID: 1, Status: models.StatusQueued}}, runningDisplay)

	iv := d.InvalidateRun(cache.RunKey{Owner: "acme", Name: "widgets", RunID: 1})
	require.Len(t, iv.Nodes, 1)
	assert.Equal(t, RunIdentity("acme", "widgets", 1), iv.Nodes[0].ID)

	iv = d.InvalidateRun(cache.RunKey{Owner: "acme", Name: "widgets", RunID: 2})
	assert.True(t, iv.Empty())
}

func TestExpandedRunsNeedingJobs(t *testing.T) {
	d := newPopulatedDiffer(t)
	d.UpdateRuns("acme", "widgets", []*models.WorkflowRun{
		{ID: 1, Status: models.StatusRunning},
		{ID: 2, Status: models.StatusRunning},
	}, runningDisplay)

	d.Expand(RunIdentity("acme", "widgets", 1))
	d.Expand(RunIdentity("acme", "widgets", 2))

	// Run 1 already has idle jobs; run 2 is unloaded.
	states := map[int64]cache.JobState{1: cache.JobStateIdle, 2: cache.JobStateUnloaded}
	keys := d.ExpandedRunsNeedingJobs(func(k cache.RunKey) cache.JobState { return states[k.RunID] })

	require.Len(t, keys, 1)
	assert.Equal(t, int64(2), keys[0].RunID)
}

func TestNotifyReceivesNonEmptyInvalidations(t *testing.T) {
	d := NewDiffer()
	var got []Invalidation
	d.Notify = func(iv Invalidation) { got = append(got, iv) }

	d.SetRepositories([]models.RepositoryRef{widgetsRef()})
	d.SetRepositories([]models.RepositoryRef{widgetsRef()}) // identical, silent
	d.UpdateRuns("acme", "widgets", []*models.WorkflowRun{{ID: 1, Status: models.StatusQueued}}, runningDisplay)

	require.Len(t, got, 2)
	assert.True(t, got[0].All)
	assert.False(t, got[1].All)
}

func TestParentAndChildrenNavigation(t *testing.T) {
	d := newPopulatedDiffer(t)
	d.UpdateRuns("acme", "widgets", []*models.WorkflowRun{{ID: 1, Status: models.StatusRunning}}, runningDisplay)
	d.UpdateJobs(cache.RunKey{Owner: "acme", Name: "widgets", RunID: 1},
		[]*models.Job{jobWithSteps(10, "build", models.StatusRunning, models.Step{Index: 0, Name: "checkout"})})

	repoID := RepositoryIdentity("acme", "widgets")
	runID := RunIdentity("acme", "widgets", 1)
	jobID := JobIdentity("acme", "widgets", 1, 10)
	stepID := StepIdentity("acme", "widgets", 1, 10, 0)

	require.Len(t, d.Children(repoID), 1)
	require.Len(t, d.Children(runID), 1)
	require.Len(t, d.Children(jobID), 1)
	assert.Empty(t, d.Children(stepID))

	assert.Nil(t, d.Parent(repoID))
	assert.Equal(t, repoID, d.Parent(runID).ID)
	assert.Equal(t, runID, d.Parent(jobID).ID)
	assert.Equal(t, jobID, d.Parent(stepID).ID)
}

func TestWalkVisibleFlattensExpandedSubtrees(t *testing.T) {
	d := newPopulatedDiffer(t)
	d.UpdateRuns("acme", "widgets", []*models.WorkflowRun{
		{ID: 1, RunNumber: 1, Status: models.StatusRunning},
		{ID: 2, RunNumber: 2, Status: models.StatusCompleted},
	}, runningDisplay)
	d.UpdateJobs(cache.RunKey{Owner: "acme", Name: "widgets", RunID: 1},
		[]*models.Job{jobWithSteps(10, "build", models.StatusRunning, models.Step{Index: 0, Name: "checkout"})})

	walk := func() (nodes []Node, depths, jobIndexes []int) {
		d.WalkVisible(func(n Node, depth, jobIndex int, _ bool) {
			nodes = append(nodes, n)
			depths = append(depths, depth)
			jobIndexes = append(jobIndexes, jobIndex)
		})
		return
	}

	nodes, _, _ := walk()
	require.Len(t, nodes, 1, "collapsed repo yields only the root")

	d.Expand(RepositoryIdentity("acme", "widgets"))
	d.Expand(RunIdentity("acme", "widgets", 1))
	d.Expand(JobIdentity("acme", "widgets", 1, 10))

	nodes, depths, jobIndexes := walk()
	require.Len(t, nodes, 5)
	assert.Equal(t, []int{0, 1, 2, 3, 1}, depths)
	assert.Equal(t, KindStep, nodes[3].ID.Kind)
	assert.Equal(t, 0, jobIndexes[3], "step carries the enclosing job's index")
	assert.Equal(t, KindRun, nodes[4].ID.Kind)
}

// Exercised with -race: renderers walk the tree while sweeps rewrite
// node fields, so the walk must copy under the differ lock instead of
// handing out live node pointers.
func TestWalkVisibleConcurrentWithUpdates(t *testing.T) {
	d := newPopulatedDiffer(t)
	d.Expand(RepositoryIdentity("acme", "widgets"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			run := &models.WorkflowRun{ID: 1, RunNumber: 1, Title: "ci", Status: models.StatusRunning, Branch: "main"}
			if i%2 == 1 {
				run.Title = "ci retry"
				run.Status = models.StatusCompleted
			}
			d.UpdateRuns("acme", "widgets", []*models.WorkflowRun{run}, runningDisplay)
		}
	}()

	for i := 0; i < 500; i++ {
		d.WalkVisible(func(n Node, _, _ int, _ bool) {
			if n.ID.Kind == KindRun {
				_ = n.Run.Title
				_ = n.DisplayStatus
			}
		})
	}
	<-done
}
