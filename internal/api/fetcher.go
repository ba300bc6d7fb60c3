// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/models"
)

// The upstream schema is uncontrolled: different Gitea versions and
// forks emit snake_case, camelCase, and different key names for the
// same logical field. Each logical attribute therefore carries an
// explicit priority-ordered alias list rather than ad hoc fallthrough.

var runIDAliases = []string{"id", "run_id", "runId", "workflow_id", "workflowId"}
var runNumberAliases = []string{"run_number", "runNumber", "index", "number"}
var runNameAliases = []string{"display_title", "displayTitle", "title", "name", "workflow_name", "workflowName"}
var jobIDAliases = []string{"id", "job_id", "jobId"}
var jobNameAliases = []string{"name", "job_name", "jobName", "title"}

var statusAliases = []string{"status", "state"}
var conclusionAliases = []string{"conclusion", "result"}
var branchAliases = []string{"head_branch", "headBranch", "branch", "prettyref"}
var shaAliases = []string{"head_sha", "headSha", "sha", "commit_sha", "commitSha"}
var eventAliases = []string{"event", "trigger_event", "triggerEvent"}
var actorAliases = []string{"trigger_user_login", "actor", "triggered_by", "triggeredBy"}

var createdAliases = []string{"created_at", "createdAt", "created", "started_at", "startedAt", "started"}
var updatedAliases = []string{"updated_at", "updatedAt", "updated", "stopped_at", "stoppedAt", "stopped"}
var startedAliases = []string{"started_at", "startedAt", "started"}
var completedAliases = []string{"completed_at", "completedAt", "stopped_at", "stoppedAt", "stopped"}

// ExtractArray pulls an entity array out of a raw payload with a
// deterministic preference order: literal array > ".data" > the named
// fallback field > def.
func ExtractArray(body []byte, fallbackField string, def []json.RawMessage) []json.RawMessage {
	var arr []json.RawMessage
	if err := json.Unmarshal(body, &arr); err == nil {
		return arr
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return def
	}
	if raw, ok := wrapper["data"]; ok {
		if err := json.Unmarshal(raw, &arr); err == nil {
			return arr
		}
	}
	if fallbackField != "" {
		if raw, ok := wrapper[fallbackField]; ok {
			if err := json.Unmarshal(raw, &arr); err == nil {
				return arr
			}
		}
	}
	return def
}

type fields map[string]any

func decodeFields(raw json.RawMessage) (fields, error) {
	var m fields
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("record is not an object: %w", err)
	}
	return m, nil
}

func (f fields) str(aliases []string) string {
	for _, key := range aliases {
		if v, ok := f[key]; ok {
			switch s := v.(type) {
			case string:
				if s != "" {
					return s
				}
			case float64:
				return strconv.FormatFloat(s, 'f', -1, 64)
			}
		}
	}
	return ""
}

func (f fields) int64(aliases []string) (int64, bool) {
	for _, key := range aliases {
		v, ok := f[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return int64(n), true
		case string:
			if parsed, err := strconv.ParseInt(n, 10, 64); err == nil {
				return parsed, true
			}
		}
	}
	return 0, false
}

func (f fields) time(aliases []string) time.Time {
	for _, key := range aliases {
		v, ok := f[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if parsed, err := time.Parse(time.RFC3339, t); err == nil {
				return parsed
			}
		case float64:
			if t > 0 {
				return time.Unix(int64(t), 0).UTC()
			}
		}
	}
	return time.Time{}
}

// fallbackID synthesizes a key for records the remote sent without an
// id, so the tree never sees a key collision. Such records are
// ephemeral: negative, never reused as request keys.
func fallbackID() int64 {
	return -(rand.Int63n(1<<62) + 1)
}

// DecodeRuns maps a raw runs payload into typed records. owner/name
// feed the last entry of the title fallback chain.
func DecodeRuns(owner, name string, body []byte) ([]*models.WorkflowRun, error) {
	records := ExtractArray(body, "workflow_runs", nil)
	runs := make([]*models.WorkflowRun, 0, len(records))
	for _, raw := range records {
		f, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}

		run := &models.WorkflowRun{
			Status:     models.NormalizeStatus(f.str(statusAliases)),
			Conclusion: models.NormalizeConclusion(f.str(conclusionAliases)),
			Branch:     f.str(branchAliases),
			SHA:        f.str(shaAliases),
			Event:      f.str(eventAliases),
			Actor:      f.str(actorAliases),
			CreatedAt:  f.time(createdAliases),
			UpdatedAt:  f.time(updatedAliases),
		}

		if id, ok := f.int64(runIDAliases); ok {
			run.ID = id
		} else {
			run.ID = fallbackID()
			run.Ephemeral = true
		}
		if n, ok := f.int64(runNumberAliases); ok {
			run.RunNumber = n
		} else {
			run.RunNumber = run.ID
		}

		run.Title = f.str(runNameAliases)
		if run.Title == "" {
			run.Title = owner + "/" + name
		}

		runs = append(runs, run)
	}
	return runs, nil
}

// DecodeJobs maps a raw jobs payload into typed records.
func DecodeJobs(body []byte) ([]*models.Job, error) {
	records := ExtractArray(body, "jobs", nil)
	jobs := make([]*models.Job, 0, len(records))
	for _, raw := range records {
		f, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}

		job := &models.Job{
			Name:        f.str(jobNameAliases),
			Status:      models.NormalizeStatus(f.str(statusAliases)),
			Conclusion:  models.NormalizeConclusion(f.str(conclusionAliases)),
			StartedAt:   f.time(startedAliases),
			CompletedAt: f.time(completedAliases),
		}

		if id, ok := f.int64(jobIDAliases); ok {
			job.ID = id
		} else {
			job.ID = fallbackID()
			job.Ephemeral = true
		}

		jobs = append(jobs, job)
	}
	return jobs, nil
}

// DecodeRepositories maps a repo-search payload into RepositoryRefs.
func DecodeRepositories(host string, body []byte) ([]models.RepositoryRef, error) {
	records := ExtractArray(body, "repositories", nil)
	refs := make([]models.RepositoryRef, 0, len(records))
	for _, raw := range records {
		f, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}

		owner := f.str([]string{"owner_name", "ownerName"})
		name := f.str([]string{"name", "repo_name", "repoName"})
		if owner == "" {
			// Nested owner object, the common API shape.
			if o, ok := f["owner"].(map[string]any); ok {
				if login, ok := o["login"].(string); ok {
					owner = login
				} else if uname, ok := o["username"].(string); ok {
					owner = uname
				}
			}
		}
		if owner == "" || name == "" {
			// Last resort: split full_name.
			full := f.str([]string{"full_name", "fullName"})
			if o, n, ok := splitFullName(full); ok {
				owner, name = o, n
			}
		}
		if owner == "" || name == "" {
			continue
		}

		refs = append(refs, models.RepositoryRef{
			Host:  host,
			Owner: owner,
			Name:  name,
			URL:   f.str([]string{"html_url", "htmlUrl", "clone_url", "cloneUrl"}),
		})
	}
	return refs, nil
}

func splitFullName(full string) (owner, name string, ok bool) {
	for i := 0; i < len(full); i++ {
		if full[i] == '/' {
			return full[:i], full[i+1:], i > 0 && i < len(full)-1
		}
	}
	return "", "", false
}
