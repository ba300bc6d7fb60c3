// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"fmt"
	"net/url"
)

// Primary REST endpoints under /api/v1. The session protocol paths
// live in the session package; they are not part of the public API.
const (
	// EndpointRunsTemplate lists workflow runs for a repository.
	EndpointRunsTemplate = "/api/v1/repos/%s/%s/actions/runs?limit=%d"

	// EndpointRunJobsTemplate lists the jobs of one run.
	EndpointRunJobsTemplate = "/api/v1/repos/%s/%s/actions/runs/%d/jobs"

	// EndpointJobLogsTemplate fetches the raw log text of one job.
	EndpointJobLogsTemplate = "/api/v1/repos/%s/%s/actions/jobs/%d/logs"

	// EndpointRepoSearchTemplate lists repositories accessible to the
	// token.
	EndpointRepoSearchTemplate = "/api/v1/repos/search?limit=%d"
)

// RunsURL builds the runs-list URL for a repository.
func RunsURL(owner, name string, limit int) string {
	return fmt.Sprintf(EndpointRunsTemplate, url.PathEscape(owner), url.PathEscape(name), limit)
}

// RunJobsURL builds the jobs-list URL for a run.
func RunJobsURL(owner, name string, runID int64) string {
	return fmt.Sprintf(EndpointRunJobsTemplate, url.PathEscape(owner), url.PathEscape(name), runID)
}

// JobLogsURL builds the raw job-log URL.
func JobLogsURL(owner, name string, jobID int64) string {
	return fmt.Sprintf(EndpointJobLogsTemplate, url.PathEscape(owner), url.PathEscape(name), jobID)
}

// RepoSearchURL builds the accessible-repositories URL.
func RepoSearchURL(limit int) string {
	return fmt.Sprintf(EndpointRepoSearchTemplate, limit)
}
