// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/models"
)

// ListRuns fetches up to limit workflow runs for a repository, newest
// first.
func (c *Client) ListRuns(ctx context.Context, owner, name string, limit int) ([]*models.WorkflowRun, error) {
	body, err := c.GetJSON(ctx, RunsURL(owner, name, limit))
	if err != nil {
		return nil, err
	}
	return DecodeRuns(owner, name, body)
}

// ListJobs fetches the jobs of one run.
func (c *Client) ListJobs(ctx context.Context, owner, name string, runID int64) ([]*models.Job, error) {
	body, err := c.GetJSON(ctx, RunJobsURL(owner, name, runID))
	if err != nil {
		return nil, err
	}
	return DecodeJobs(body)
}

// JobLogs fetches the full raw log text of one job. The endpoint
// returns plain text, so only the status is validated.
func (c *Client) JobLogs(ctx context.Context, owner, name string, jobID int64) (string, error) {
	resp, err := c.Do(ctx, http.MethodGet, JobLogsURL(owner, name, jobID), map[string]string{"Accept": "*/*"}, nil, 0)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", ParseError(resp)
	}
	return string(resp.Body), nil
}

// SearchRepositories lists repositories accessible to the token.
func (c *Client) SearchRepositories(ctx context.Context, host string, limit int) ([]models.RepositoryRef, error) {
	body, err := c.GetJSON(ctx, RepoSearchURL(limit))
	if err != nil {
		return nil, err
	}
	return DecodeRepositories(host, body)
}
