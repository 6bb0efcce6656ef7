package forge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"prboard/internal/model"
)

func repoPath(owner, repo string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo)
}

// CheckRuns returns the completed check runs for a commit.
func (c *Client) CheckRuns(ctx context.Context, owner, repo, sha string) ([]model.CheckRun, error) {
	const op = "list check runs"
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	resp, err := c.do(ctx, op, &Request{
		Method: http.MethodGet,
		Path:   repoPath(owner, repo) + "/commits/" + url.PathEscape(sha) + "/check-runs",
		Query:  url.Values{"status": {"completed"}, "per_page": {"100"}},
	})
	if err != nil {
		return nil, err
	}

	var body struct {
		CheckRuns []struct {
			Name       string `json:"name"`
			Conclusion string `json:"conclusion"`
			HTMLURL    string `json:"html_url"`
			DetailsURL string `json:"details_url"`
		} `json:"check_runs"`
	}
	if err := c.decode(op, resp.Body, &body); err != nil {
		return nil, err
	}

	runs := make([]model.CheckRun, 0, len(body.CheckRuns))
	for _, r := range body.CheckRuns {
		link := r.HTMLURL
		if link == "" {
			link = r.DetailsURL
		}
		runs = append(runs, model.CheckRun{Name: r.Name, Conclusion: r.Conclusion, Link: link})
	}
	return runs, nil
}

// WorkflowRuns lists the Actions workflow runs triggered for a commit.
func (c *Client) WorkflowRuns(ctx context.Context, owner, repo, sha string) ([]model.WorkflowRun, error) {
	const op = "list workflow runs"

	resp, err := c.do(ctx, op, &Request{
		Method: http.MethodGet,
		Path:   repoPath(owner, repo) + "/actions/runs",
		Query:  url.Values{"head_sha": {sha}, "per_page": {"100"}},
	})
	if err != nil {
		return nil, err
	}

	var body struct {
		WorkflowRuns []struct {
			ID         int64  `json:"id"`
			Name       string `json:"name"`
			Conclusion string `json:"conclusion"`
		} `json:"workflow_runs"`
	}
	if err := c.decode(op, resp.Body, &body); err != nil {
		return nil, err
	}

	runs := make([]model.WorkflowRun, 0, len(body.WorkflowRuns))
	for _, r := range body.WorkflowRuns {
		runs = append(runs, model.WorkflowRun{ID: r.ID, Name: r.Name, Conclusion: r.Conclusion})
	}
	return runs, nil
}

// RerunFailedJobs re-runs the failed jobs of a single workflow run.
func (c *Client) RerunFailedJobs(ctx context.Context, owner, repo string, runID int64) error {
	_, err := c.do(ctx, "rerun failed jobs", &Request{
		Method: http.MethodPost,
		Path:   repoPath(owner, repo) + "/actions/runs/" + strconv.FormatInt(runID, 10) + "/rerun-failed-jobs",
	})
	return err
}

// UpdateBranch merges the base branch into the pull request's head branch.
func (c *Client) UpdateBranch(ctx context.Context, owner, repo string, number int) error {
	_, err := c.do(ctx, "update branch", &Request{
		Method: http.MethodPut,
		Path:   fmt.Sprintf("%s/pulls/%d/update-branch", repoPath(owner, repo), number),
		Body:   []byte("{}"),
	})
	return err
}

// Organizations lists the organizations the viewer belongs to.
func (c *Client) Organizations(ctx context.Context) ([]model.Organization, error) {
	const op = "list organizations"
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	resp, err := c.do(ctx, op, &Request{
		Method: http.MethodGet,
		Path:   "/user/orgs",
		Query:  url.Values{"per_page": {"100"}},
	})
	if err != nil {
		return nil, err
	}

	var orgs []model.Organization
	if err := c.decode(op, resp.Body, &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

// Viewer returns the login of the authenticated user. It is the cheapest way
// to find out whether the credential is still valid.
func (c *Client) Viewer(ctx context.Context) (string, error) {
	const op = "get viewer"
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	resp, err := c.do(ctx, op, &Request{Method: http.MethodGet, Path: "/user"})
	if err != nil {
		return "", err
	}
	var u struct {
		Login string `json:"login"`
	}
	if err := c.decode(op, resp.Body, &u); err != nil {
		return "", err
	}
	if u.Login == "" {
		return "", &Error{Kind: KindMalformed, Op: op, Message: "missing login"}
	}
	return u.Login, nil
}
