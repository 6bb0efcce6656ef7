package forge

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"prboard/internal/model"
)

// SearchPageSize is the single page fetched by SearchAssigned. Anything beyond
// it is silently truncated.
const SearchPageSize = 100

const assignedQuery = `query AssignedPullRequests($q: String!, $first: Int!) {
  search(query: $q, type: ISSUE, first: $first) {
    issueCount
    nodes {
      ... on PullRequest {
        id
        title
        url
        number
        isDraft
        mergeable
        mergeStateStatus
        headRefName
        baseRefName
        createdAt
        updatedAt
        repository { name nameWithOwner }
        author { login avatarUrl }
        commits(last: 1) { nodes { commit { oid statusCheckRollup { state } } } }
        reviewDecision
        reviews(last: 50) { nodes { author { login } state submittedAt } }
        assignees(first: 25) { nodes { login } }
      }
    }
  }
}`

const markReadyMutation = `mutation MarkReady($id: ID!) {
  markPullRequestReadyForReview(input: {pullRequestId: $id}) {
    pullRequest { isDraft }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// graphQL posts a query and decodes its "data" member into data.
func (c *Client) graphQL(ctx context.Context, op, query string, vars map[string]any, data any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return &Error{Kind: KindRejected, Op: op, Err: err}
	}
	resp, err := c.do(ctx, op, &Request{Method: http.MethodPost, Path: GraphQLPath, Body: body})
	if err != nil {
		return err
	}

	var env struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}
	if err := c.decode(op, resp.Body, &env); err != nil {
		return err
	}
	if len(env.Errors) > 0 {
		msgs := make([]string, 0, len(env.Errors))
		kind := KindRejected
		for _, e := range env.Errors {
			if e.Type == "RATE_LIMITED" {
				kind = KindRateLimited
			}
			msgs = append(msgs, e.Message)
		}
		return &Error{Kind: kind, Op: op, StatusCode: resp.StatusCode, Message: strings.Join(msgs, "; ")}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &Error{Kind: KindMalformed, Op: op, Message: "response has no data"}
	}
	return c.decode(op, env.Data, data)
}

type searchNode struct {
	ID               string    `json:"id" validate:"required"`
	Title            string    `json:"title"`
	URL              string    `json:"url" validate:"required,url"`
	Number           int       `json:"number" validate:"gt=0"`
	IsDraft          bool      `json:"isDraft"`
	Mergeable        string    `json:"mergeable" validate:"omitempty,oneof=MERGEABLE CONFLICTING UNKNOWN"`
	MergeStateStatus string    `json:"mergeStateStatus"`
	HeadRefName      string    `json:"headRefName"`
	BaseRefName      string    `json:"baseRefName" validate:"required"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	Repository       struct {
		Name          string `json:"name" validate:"required"`
		NameWithOwner string `json:"nameWithOwner" validate:"required,contains=/"`
	} `json:"repository"`
	Author *struct {
		Login     string `json:"login"`
		AvatarURL string `json:"avatarUrl"`
	} `json:"author"`
	Commits struct {
		Nodes []struct {
			Commit struct {
				OID               string `json:"oid" validate:"required"`
				StatusCheckRollup *struct {
					State string `json:"state"`
				} `json:"statusCheckRollup"`
			} `json:"commit"`
		} `json:"nodes" validate:"dive"`
	} `json:"commits"`
	ReviewDecision *string `json:"reviewDecision"`
	Reviews        struct {
		Nodes []struct {
			Author *struct {
				Login string `json:"login"`
			} `json:"author"`
			State       string    `json:"state"`
			SubmittedAt time.Time `json:"submittedAt"`
		} `json:"nodes"`
	} `json:"reviews"`
	Assignees struct {
		Nodes []struct {
			Login string `json:"login"`
		} `json:"nodes"`
	} `json:"assignees"`
}

func (n *searchNode) toModel() *model.PullRequest {
	pr := &model.PullRequest{
		ID:         n.ID,
		Title:      n.Title,
		URL:        n.URL,
		Number:     n.Number,
		Draft:      n.IsDraft,
		Mergeable:  model.Mergeable(n.Mergeable),
		MergeState: model.MergeState(n.MergeStateStatus),
		HeadRef:    n.HeadRefName,
		BaseRef:    n.BaseRefName,
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
		Repository: model.Repository{
			Name:          n.Repository.Name,
			NameWithOwner: n.Repository.NameWithOwner,
		},
	}
	if pr.Mergeable == "" {
		pr.Mergeable = model.MergeableUnknown
	}
	if n.Author != nil {
		pr.Author = model.Actor{Login: n.Author.Login, AvatarURL: n.Author.AvatarURL}
	}
	if len(n.Commits.Nodes) > 0 {
		c := n.Commits.Nodes[len(n.Commits.Nodes)-1].Commit
		pr.LastCommit = &model.Commit{OID: c.OID}
		if c.StatusCheckRollup != nil {
			pr.LastCommit.RollupState = c.StatusCheckRollup.State
		}
	}
	if n.ReviewDecision != nil {
		pr.ReviewDecision = model.ReviewDecision(*n.ReviewDecision)
	}
	for _, r := range n.Reviews.Nodes {
		rv := model.Review{State: r.State, SubmittedAt: r.SubmittedAt}
		if r.Author != nil {
			rv.Author = r.Author.Login
		}
		pr.Reviews = append(pr.Reviews, rv)
	}
	for _, a := range n.Assignees.Nodes {
		pr.Assignees = append(pr.Assignees, a.Login)
	}
	return pr
}

// AssignedQuery is the search string used for org.
func AssignedQuery(org string) string {
	return "is:pr is:open archived:false assignee:@me org:" + org
}

// SearchAssigned returns up to SearchPageSize open pull requests in org that
// are assigned to the authenticated user. It returns ErrNoPullRequests when
// the search matches nothing.
func (c *Client) SearchAssigned(ctx context.Context, org string) ([]*model.PullRequest, error) {
	const op = "search assigned pull requests"
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	var data struct {
		Search struct {
			IssueCount int          `json:"issueCount"`
			Nodes      []searchNode `json:"nodes"`
		} `json:"search"`
	}
	vars := map[string]any{"q": AssignedQuery(org), "first": SearchPageSize}
	if err := c.graphQL(ctx, op, assignedQuery, vars, &data); err != nil {
		return nil, err
	}

	if len(data.Search.Nodes) == 0 {
		return nil, ErrNoPullRequests
	}
	if data.Search.IssueCount > len(data.Search.Nodes) {
		c.logger.Info("search results truncated",
			zap.String("org", org),
			zap.Int("total", data.Search.IssueCount),
			zap.Int("returned", len(data.Search.Nodes)),
		)
	}

	prs := make([]*model.PullRequest, 0, len(data.Search.Nodes))
	for i := range data.Search.Nodes {
		n := &data.Search.Nodes[i]
		if err := c.validate.Struct(n); err != nil {
			return nil, &Error{Kind: KindMalformed, Op: op, Message: "invalid pull request node", Err: err}
		}
		if n.UpdatedAt.IsZero() {
			return nil, &Error{Kind: KindMalformed, Op: op, Message: "pull request " + n.URL + " has no updatedAt"}
		}
		prs = append(prs, n.toModel())
	}
	return prs, nil
}

// MarkReady converts a draft pull request, identified by its node id, to
// ready for review.
func (c *Client) MarkReady(ctx context.Context, nodeID string) error {
	var data struct {
		MarkPullRequestReadyForReview struct {
			PullRequest struct {
				IsDraft bool `json:"isDraft"`
			} `json:"pullRequest"`
		} `json:"markPullRequestReadyForReview"`
	}
	return c.graphQL(ctx, "mark ready for review", markReadyMutation, map[string]any{"id": nodeID}, &data)
}
