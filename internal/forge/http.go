package forge

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

const DefaultAPIURL = "https://api.github.com"

// GraphQLPath is the Request.Path of the GraphQL endpoint.
const GraphQLPath = "/graphql"

// HTTPTransport talks to the API directly with a bearer token. It sets no
// deadline of its own; callers bound requests through the context.
type HTTPTransport struct {
	baseURL    string
	graphQLURL string
	token      string
	client     *http.Client
}

func NewHTTPTransport(baseURL, token string) *HTTPTransport {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &HTTPTransport{
		baseURL:    baseURL,
		graphQLURL: graphQLEndpoint(baseURL),
		token:      token,
		client:     &http.Client{},
	}
}

// graphQLEndpoint derives the GraphQL URL from the REST root. Enterprise
// serves REST under /api/v3 and GraphQL at /api/graphql.
func graphQLEndpoint(baseURL string) string {
	if root, ok := strings.CutSuffix(baseURL, "/api/v3"); ok {
		return root + "/api/graphql"
	}
	return baseURL + GraphQLPath
}

func (t *HTTPTransport) url(r *Request) string {
	u := t.baseURL + r.Path
	if r.Path == GraphQLPath {
		u = t.graphQLURL
	}
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	return u
}

func (t *HTTPTransport) Do(ctx context.Context, r *Request) (*Response, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, t.url(r), body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: b}, nil
}
