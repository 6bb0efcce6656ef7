package git

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
)

// RepoRoot returns the absolute path of the current git repository root.
func RepoRoot(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// OriginURL returns the fetch URL of the origin remote of the repo at dir.
func OriginURL(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "remote", "get-url", "origin")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git remote get-url: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// DefaultOwner returns the owner of the origin remote of the repository the
// process runs in, if that remote is on host.
func DefaultOwner(ctx context.Context, host string) (string, bool) {
	root, err := RepoRoot(ctx)
	if err != nil {
		return "", false
	}
	remote, err := OriginURL(ctx, root)
	if err != nil {
		return "", false
	}
	h, owner, _, ok := ParseRemote(remote)
	if !ok || !strings.EqualFold(h, host) {
		return "", false
	}
	return owner, true
}

// ParseRemote splits a remote URL into host, owner and repository name.
// It understands scp-like ssh remotes (git@host:owner/repo.git) and
// https/ssh/git URLs.
func ParseRemote(remote string) (host, owner, repo string, ok bool) {
	remote = strings.TrimSpace(remote)
	var path string

	if u, err := url.Parse(remote); err == nil && u.Scheme != "" && u.Host != "" {
		host = u.Hostname()
		path = u.Path
	} else {
		at := strings.Index(remote, "@")
		colon := strings.Index(remote, ":")
		if colon < 0 || colon < at {
			return "", "", "", false
		}
		host = remote[at+1 : colon]
		path = remote[colon+1:]
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	return host, parts[0], strings.TrimSuffix(parts[1], ".git"), host != ""
}
