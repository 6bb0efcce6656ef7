package forge

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/textproto"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// GHTransport sends requests through the gh CLI, reusing its stored login.
type GHTransport struct {
	bin      string
	hostname string
}

// NewGHTransport returns a transport using the gh binary on PATH.
// hostname selects a GitHub Enterprise host; empty means github.com.
func NewGHTransport(hostname string) *GHTransport {
	return &GHTransport{bin: "gh", hostname: hostname}
}

func (g *GHTransport) args(r *Request) []string {
	path := strings.TrimPrefix(r.Path, "/")
	if len(r.Query) > 0 {
		path += "?" + r.Query.Encode()
	}
	args := []string{"api", path, "--include", "--method", r.Method}
	if g.hostname != "" {
		args = append(args, "--hostname", g.hostname)
	}
	if r.Body != nil {
		args = append(args, "--input", "-")
	}
	return args
}

func (g *GHTransport) Do(ctx context.Context, r *Request) (*Response, error) {
	cmd := exec.CommandContext(ctx, g.bin, g.args(r)...)
	if r.Body != nil {
		cmd.Stdin = bytes.NewReader(r.Body)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// gh exits non-zero on HTTP errors but still prints the response.
	out, runErr := cmd.Output()
	resp, parseErr := parseGHOutput(out)
	if parseErr == nil {
		return resp, nil
	}
	if runErr != nil {
		return nil, errors.Errorf("gh api: %s", trimOutput(stderr.Bytes()))
	}
	return nil, errors.Wrap(parseErr, "gh api")
}

// parseGHOutput splits `gh api --include` output into status, headers and body.
func parseGHOutput(out []byte) (*Response, error) {
	head, body, ok := bytes.Cut(out, []byte("\r\n\r\n"))
	if !ok {
		head, body, ok = bytes.Cut(out, []byte("\n\n"))
	}
	if !ok {
		return nil, errors.New("no header block in output")
	}

	block := append(bytes.Clone(head), "\r\n\r\n"...)
	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(block)))
	status, err := tp.ReadLine()
	if err != nil {
		return nil, errors.Wrap(err, "read status line")
	}
	// "HTTP/2.0 200 OK"
	fields := strings.Fields(status)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return nil, errors.Errorf("bad status line %q", status)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, errors.Errorf("bad status code %q", fields[1])
	}
	hdr, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, errors.Wrap(err, "read headers")
	}
	return &Response{StatusCode: code, Header: http.Header(hdr), Body: body}, nil
}

const maxOutput = 200

// trimOutput shortens b to maxOutput runes.
func trimOutput(b []byte) string {
	r := []rune(strings.TrimSpace(string(b)))
	if len(r) > maxOutput {
		return string(r[:maxOutput]) + "…"
	}
	return string(r)
}
