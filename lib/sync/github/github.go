// Copyright 2021 Silvio Böhler
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package github is a minimal client for the GitHub contents and git data
// APIs.
package github

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sboehler/kasse/lib/common/fault"
	"golang.org/x/oauth2"
)

// DefaultURL is the URL of the GitHub API.
const DefaultURL = "https://api.github.com"

// DefaultTimeout bounds every request.
const DefaultTimeout = 120 * time.Second

// Client is a client for one repository.
type Client struct {
	url  string
	repo string
	http *http.Client
}

// New creates a client for the repository "owner/name", authenticating
// with token. An empty baseURL selects DefaultURL.
func New(baseURL, repo, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	hc := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	hc.Timeout = DefaultTimeout
	return &Client{url: baseURL, repo: repo, http: hc}
}

// Repository describes a repository.
type Repository struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
}

// File is the content of a file at a revision.
type File struct {
	Path    string
	SHA     string
	Content []byte
}

// Entry is an entry of a git tree.
type Entry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
	Size int    `json:"size"`
}

// Commit is a commit.
type Commit struct {
	SHA     string
	Message string
	Tree    string
}

// Repository returns the repository.
func (c *Client) Repository(ctx context.Context) (Repository, error) {
	var res Repository
	err := c.do(ctx, http.MethodGet, c.repoURL(), nil, nil, &res)
	return res, err
}

// GetContents returns a file on the given branch or commit.
func (c *Client) GetContents(ctx context.Context, file, ref string) (File, error) {
	var body jcontent
	if err := c.do(ctx, http.MethodGet, c.repoURL("contents", file), refQuery(ref), nil, &body); err != nil {
		return File{}, err
	}
	if body.Type != "" && body.Type != "file" {
		return File{}, fault.New(fault.RemoteFailure, "getting contents", "%s is a %s, not a file", file, body.Type)
	}
	content, err := decodeContent(body.Content, body.Encoding)
	if err != nil {
		return File{}, fault.Wrap(fault.RemoteFailure, "getting contents", err)
	}
	return File{Path: body.Path, SHA: body.SHA, Content: content}, nil
}

// ListContents lists a directory on the given branch or commit. An empty
// dir lists the root of the repository.
func (c *Client) ListContents(ctx context.Context, dir, ref string) ([]Entry, error) {
	var body []jcontent
	if err := c.do(ctx, http.MethodGet, c.repoURL("contents", dir), refQuery(ref), nil, &body); err != nil {
		return nil, err
	}
	res := make([]Entry, 0, len(body))
	for _, e := range body {
		res = append(res, Entry{Path: e.Path, Type: e.Type, SHA: e.SHA})
	}
	return res, nil
}

// PutContents creates or updates a file on a branch. The sha of the
// replaced file is required for updates and must be empty for creates. It
// returns the blob sha of the new file.
func (c *Client) PutContents(ctx context.Context, file, branch, sha, message string, content []byte) (string, error) {
	req := jput{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		SHA:     sha,
		Branch:  branch,
	}
	var res jputResponse
	if err := c.do(ctx, http.MethodPut, c.repoURL("contents", file), nil, req, &res); err != nil {
		return "", err
	}
	return res.Content.SHA, nil
}

// Tree lists the blobs reachable from a branch, tag or commit.
func (c *Client) Tree(ctx context.Context, ref string) ([]Entry, error) {
	var body jtree
	if err := c.do(ctx, http.MethodGet, c.repoURL("git", "trees", ref), url.Values{"recursive": {"1"}}, nil, &body); err != nil {
		return nil, err
	}
	if body.Truncated {
		return nil, fault.New(fault.RemoteFailure, "listing tree", "tree of %s is too large", ref)
	}
	var res []Entry
	for _, e := range body.Tree {
		if e.Type == "blob" {
			res = append(res, e)
		}
	}
	return res, nil
}

// Blob returns the content of a blob.
func (c *Client) Blob(ctx context.Context, sha string) ([]byte, error) {
	var body jblob
	if err := c.do(ctx, http.MethodGet, c.repoURL("git", "blobs", sha), nil, nil, &body); err != nil {
		return nil, err
	}
	content, err := decodeContent(body.Content, body.Encoding)
	if err != nil {
		return nil, fault.Wrap(fault.RemoteFailure, "getting blob", err)
	}
	return content, nil
}

// Commit returns the commit of a branch, tag or commit sha.
func (c *Client) Commit(ctx context.Context, ref string) (Commit, error) {
	var body jcommit
	if err := c.do(ctx, http.MethodGet, c.repoURL("commits", ref), nil, nil, &body); err != nil {
		return Commit{}, err
	}
	return Commit{SHA: body.SHA, Message: body.Commit.Message, Tree: body.Commit.Tree.SHA}, nil
}

func (c *Client) repoURL(elems ...string) string {
	var segments []string
	for _, e := range append([]string{"repos", c.repo}, elems...) {
		for _, s := range strings.Split(e, "/") {
			if s != "" {
				segments = append(segments, url.PathEscape(s))
			}
		}
	}
	return strings.TrimSuffix(c.url, "/") + "/" + strings.Join(segments, "/")
}

func refQuery(ref string) url.Values {
	if ref == "" {
		return nil
	}
	return url.Values{"ref": {ref}}
}

func (c *Client) do(ctx context.Context, method, u string, query url.Values, in, out any) error {
	op := fmt.Sprintf("%s %s", method, u)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fault.Wrap(fault.Transient, op, err)
		}
		return fault.Wrap(fault.RemoteFailure, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fault.Wrap(fault.RemoteFailure, op, fmt.Errorf("error decoding response: %w", err))
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func statusError(op string, resp *http.Response) error {
	var body jerror
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)
	msg := body.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	var kind fault.Kind
	switch {
	case resp.StatusCode == http.StatusNotFound:
		kind = fault.NotFound
	case resp.StatusCode == http.StatusConflict, resp.StatusCode == http.StatusUnprocessableEntity:
		kind = fault.Conflict
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		kind = fault.Transient
	default:
		kind = fault.RemoteFailure
	}
	return fault.New(kind, op, "status %d: %s", resp.StatusCode, msg)
}

// BlobSHA returns the git object id of a blob with the given content.
func BlobSHA(content []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

func decodeContent(content, encoding string) ([]byte, error) {
	switch encoding {
	case "base64":
		return base64.StdEncoding.DecodeString(strings.ReplaceAll(content, "\n", ""))
	case "", "utf-8":
		return []byte(content), nil
	}
	return nil, fmt.Errorf("unsupported encoding %q", encoding)
}

type jcontent struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type jput struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type jputResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

type jtree struct {
	SHA       string  `json:"sha"`
	Tree      []Entry `json:"tree"`
	Truncated bool    `json:"truncated"`
}

type jblob struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type jcommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Tree    struct {
			SHA string `json:"sha"`
		} `json:"tree"`
	} `json:"commit"`
}

type jerror struct {
	Message string `json:"message"`
}
