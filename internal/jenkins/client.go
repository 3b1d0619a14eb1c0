// Package jenkins is a small REST client for a Jenkins server: job
// creation from templates, build triggering, status polling and console
// retrieval.
package jenkins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/agentoven/ragjenkins/pkg/models"
)

// TruncationMarker is appended to console text cut at the size limit.
const TruncationMarker = "\n... (truncated)"

var (
	// ErrAuth is returned for 401 and 403 responses.
	ErrAuth = errors.New("jenkins authentication failed")
	// ErrUnreachable is returned when the server cannot be contacted.
	ErrUnreachable = errors.New("jenkins unreachable")
	// ErrJobNotFound is returned when the job does not exist.
	ErrJobNotFound = errors.New("jenkins job not found")
	// ErrInvalidJobName is returned before any request for empty names and
	// names with empty, "." or ".." segments.
	ErrInvalidJobName = errors.New("invalid jenkins job name")
)

// APIError is any other non-success response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jenkins API error (%d): %s", e.StatusCode, e.Message)
}

// Client talks to one Jenkins server with basic auth (username + API token).
type Client struct {
	baseURL    string
	username   string
	token      string
	maxConsole int
	templates  *Catalogue
	http       *http.Client

	crumbMu       sync.Mutex
	crumbField    string
	crumb         string
	crumbDisabled bool
}

// Option configures the client.
type Option func(*Client)

// WithMaxConsole sets the console truncation limit in characters. Zero or
// less disables truncation.
func WithMaxConsole(n int) Option {
	return func(c *Client) { c.maxConsole = n }
}

// WithTemplates sets the job template catalogue.
func WithTemplates(cat *Catalogue) Option {
	return func(c *Client) { c.templates = cat }
}

// NewClient creates a Jenkins client.
func NewClient(baseURL, username, token string, timeout time.Duration, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		token:      token,
		maxConsole: 2000,
		templates:  DefaultCatalogue(),
		http:       &http.Client{Timeout: timeout, Jar: jar},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ── Operations ──────────────────────────────────────────────

type jobInfo struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	NextBuildNumber int    `json:"nextBuildNumber"`
	InQueue         bool   `json:"inQueue"`
	LastBuild       *struct {
		Number int `json:"number"`
	} `json:"lastBuild"`
}

// GetJob fetches a job's metadata.
func (c *Client) GetJob(ctx context.Context, name string) (*models.JenkinsJob, error) {
	if err := validateJobName(name); err != nil {
		return nil, err
	}
	var info jobInfo
	if err := c.getJSON(ctx, jobPath(name)+"/api/json", &info); err != nil {
		return nil, err
	}
	job := &models.JenkinsJob{
		Name:            name,
		URL:             info.URL,
		NextBuildNumber: info.NextBuildNumber,
		InQueue:         info.InQueue,
	}
	if info.LastBuild != nil {
		n := info.LastBuild.Number
		job.LastBuildNumber = &n
	}
	return job, nil
}

// EnsureJob returns the named job, creating it from the template when it
// does not exist. An empty template selects the catalogue default.
func (c *Client) EnsureJob(ctx context.Context, name, template string) (*models.JenkinsJob, error) {
	job, err := c.GetJob(ctx, name)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, ErrJobNotFound) {
		return nil, err
	}

	configXML, err := c.templates.Render(template, name)
	if err != nil {
		return nil, err
	}

	createPath := "/createItem"
	leaf := name
	if i := strings.LastIndex(name, "/"); i >= 0 {
		createPath = jobPath(name[:i]) + createPath
		leaf = name[i+1:]
	}
	q := url.Values{"name": {leaf}}
	resp, err := c.do(ctx, http.MethodPost, createPath+"?"+q.Encode(), "application/xml", strings.NewReader(configXML))
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	log.Info().Str("job", name).Str("template", template).Msg("Jenkins job created")
	return c.GetJob(ctx, name)
}

// TriggerBuild queues a build and returns the number it will get.
func (c *Client) TriggerBuild(ctx context.Context, job *models.JenkinsJob) (int, error) {
	if err := validateJob(job); err != nil {
		return 0, err
	}
	current, err := c.GetJob(ctx, job.Name)
	if err != nil {
		return 0, err
	}
	resp, err := c.do(ctx, http.MethodPost, jobPath(job.Name)+"/build", "", nil)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	log.Info().Str("job", job.Name).Int("build", current.NextBuildNumber).Msg("Jenkins build triggered")
	return current.NextBuildNumber, nil
}

type buildInfo struct {
	Number   int     `json:"number"`
	Building bool    `json:"building"`
	Result   *string `json:"result"`
}

// GetStatus reads the state of one build. It does not retry.
func (c *Client) GetStatus(ctx context.Context, job *models.JenkinsJob, build int) (models.BuildStatus, error) {
	if err := validateJob(job); err != nil {
		return models.BuildUnknown, err
	}
	var info buildInfo
	err := c.getJSON(ctx, jobPath(job.Name)+"/"+strconv.Itoa(build)+"/api/json", &info)
	if errors.Is(err, ErrJobNotFound) {
		// The build does not exist yet; it may still be waiting in the queue.
		current, jobErr := c.GetJob(ctx, job.Name)
		if jobErr != nil {
			return models.BuildUnknown, jobErr
		}
		if current.InQueue {
			return models.BuildQueued, nil
		}
		return models.BuildUnknown, nil
	}
	if err != nil {
		return models.BuildUnknown, err
	}
	return buildStatus(info), nil
}

func buildStatus(info buildInfo) models.BuildStatus {
	if info.Building {
		return models.BuildRunning
	}
	if info.Result == nil {
		return models.BuildUnknown
	}
	switch *info.Result {
	case "SUCCESS":
		return models.BuildSuccess
	case "FAILURE", "UNSTABLE", "ABORTED", "NOT_BUILT":
		return models.BuildFailure
	default:
		return models.BuildUnknown
	}
}

// FetchConsole returns the build's console text, truncated to the
// configured size with TruncationMarker appended.
func (c *Client) FetchConsole(ctx context.Context, job *models.JenkinsJob, build int) (string, error) {
	if err := validateJob(job); err != nil {
		return "", err
	}
	resp, err := c.do(ctx, http.MethodGet, jobPath(job.Name)+"/"+strconv.Itoa(build)+"/consoleText", "", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if c.maxConsole > 0 {
		// Read a little past the limit; multi-byte runes need up to 4 bytes each.
		body = io.LimitReader(resp.Body, int64(c.maxConsole)*utf8.UTFMax+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("%w: read console: %v", ErrUnreachable, err)
	}
	return Truncate(string(data), c.maxConsole), nil
}

// Truncate cuts text to max runes and appends TruncationMarker when it
// had to cut.
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max]) + TruncationMarker
}

// Ping checks that the server answers with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	var v map[string]any
	return c.getJSON(ctx, "/api/json", &v)
}

// HealthCheck is Ping under the name used by the health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx)
}

// ── Transport ───────────────────────────────────────────────

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// do sends an authenticated request. POSTs carry the CSRF crumb. Any
// non-2xx status is mapped to an error and the body is closed.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method == http.MethodPost {
		field, crumb, err := c.getCrumb(ctx)
		if err != nil {
			return nil, err
		}
		if field != "" {
			req.Header.Set(field, crumb)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		if method == http.MethodPost {
			// A stale crumb also yields 403; fetch a fresh one next time.
			c.resetCrumb()
		}
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrAuth, method, path, resp.StatusCode)
	case http.StatusNotFound:
		if strings.HasPrefix(path, "/job/") {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, path)
		}
	}
	return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
}

type crumbResponse struct {
	CrumbRequestField string `json:"crumbRequestField"`
	Crumb             string `json:"crumb"`
}

// getCrumb returns the cached CSRF crumb, fetching it on first use. A
// 404 from the crumb issuer means CSRF protection is off.
func (c *Client) getCrumb(ctx context.Context) (string, string, error) {
	c.crumbMu.Lock()
	defer c.crumbMu.Unlock()
	if c.crumbDisabled {
		return "", "", nil
	}
	if c.crumb != "" {
		return c.crumbField, c.crumb, nil
	}

	var cr crumbResponse
	err := c.getJSON(ctx, "/crumbIssuer/api/json", &cr)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		c.crumbDisabled = true
		log.Debug().Msg("Jenkins crumb issuer disabled")
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("fetch crumb: %w", err)
	}
	c.crumbField, c.crumb = cr.CrumbRequestField, cr.Crumb
	return c.crumbField, c.crumb, nil
}

func (c *Client) resetCrumb() {
	c.crumbMu.Lock()
	c.crumb = ""
	c.crumbMu.Unlock()
}

// jobPath maps a job name to its URL path; "folder/job" becomes
// /job/folder/job/job.
func jobPath(name string) string {
	var sb strings.Builder
	for _, part := range strings.Split(name, "/") {
		sb.WriteString("/job/")
		sb.WriteString(url.PathEscape(part))
	}
	return sb.String()
}

func validateJob(job *models.JenkinsJob) error {
	if job == nil {
		return fmt.Errorf("%w: no job", ErrInvalidJobName)
	}
	return validateJobName(job.Name)
}

func validateJobName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidJobName)
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidJobName, name)
		}
	}
	return nil
}
