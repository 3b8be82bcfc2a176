// Package ncbi implements the client for the NCBI BLAST URL API: submit a
// query with CMD=Put, poll the returned request ID until the job leaves
// WAITING, then download the XML report. The full cycle satisfies
// domain.ExecutionBackend so the orchestrator treats remote searches exactly
// like local subprocess runs.
//
// Reference: https://ncbi.github.io/blast-cloud/dev/api.html
package ncbi

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/blast-search-server/internal/domain"
)

const (
	// DefaultBaseURL is the public QBlast endpoint.
	DefaultBaseURL = "https://blast.ncbi.nlm.nih.gov/Blast.cgi"

	userAgent = "blast-search-server/1.0"

	defaultTimeout      = 60 * time.Second
	defaultRateLimit    = 3
	defaultPollInterval = 5 * time.Second
	defaultMaxAttempts  = 60

	// maxErrorBody caps how much of a failure page is carried inside an
	// error. QBlast failures come back as full HTML documents.
	maxErrorBody = 2048
)

// Sleeper waits between poll attempts. The production implementation sleeps
// on the wall clock; tests substitute one that only counts calls.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return domain.ErrCancelled
	}
}

// Client talks to the NCBI BLAST URL API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	rateLimit    *rate.Limiter
	sleeper      Sleeper
	pollInterval time.Duration
	maxAttempts  int
	progress     func(stage domain.ProgressStage, detail string)
}

// Option configures optional client behavior.
type Option func(*Client)

// WithSleeper replaces the inter-poll delay implementation.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleeper = s }
}

// WithProgress installs a callback invoked as the remote cycle advances
// through submission, polling and download. The callback must not block.
// When unset, the client falls back to any observer carried by the request
// context.
func WithProgress(fn func(stage domain.ProgressStage, detail string)) Option {
	return func(c *Client) { c.progress = fn }
}

// NewClient creates an NCBI BLAST client from configuration, filling unset
// fields with the documented service defaults.
func NewClient(config domain.NCBIConfig, opts ...Option) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RateLimit == 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.PollInterval == 0 {
		config.PollInterval = defaultPollInterval
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = defaultMaxAttempts
	}

	c := &Client{
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		sleeper:      realSleeper{},
		pollInterval: config.PollInterval,
		maxAttempts:  config.MaxAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) emit(ctx context.Context, stage domain.ProgressStage, detail string) {
	if c.progress != nil {
		c.progress(stage, detail)
		return
	}
	if obs := domain.ObserverFromContext(ctx); obs != nil {
		obs.OnProgress(stage, detail)
	}
}

// SubmitResult holds the identifiers returned by a CMD=Put request.
// EstimatedWait is the RTOE hint from the service and is advisory only; the
// poll loop does not honor it.
type SubmitResult struct {
	RequestID     string
	EstimatedWait time.Duration
}

// Submit posts the query and returns the request ID to poll. A response
// without a request ID is a submission failure and the body is preserved on
// the error for diagnosis.
func (c *Client) Submit(ctx context.Context, req *domain.SearchRequest, query domain.SequenceQuery, database string) (*SubmitResult, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	params := url.Values{}
	params.Set("CMD", "Put")
	params.Set("PROGRAM", string(req.BlastType))
	params.Set("DATABASE", database)
	params.Set("QUERY", query.Sequence)
	params.Set("EXPECT", strconv.FormatFloat(req.EvalueThreshold, 'g', -1, 64))
	params.Set("HITLIST_SIZE", strconv.Itoa(req.MaxTargets))
	if req.WordSize > 0 {
		params.Set("WORD_SIZE", strconv.Itoa(req.WordSize))
	}
	if req.Matrix != "" {
		params.Set("MATRIX_NAME", req.Matrix)
	}
	if req.GapOpen > 0 && req.GapExtend > 0 {
		params.Set("GAPCOSTS", fmt.Sprintf("%d %d", req.GapOpen, req.GapExtend))
	}
	if req.LowComplexityFilter {
		params.Set("FILTER", "L")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, &domain.RemoteSubmissionError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.RemoteSubmissionError{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.RemoteSubmissionError{Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.RemoteSubmissionError{
			Body: errorBody(body),
			Err:  fmt.Errorf("submit returned status %d", resp.StatusCode),
		}
	}

	rid, rtoe := parseQBlastInfo(body)
	if rid == "" {
		return nil, &domain.RemoteSubmissionError{Body: errorBody(body)}
	}

	c.emit(ctx, domain.StageSubmitted, "request "+rid)
	return &SubmitResult{RequestID: rid, EstimatedWait: rtoe}, nil
}

// Poll fetches the current status of a submitted request.
func (c *Client) Poll(ctx context.Context, requestID string) (domain.RemoteJobStatus, error) {
	params := url.Values{}
	params.Set("CMD", "Get")
	params.Set("FORMAT_OBJECT", "SearchInfo")
	params.Set("RID", requestID)

	body, err := c.get(ctx, params)
	if err != nil {
		return domain.JobUnknown, fmt.Errorf("poll failed for %s: %w", requestID, err)
	}
	return parseStatus(body), nil
}

// WaitReady polls until the request is READY. A FAILED or UNKNOWN status ends
// the loop immediately since neither is transient. The attempt budget bounds
// the loop; cancellation is honored at the sleep points between polls.
func (c *Client) WaitReady(ctx context.Context, requestID string) error {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		status, err := c.Poll(ctx, requestID)
		if err != nil {
			return err
		}
		switch status {
		case domain.JobReady:
			return nil
		case domain.JobFailed, domain.JobUnknown:
			return &domain.RemoteJobFailedError{RequestID: requestID, Status: status}
		}

		if attempt == c.maxAttempts {
			break
		}
		c.emit(ctx, domain.StagePolling, fmt.Sprintf("attempt %d/%d", attempt, c.maxAttempts))
		if err := c.sleeper.Sleep(ctx, c.pollInterval); err != nil {
			return err
		}
	}
	return &domain.RemoteTimeoutError{RequestID: requestID, Attempts: c.maxAttempts}
}

// Retrieve downloads the finished report. The XML document is the parse
// input; the plain-text rendering is fetched as an audit copy and its
// failure does not fail the search.
func (c *Client) Retrieve(ctx context.Context, requestID string) (*domain.RawOutput, error) {
	c.emit(ctx, domain.StageDownloading, "request "+requestID)

	xmlData, err := c.fetchReport(ctx, requestID, "XML")
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve results for %s: %w", requestID, err)
	}

	out := &domain.RawOutput{Data: xmlData, Format: domain.FormatXML}
	if text, err := c.fetchReport(ctx, requestID, "Text"); err == nil {
		out.AuditText = text
	}
	return out, nil
}

// Execute runs the full submit, poll, retrieve cycle. It implements
// domain.ExecutionBackend; database is the NCBI database name (nt, nr, ...)
// passed through from the request.
func (c *Client) Execute(ctx context.Context, req *domain.SearchRequest, query domain.SequenceQuery, database string) (*domain.RawOutput, error) {
	sub, err := c.Submit(ctx, req, query, database)
	if err != nil {
		return nil, err
	}
	if err := c.WaitReady(ctx, sub.RequestID); err != nil {
		return nil, err
	}
	return c.Retrieve(ctx, sub.RequestID)
}

func (c *Client) fetchReport(ctx context.Context, requestID, formatType string) ([]byte, error) {
	params := url.Values{}
	params.Set("CMD", "Get")
	params.Set("FORMAT_TYPE", formatType)
	params.Set("RID", requestID)
	return c.get(ctx, params)
}

func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("service returned status %d: %s", resp.StatusCode, errorBody(body))
	}
	return body, nil
}

// parseQBlastInfo extracts the RID and RTOE values from the QBlastInfo
// comment block embedded in the submit response page:
//
//	<!--QBlastInfoBegin
//	    RID = ABC123XYZ
//	    RTOE = 25
//	QBlastInfoEnd
//	-->
func parseQBlastInfo(body []byte) (rid string, rtoe time.Duration) {
	sc := bufio.NewScanner(bytes.NewReader(body))
	inBlock := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.Contains(line, "QBlastInfoBegin"):
			inBlock = true
		case strings.Contains(line, "QBlastInfoEnd"):
			inBlock = false
		case inBlock:
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			switch strings.TrimSpace(key) {
			case "RID":
				rid = strings.TrimSpace(value)
			case "RTOE":
				if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
					rtoe = time.Duration(secs) * time.Second
				}
			}
		}
	}
	return rid, rtoe
}

// parseStatus finds the Status marker in a SearchInfo response. A response
// with no recognizable marker is treated as UNKNOWN, same as the service
// reporting a lost job.
func parseStatus(body []byte) domain.RemoteJobStatus {
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		value, found := strings.CutPrefix(line, "Status=")
		if !found {
			continue
		}
		switch strings.TrimSpace(value) {
		case "WAITING":
			return domain.JobWaiting
		case "READY":
			return domain.JobReady
		case "FAILED":
			return domain.JobFailed
		default:
			return domain.JobUnknown
		}
	}
	return domain.JobUnknown
}

func errorBody(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody])
	}
	return string(body)
}

var _ domain.ExecutionBackend = (*Client)(nil)
