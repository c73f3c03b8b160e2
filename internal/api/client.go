package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// StatusError is a non-2xx daemon response.
type StatusError struct {
	Code    int
	Message string
	JobID   string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.Code)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Client talks to the daemon HTTP API.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	dialer *websocket.Dialer
}

// BaseURL turns an api_bind address into an http URL.
func BaseURL(bind string) string {
	bind = strings.TrimSpace(bind)
	if strings.HasPrefix(bind, "http://") || strings.HasPrefix(bind, "https://") {
		return strings.TrimRight(bind, "/")
	}
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	return "http://" + bind
}

// NewClient returns a client for baseURL. token may be empty.
func NewClient(baseURL, token string) (*Client, error) {
	base, err := url.Parse(BaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse daemon url: %w", err)
	}
	return &Client{
		base:   base,
		token:  strings.TrimSpace(token),
		http:   &http.Client{Timeout: 30 * time.Second},
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

// Submit enqueues a brief. A duplicate correlation id is not an error: the
// response names the job that owns it.
func (c *Client) Submit(ctx context.Context, brief Brief) (SubmitResponse, error) {
	var resp SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs", nil, brief, &resp)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusConflict && se.JobID != "" {
		return SubmitResponse{JobID: se.JobID, Duplicate: true}, nil
	}
	return resp, err
}

// List returns jobs, optionally filtered by status.
func (c *Client) List(ctx context.Context, statuses ...string) ([]Job, error) {
	query := url.Values{}
	for _, s := range statuses {
		if s = strings.TrimSpace(s); s != "" {
			query.Add("status", s)
		}
	}
	var resp JobListResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Get returns one job.
func (c *Client) Get(ctx context.Context, id string) (Job, error) {
	var resp JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return Job{}, err
	}
	return resp.Job, nil
}

// Cancel requests cancellation of a job.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, nil, nil)
}

// Purge evicts a finished job.
func (c *Client) Purge(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(id), nil, nil, nil)
}

// Status returns daemon diagnostics.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var resp DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &resp)
	return resp, err
}

// Preview reports backend selection. An empty stage previews every stage.
func (c *Client) Preview(ctx context.Context, stage, tier string, offlineOnly bool) ([]Selection, error) {
	query := url.Values{}
	if stage != "" {
		query.Set("stage", stage)
	}
	if tier != "" {
		query.Set("tier", tier)
	}
	if offlineOnly {
		query.Set("offline", "true")
	}
	var resp PreviewResponse
	if err := c.do(ctx, http.MethodGet, "/api/providers/preview", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Selections, nil
}

// Logs fetches daemon log events after since. With follow set the call waits
// for new events.
func (c *Client) Logs(ctx context.Context, since uint64, limit int, jobID string, follow bool) (LogStreamResponse, error) {
	query := url.Values{}
	query.Set("since", strconv.FormatUint(since, 10))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if jobID != "" {
		query.Set("job", jobID)
	}
	if follow {
		query.Set("follow", "1")
	}
	var resp LogStreamResponse
	err := c.do(ctx, http.MethodGet, "/api/logs", query, nil, &resp)
	return resp, err
}

// Watch streams job events over the websocket feed until a terminal event
// arrives, fn returns an error, or ctx is done.
func (c *Client) Watch(ctx context.Context, id string, fn func(Event) error) error {
	target := *c.base
	switch target.Scheme {
	case "https":
		target.Scheme = "wss"
	default:
		target.Scheme = "ws"
	}
	target.Path = "/api/jobs/" + url.PathEscape(id) + "/events"

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return decodeStatusError(resp)
		}
		return fmt.Errorf("dial event feed: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var evt Event
		if err := conn.ReadJSON(&evt); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		if err := fn(evt); err != nil {
			return err
		}
		if evt.Terminal {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return nil
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := *c.base
	target.Path = path
	target.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeStatusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeStatusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	se := &StatusError{Code: resp.StatusCode}
	var payload ErrorResponse
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		se.Message = payload.Error
		se.JobID = payload.JobID
	} else {
		se.Message = strings.TrimSpace(string(data))
	}
	return se
}
