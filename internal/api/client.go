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

	"subforge/internal/services"
)

// Client talks to a running daemon.
type Client struct {
	base string
	http *http.Client
}

// NewClient targets the daemon listening on bind ("host:port" or a URL).
func NewClient(bind string, httpClient *http.Client) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: longPollTimeout + 5*time.Second}
	}
	return &Client{base: base, http: httpClient}
}

// Health checks that the daemon is reachable.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", nil, &resp)
	return resp, err
}

// Submit sends a batch and returns its identifiers.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	var resp SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/batches", req, &resp)
	return resp, err
}

// Cancel requests cancellation of a queued or running task.
func (c *Client) Cancel(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/cancel", nil, nil)
}

// Events long-polls the daemon event hub.
func (c *Client) Events(ctx context.Context, since uint64, taskID string, wait bool) (EventsResponse, error) {
	query := url.Values{}
	query.Set("since", strconv.FormatUint(since, 10))
	if taskID != "" {
		query.Set("task", taskID)
	}
	if wait {
		query.Set("wait", "1")
	}
	var resp EventsResponse
	err := c.do(ctx, http.MethodGet, "/api/events?"+query.Encode(), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "", "daemon request", c.base, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return services.Canceled("", ctxErr)
		}
		return services.TransportError("", "daemon request", err)
	}
	defer resp.Body.Close()

	data, err := services.CheckResponse("subforge daemon", "", method+" "+path, resp)
	if err != nil {
		var apiErr *services.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case http.StatusNotFound:
				return services.Wrap(services.ErrNotFound, "", "daemon request", apiErr.Message, nil)
			case http.StatusBadRequest:
				return services.Wrap(services.ErrValidation, "", "daemon request", apiErr.Message, nil)
			}
		}
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return services.Wrap(services.ErrAPI, "", "decode daemon response", path, err)
	}
	return nil
}
