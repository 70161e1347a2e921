package stage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/httpx"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/logger"
)

// Result carries one stage invocation's decoded output plus the metrics the
// ledger wants regardless of outcome.
type Result struct {
	Output   map[string]any
	Attempts int
	Latency  time.Duration
}

// Invoker is the orchestrator's view of a stage call. Retries happen below
// this interface and surface only as added latency and an attempt count.
type Invoker interface {
	Invoke(ctx context.Context, stageName string, input map[string]any) (Result, error)
}

type Client struct {
	log         *logger.Logger
	registry    Registry
	environment string
	httpClient  *http.Client

	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func NewClient(log *logger.Logger, registry Registry, environment string) *Client {
	return &Client{
		log:         log.With("service", "StageClient"),
		registry:    registry,
		environment: environment,
		httpClient:  &http.Client{},
		maxAttempts: 5,
		baseBackoff: 1 * time.Second,
		maxBackoff:  10 * time.Second,
	}
}

type stageHTTPError struct {
	Stage      string
	StatusCode int
	Body       string
}

func (e *stageHTTPError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Sprintf("stage %s returned HTTP %d: %s", e.Stage, e.StatusCode, body)
}

func (e *stageHTTPError) HTTPStatusCode() int { return e.StatusCode }

func (c *Client) Invoke(ctx context.Context, stageName string, input map[string]any) (Result, error) {
	res := Result{}
	ep, ok := c.registry.Endpoint(stageName)
	if !ok {
		return res, fmt.Errorf("no endpoint configured for stage %q", stageName)
	}

	payload, err := json.Marshal(map[string]any{
		"input":       input,
		"environment": c.environment,
	})
	if err != nil {
		return res, fmt.Errorf("encode %s request: %w", stageName, err)
	}

	start := time.Now()
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		res.Attempts = attempt
		if err := ctx.Err(); err != nil {
			res.Latency = time.Since(start)
			return res, err
		}

		resp, out, callErr := c.doOnce(ctx, stageName, ep, payload)
		if callErr == nil {
			res.Output = out
			res.Latency = time.Since(start)
			return res, nil
		}
		lastErr = callErr

		if httpx.IsClientError(callErr) || !httpx.IsRetryableError(callErr) {
			break
		}
		if attempt == c.maxAttempts {
			break
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, c.maxBackoff))
		c.log.Warn("stage call retrying",
			"stage", stageName,
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"sleep", sleepFor.String(),
			"error", callErr.Error(),
		)
		select {
		case <-time.After(sleepFor):
		case <-ctx.Done():
			res.Latency = time.Since(start)
			return res, ctx.Err()
		}
		backoff *= 2
	}

	res.Latency = time.Since(start)
	return res, lastErr
}

func (c *Client) doOnce(ctx context.Context, stageName string, ep Endpoint, payload []byte) (*http.Response, map[string]any, error) {
	callCtx, cancel := context.WithTimeout(ctx, ep.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(ep.AuthToken) != "" {
		req.Header.Set("Authorization", "Bearer "+ep.AuthToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil, &stageHTTPError{Stage: stageName, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return resp, nil, fmt.Errorf("decode %s response: %w", stageName, err)
	}
	// Stage-reported failures arrive as 200s with a top-level error field.
	if msg, ok := out["error"]; ok && msg != nil {
		return resp, nil, fmt.Errorf("stage %s reported error: %v", stageName, msg)
	}
	return resp, out, nil
}
