// Package runner adapts the external automation job runner's HTTP API to the
// integration domain's ExecutionEngine port. Submissions carry the execution
// id as an idempotency key so a retried or duplicated submit resolves to the
// same remote run.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/cluster-armada/internal/domain/integration"
	"github.com/ahrav/cluster-armada/pkg/common/logger"
)

// Config holds the connection settings for the job runner.
type Config struct {
	// BaseURL is the runner API root, e.g. "https://runner.internal".
	BaseURL string

	// Token authenticates requests to the runner.
	Token string

	// PollInterval is the delay between result checks while awaiting a job.
	PollInterval time.Duration

	// SubmitRetryMaxElapsed bounds retries of transient submit failures.
	SubmitRetryMaxElapsed time.Duration
}

var _ integration.ExecutionEngine = (*Client)(nil)

// Client implements integration.ExecutionEngine against the runner's HTTP API.
type Client struct {
	cfg       Config
	playbooks map[integration.JobType]string
	httpc     *http.Client

	logger *logger.Logger
	tracer trace.Tracer
}

// NewClient creates a runner client. The playbooks catalog maps each job type
// to the playbook the runner should execute for it.
func NewClient(cfg Config, playbooks map[integration.JobType]string, log *logger.Logger, tracer trace.Tracer) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.SubmitRetryMaxElapsed <= 0 {
		cfg.SubmitRetryMaxElapsed = 30 * time.Second
	}
	return &Client{
		cfg:       cfg,
		playbooks: playbooks,
		httpc: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: log.With("component", "runner_client"),
		tracer: tracer,
	}
}

type submitRequest struct {
	Playbook       string            `json:"playbook"`
	ExtraVars      map[string]string `json:"extra_vars"`
	IdempotencyKey string            `json:"idempotency_key"`
}

type submitResponse struct {
	RunID string `json:"run_id"`
}

type runStatusResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// Submit hands a job to the runner. Transient failures are retried with
// exponential backoff; 4xx responses are permanent. All failures are wrapped
// in *integration.AdapterError so callers can distinguish a rejected submit
// from an unknown outcome.
func (c *Client) Submit(ctx context.Context, jobType integration.JobType, vars map[string]string) (integration.JobHandle, error) {
	ctx, span := c.tracer.Start(ctx, "runner.submit", trace.WithAttributes(
		attribute.String("job_type", jobType.String()),
	))
	defer span.End()

	playbook, ok := c.playbooks[jobType]
	if !ok {
		err := &integration.AdapterError{Op: "submit", Err: fmt.Errorf("no playbook mapped for job type %s", jobType)}
		span.RecordError(err)
		span.SetStatus(codes.Error, "unmapped job type")
		return integration.JobHandle{}, err
	}

	body, err := json.Marshal(submitRequest{
		Playbook:       playbook,
		ExtraVars:      vars,
		IdempotencyKey: vars[integration.VarExecutionID],
	})
	if err != nil {
		return integration.JobHandle{}, &integration.AdapterError{Op: "submit", Err: err}
	}

	var resp submitResponse

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v1/jobs", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

		httpResp, err := c.httpc.Do(req)
		if err != nil {
			return err
		}
		defer httpResp.Body.Close()

		switch {
		case httpResp.StatusCode >= 200 && httpResp.StatusCode < 300:
			if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
				return backoff.Permanent(fmt.Errorf("decoding submit response: %w", err))
			}
			return nil
		case httpResp.StatusCode >= 500:
			return fmt.Errorf("runner returned %d", httpResp.StatusCode)
		default:
			msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1024))
			return backoff.Permanent(fmt.Errorf("runner rejected submission (%d): %s", httpResp.StatusCode, msg))
		}
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond
	expBackoff.MaxElapsedTime = c.cfg.SubmitRetryMaxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		adapterErr := &integration.AdapterError{Op: "submit", Err: err}
		span.RecordError(adapterErr)
		span.SetStatus(codes.Error, "submit failed")
		return integration.JobHandle{}, adapterErr
	}

	executionID, _ := strconv.ParseInt(vars[integration.VarExecutionID], 10, 64)
	handle := integration.JobHandle{ExecutionID: executionID, RunID: resp.RunID}

	span.AddEvent("job_submitted", trace.WithAttributes(attribute.String("run_id", handle.RunID)))
	c.logger.Debug(ctx, "job submitted", "job_type", jobType.String(), "run_id", handle.RunID)
	return handle, nil
}

// AwaitResult polls the runner until the job reaches a terminal state or the
// timeout elapses. Expiry yields an OutcomeTimeout outcome, never an error;
// the remote job keeps running and must be reconciled by polling later.
func (c *Client) AwaitResult(ctx context.Context, handle integration.JobHandle, timeout time.Duration) (integration.JobOutcome, error) {
	ctx, span := c.tracer.Start(ctx, "runner.await_result", trace.WithAttributes(
		attribute.String("run_id", handle.RunID),
		attribute.String("timeout", timeout.String()),
	))
	defer span.End()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return integration.JobOutcome{}, ctx.Err()
		case <-deadline.C:
			span.AddEvent("await_deadline_expired")
			return integration.JobOutcome{
				Status: integration.OutcomeTimeout,
				Detail: fmt.Sprintf("no terminal result within %s", timeout),
			}, nil
		case <-ticker.C:
			outcome, err := c.Poll(ctx, handle)
			if err != nil {
				// A failed poll is indistinguishable from a slow runner;
				// keep waiting until the deadline decides.
				c.logger.Debug(ctx, "result poll failed, will retry", "run_id", handle.RunID, "err", err)
				continue
			}
			if outcome.Status != integration.OutcomeTimeout {
				return outcome, nil
			}
		}
	}
}

// Poll performs a single result check. A job that is still running yields an
// OutcomeTimeout outcome. Poll never causes a new submission.
func (c *Client) Poll(ctx context.Context, handle integration.JobHandle) (integration.JobOutcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/v1/jobs/"+handle.RunID, nil)
	if err != nil {
		return integration.JobOutcome{}, &integration.AdapterError{Op: "poll", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	httpResp, err := c.httpc.Do(req)
	if err != nil {
		return integration.JobOutcome{}, &integration.AdapterError{Op: "poll", Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return integration.JobOutcome{}, &integration.AdapterError{
			Op:  "poll",
			Err: fmt.Errorf("runner returned %d for run %s", httpResp.StatusCode, handle.RunID),
		}
	}

	var status runStatusResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&status); err != nil {
		return integration.JobOutcome{}, &integration.AdapterError{Op: "poll", Err: err}
	}

	switch status.Status {
	case "successful":
		return integration.JobOutcome{Status: integration.OutcomeSuccess, Detail: status.Detail}, nil
	case "failed", "error", "canceled":
		return integration.JobOutcome{Status: integration.OutcomeFailure, Detail: status.Detail}, nil
	default:
		// pending, waiting, running: no terminal result yet.
		return integration.JobOutcome{Status: integration.OutcomeTimeout, Detail: "job still running"}, nil
	}
}
