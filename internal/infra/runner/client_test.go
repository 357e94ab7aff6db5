package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/cluster-armada/internal/domain/integration"
	"github.com/ahrav/cluster-armada/pkg/common/logger"
)

var testPlaybooks = map[integration.JobType]string{
	integration.JobTypeCreate:               "create_cluster.yml",
	integration.JobTypeUpdateServiceAccount: "update_service_account.yml",
	integration.JobTypeValidate:             "validate_cluster.yml",
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(
		Config{
			BaseURL:               baseURL,
			Token:                 "test-token",
			PollInterval:          10 * time.Millisecond,
			SubmitRetryMaxElapsed: 300 * time.Millisecond,
		},
		testPlaybooks,
		logger.Noop(),
		noop.NewTracerProvider().Tracer("test"),
	)
}

func TestClient_Submit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, http.MethodPost, req.Method)
		require.Equal(t, "/api/v1/jobs", req.URL.Path)
		require.Equal(t, "Bearer test-token", req.Header.Get("Authorization"))

		var body submitRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "create_cluster.yml", body.Playbook)
		assert.Equal(t, "42", body.IdempotencyKey)
		assert.Equal(t, "prod-east", body.ExtraVars[integration.VarClusterName])

		fmt.Fprint(w, `{"run_id":"run-7"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	handle, err := client.Submit(context.Background(), integration.JobTypeCreate, map[string]string{
		integration.VarExecutionID: "42",
		integration.VarClusterName: "prod-east",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(42), handle.ExecutionID)
	assert.Equal(t, "run-7", handle.RunID)
}

func TestClient_Submit_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"run_id":"run-7"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	handle, err := client.Submit(context.Background(), integration.JobTypeCreate, map[string]string{
		integration.VarExecutionID: "42",
	})
	require.NoError(t, err)
	assert.Equal(t, "run-7", handle.RunID)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestClient_Submit_RejectionIsPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error":"unknown playbook"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Submit(context.Background(), integration.JobTypeCreate, map[string]string{
		integration.VarExecutionID: "42",
	})

	var adapterErr *integration.AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, "submit", adapterErr.Op)
	assert.Equal(t, int32(1), calls.Load(), "4xx responses should not be retried")
}

func TestClient_Submit_UnmappedJobType(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, "http://unused")
	_, err := client.Submit(context.Background(), integration.JobTypeUnspecified, map[string]string{
		integration.VarExecutionID: "42",
	})

	var adapterErr *integration.AdapterError
	assert.ErrorAs(t, err, &adapterErr)
}

func TestClient_AwaitResult_Success(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "/api/v1/jobs/run-7", req.URL.Path)
		if polls.Add(1) < 3 {
			fmt.Fprint(w, `{"run_id":"run-7","status":"running"}`)
			return
		}
		fmt.Fprint(w, `{"run_id":"run-7","status":"successful","detail":"playbook finished"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	outcome, err := client.AwaitResult(context.Background(), integration.JobHandle{ExecutionID: 42, RunID: "run-7"}, time.Second)
	require.NoError(t, err)

	assert.Equal(t, integration.OutcomeSuccess, outcome.Status)
	assert.Equal(t, "playbook finished", outcome.Detail)
}

func TestClient_AwaitResult_Failure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"run_id":"run-7","status":"failed","detail":"task errored"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	outcome, err := client.AwaitResult(context.Background(), integration.JobHandle{RunID: "run-7"}, time.Second)
	require.NoError(t, err)

	assert.Equal(t, integration.OutcomeFailure, outcome.Status)
	assert.Equal(t, "task errored", outcome.Detail)
}

func TestClient_AwaitResult_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"run_id":"run-7","status":"running"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	outcome, err := client.AwaitResult(context.Background(), integration.JobHandle{RunID: "run-7"}, 50*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, integration.OutcomeTimeout, outcome.Status)
}

func TestClient_Poll_StillRunning(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"run_id":"run-7","status":"pending"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	outcome, err := client.Poll(context.Background(), integration.JobHandle{RunID: "run-7"})
	require.NoError(t, err)

	assert.Equal(t, integration.OutcomeTimeout, outcome.Status)
}

func TestClient_Poll_RunnerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Poll(context.Background(), integration.JobHandle{RunID: "run-7"})

	var adapterErr *integration.AdapterError
	assert.ErrorAs(t, err, &adapterErr)
}
