package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentforge/pipeline/pkg/config"
	"github.com/agentforge/pipeline/pkg/ratelimit"
	"github.com/agentforge/pipeline/pkg/taskspec"
	"github.com/agentforge/pipeline/pkg/taxonomy"
	"github.com/stretchr/testify/require"
)

func testConfig(endpoint string) config.LLMConfig {
	return config.LLMConfig{
		Endpoint:            endpoint,
		Model:               "test-model",
		APIKey:              "k",
		RequestTimeout:      config.Duration(2 * time.Second),
		MaxRateLimitRetries: 3,
		RateLimitBaseDelays: []config.Duration{
			config.Duration(time.Millisecond),
			config.Duration(2 * time.Millisecond),
			config.Duration(4 * time.Millisecond),
		},
		ServerErrorDelay: config.Duration(time.Millisecond),
		JitterFraction:   0.01,
		MinBackoff:       config.Duration(time.Millisecond),
		ErrorRateWindow:  config.Duration(time.Minute),
		ErrorRateLimit:   5,
		MaxTokens:        100,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	bucket := ratelimit.NewBucket(1000, time.Second, 1000)
	return NewClient(testConfig(srv.URL), bucket, nil), srv
}

func TestChatSucceedsFirstTry(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{Content: "hello"})
	})

	resp, err := client.Chat(context.Background(), taskspec.AgentCoder, []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	require.Equal(t, "hello", resp.Content)
}

func TestChatRetriesOn429ThenSucceeds(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(chatResponse{Content: "ok"})
	})

	resp, err := client.Chat(context.Background(), taskspec.AgentCoder, nil)
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content)
	require.Equal(t, int32(2), calls)
}

func TestChatGivesUpAfterRateLimitBudgetExhausted(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Chat(context.Background(), taskspec.AgentCoder, nil)
	require.Error(t, err)
	var apiErr *taxonomy.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Equal(t, int32(4), calls) // initial + 3 configured retries
}

func TestChatRetriesServerErrorOnceThenFails(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Chat(context.Background(), taskspec.AgentCoder, nil)
	require.Error(t, err)
	require.Equal(t, int32(2), calls) // initial + exactly one retry
}

func TestChatDoesNotRetryNonTransientStatus(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.Chat(context.Background(), taskspec.AgentCoder, nil)
	require.Error(t, err)
	require.False(t, taxonomy.IsTransient(err))
	require.Equal(t, int32(1), calls)
}

func TestErrorRateBreakerTripsOnRepeatedServerErrors(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	client.breaker.limit = 2

	_, err := client.Chat(context.Background(), taskspec.AgentCoder, nil)
	require.Error(t, err)

	_, err = client.Chat(context.Background(), taskspec.AgentCoder, nil)
	require.Error(t, err)
	var breakerErr *taxonomy.CircuitBreakerError
	require.ErrorAs(t, err, &breakerErr)
	require.Equal(t, taxonomy.BreakerErrorRate, breakerErr.Kind)
}

func TestErrorRateBreakerIgnoresRateLimitFailures(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	client.breaker.limit = 1

	_, err := client.Chat(context.Background(), taskspec.AgentCoder, nil)
	require.Error(t, err)
	var breakerErr *taxonomy.CircuitBreakerError
	require.False(t, errors.As(err, &breakerErr))
}
