package agents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentforge/pipeline/pkg/config"
	"github.com/agentforge/pipeline/pkg/llm"
	"github.com/agentforge/pipeline/pkg/ratelimit"
	"github.com/agentforge/pipeline/pkg/taskspec"
)

func newTestClient(t *testing.T, content string) *llm.Client {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]interface{}{"content": content})
		w.Write(body)
	}))
	t.Cleanup(srv.Close)

	cfg := config.LLMConfig{
		Endpoint:            srv.URL,
		Model:               "test-model",
		APIKey:              "k",
		RequestTimeout:      config.Duration(2 * time.Second),
		MaxRateLimitRetries: 3,
		RateLimitBaseDelays: []config.Duration{config.Duration(time.Millisecond), config.Duration(time.Millisecond), config.Duration(time.Millisecond)},
		ServerErrorDelay:    config.Duration(time.Millisecond),
		JitterFraction:      0.01,
		MinBackoff:          config.Duration(time.Millisecond),
		ErrorRateWindow:     config.Duration(time.Minute),
		ErrorRateLimit:      5,
	}
	return llm.NewClient(cfg, ratelimit.NewBucket(1000, time.Second, 1000), nil)
}

func TestPlannerParsesStepArray(t *testing.T) {
	planJSON := `[{"step_number":1,"phase":"setup","file_path":"build.gradle","file_type":"build","dependencies":[],"description":"root build file"}]`
	client := newTestClient(t, planJSON)
	planner := NewPlanner(client)

	plan, _, err := planner.CreatePlan(context.Background(), taskspec.TaskSpec{AppName: "Demo"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	require.Equal(t, "build.gradle", plan.Steps[0].FilePath)
}

func TestPlannerFailsOnMalformedResponse(t *testing.T) {
	client := newTestClient(t, "not json")
	planner := NewPlanner(client)

	_, _, err := planner.CreatePlan(context.Background(), taskspec.TaskSpec{})
	require.Error(t, err)
}

func TestCoderTruncatesOversizedOutput(t *testing.T) {
	client := newTestClient(t, "0123456789")
	coder := NewCoder(client, 5, nil)

	content, _, err := coder.GenerateFile(context.Background(), taskspec.Step{FilePath: "a.kt"}, taskspec.TaskSpec{}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "01234", content)
}

func TestCriticParsesAcceptDecision(t *testing.T) {
	client := newTestClient(t, `{"decision":"ACCEPT","issues":[]}`)
	critic := NewCritic(client, nil)

	out, _, err := critic.ReviewFile(context.Background(), taskspec.Step{}, "code", taskspec.TaskSpec{})
	require.NoError(t, err)
	require.Equal(t, taskspec.CriticAccept, out.Decision)
}

func TestCriticFailsOpenOnMalformedResponse(t *testing.T) {
	client := newTestClient(t, "garbage")
	critic := NewCritic(client, nil)

	out, _, err := critic.ReviewFile(context.Background(), taskspec.Step{}, "code", taskspec.TaskSpec{})
	require.NoError(t, err)
	require.Equal(t, taskspec.CriticAccept, out.Decision)
	require.Empty(t, out.Issues)
}

func TestCriticFailsOpenOnUnrecognizedDecision(t *testing.T) {
	client := newTestClient(t, `{"decision":"MAYBE","issues":[]}`)
	critic := NewCritic(client, nil)

	out, _, err := critic.ReviewFile(context.Background(), taskspec.Step{}, "code", taskspec.TaskSpec{})
	require.NoError(t, err)
	require.Equal(t, taskspec.CriticAccept, out.Decision)
}

func TestVerifierDefaultsOnMalformedResponse(t *testing.T) {
	client := newTestClient(t, "garbage")
	verifier := NewVerifier(client, nil)

	out, _, err := verifier.VerifyProject(context.Background(), []string{"a.kt"}, taskspec.TaskSpec{})
	require.NoError(t, err)
	require.Equal(t, 0.5, out.QualityScore)
	require.Empty(t, out.Warnings)
	require.Empty(t, out.MissingItems)
}

func TestVerifierParsesWellFormedReport(t *testing.T) {
	client := newTestClient(t, `{"warnings":["w1"],"missing_items":[],"quality_score":0.9}`)
	verifier := NewVerifier(client, nil)

	out, _, err := verifier.VerifyProject(context.Background(), []string{"a.kt"}, taskspec.TaskSpec{})
	require.NoError(t, err)
	require.Equal(t, 0.9, out.QualityScore)
	require.Equal(t, []string{"w1"}, out.Warnings)
}
