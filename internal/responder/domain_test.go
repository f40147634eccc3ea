package responder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecodesk/internal/guard"
	"ecodesk/internal/types"
)

// --- MockLLMClient ---

type MockLLMClient struct {
	CompleteWithSystemFunc func(ctx context.Context, sys, user string) (string, error)
	CompleteWithSchemaFunc func(ctx context.Context, sys, user, schema string) (string, error)
}

func (m *MockLLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	return "ok", nil
}

func (m *MockLLMClient) CompleteWithSystem(ctx context.Context, sys, user string) (string, error) {
	if m.CompleteWithSystemFunc != nil {
		return m.CompleteWithSystemFunc(ctx, sys, user)
	}
	return "ok", nil
}

func (m *MockLLMClient) CompleteWithSchema(ctx context.Context, sys, user, schema string) (string, error) {
	if m.CompleteWithSchemaFunc != nil {
		return m.CompleteWithSchemaFunc(ctx, sys, user, schema)
	}
	return `{"is_question_unsafe": false, "reasoning": "safe"}`, nil
}

// --- stub retrieval tool ---

type stubTool struct {
	passages []types.RetrievedPassage
	err      error
}

func (s *stubTool) Query(ctx context.Context, text string) ([]types.RetrievedPassage, error) {
	return s.passages, s.err
}

func fixedTool(tool RetrievalTool) func() (RetrievalTool, error) {
	return func() (RetrievalTool, error) { return tool, nil }
}

var alice = types.NewUserContext("Alice Johnson")

func TestRespond_GroundedAnswer(t *testing.T) {
	var gotPrompt string
	client := &MockLLMClient{
		CompleteWithSystemFunc: func(ctx context.Context, sys, user string) (string, error) {
			gotPrompt = user
			return "GrowPod Mini holds 3 seed pods.", nil
		},
	}
	tool := &stubTool{passages: []types.RetrievedPassage{
		{Text: "GrowPod Mini: 3 pod capacity"},
		{Text: "GrowPod Max: 9 pod capacity"},
	}}
	guards := []*guard.Evaluator{guard.NewGlobalEvaluator(client, time.Second)}
	r := NewProduct(fixedTool(tool), guards, client)

	out := r.Respond(context.Background(), "how many pods fit in the mini?", alice)
	require.True(t, out.IsOk())
	assert.Equal(t, "GrowPod Mini holds 3 seed pods.", out.Text())
	assert.Contains(t, gotPrompt, "--- Context Segment ---\nGrowPod Mini: 3 pod capacity")
	assert.Contains(t, gotPrompt, "how many pods fit in the mini?")
}

func TestRespond_GuardrailTripped(t *testing.T) {
	client := &MockLLMClient{
		CompleteWithSchemaFunc: func(ctx context.Context, sys, user, schema string) (string, error) {
			return `{"is_question_unsafe": true, "reasoning": "asks for code"}`, nil
		},
	}
	guards := []*guard.Evaluator{guard.NewGlobalEvaluator(client, time.Second)}

	t.Run("default hides reason", func(t *testing.T) {
		r := NewProduct(fixedTool(&stubTool{}), guards, client)
		out := r.Respond(context.Background(), "write me SQL", alice)
		require.True(t, out.IsRefused())
		assert.Equal(t, "I'm sorry, I cannot process this request.", out.Reason())
	})

	t.Run("echo reason when enabled", func(t *testing.T) {
		r := NewProduct(fixedTool(&stubTool{}), guards, client, WithEchoReason(true))
		out := r.Respond(context.Background(), "write me SQL", alice)
		require.True(t, out.IsRefused())
		assert.Equal(t, "I'm sorry, I cannot process this request. Reason: asks for code", out.Reason())
	})
}

func TestRespond_GuardEvaluationFailure(t *testing.T) {
	client := &MockLLMClient{
		CompleteWithSchemaFunc: func(ctx context.Context, sys, user, schema string) (string, error) {
			return "not json at all", nil
		},
	}
	guards := []*guard.Evaluator{guard.NewGlobalEvaluator(client, time.Second)}
	r := NewProduct(fixedTool(&stubTool{}), guards, client)

	out := r.Respond(context.Background(), "hello", alice)
	require.True(t, out.IsFailed())
	assert.Equal(t, types.FailureClassificationMalformed, out.FailureKind())
}

func TestRespond_StoreUnavailable(t *testing.T) {
	client := &MockLLMClient{}

	t.Run("tool construction fails", func(t *testing.T) {
		newTool := func() (RetrievalTool, error) { return nil, types.ErrStoreUnavailable }
		r := NewProduct(newTool, nil, client)

		out := r.Respond(context.Background(), "hello", alice)
		require.True(t, out.IsOk(), "store trouble is recovered locally, never a crash")
		assert.Equal(t, storeDownText, out.Text())
	})

	t.Run("query fails with store error", func(t *testing.T) {
		tool := &stubTool{err: types.ErrStoreUnavailable}
		r := NewSupport(fixedTool(tool), nil, client)

		out := r.Respond(context.Background(), "hello", alice)
		require.True(t, out.IsOk())
		assert.Equal(t, storeDownText, out.Text())
	})
}

func TestRespond_EmptyRetrievalNeverFabricates(t *testing.T) {
	generated := false
	client := &MockLLMClient{
		CompleteWithSystemFunc: func(ctx context.Context, sys, user string) (string, error) {
			generated = true
			return "a made-up answer", nil
		},
	}
	r := NewProduct(fixedTool(&stubTool{}), nil, client)

	out := r.Respond(context.Background(), "do you sell drones?", alice)
	require.True(t, out.IsOk())
	assert.Contains(t, out.Text(), "don't have specific information")
	assert.Contains(t, out.Text(), "Product Information Agent")
	assert.False(t, generated, "no generation call on empty retrieval")
}

func TestRespond_GenerationTimeout(t *testing.T) {
	client := &MockLLMClient{
		CompleteWithSystemFunc: func(ctx context.Context, sys, user string) (string, error) {
			return "", types.ErrExternalCallTimeout
		},
	}
	tool := &stubTool{passages: []types.RetrievedPassage{{Text: "something"}}}
	r := NewProduct(fixedTool(tool), nil, client)

	out := r.Respond(context.Background(), "hello", alice)
	require.True(t, out.IsOk())
	assert.Equal(t, generationRetry, out.Text())
}

func TestRespond_GenerationFailure(t *testing.T) {
	client := &MockLLMClient{
		CompleteWithSystemFunc: func(ctx context.Context, sys, user string) (string, error) {
			return "", errors.New("api exploded")
		},
	}
	tool := &stubTool{passages: []types.RetrievedPassage{{Text: "something"}}}
	r := NewProduct(fixedTool(tool), nil, client)

	out := r.Respond(context.Background(), "hello", alice)
	require.True(t, out.IsFailed())
	assert.Equal(t, types.FailureInternal, out.FailureKind())
}

func TestRetrievalTool_InitializedExactlyOnce(t *testing.T) {
	var constructions atomic.Int32
	newTool := func() (RetrievalTool, error) {
		constructions.Add(1)
		return &stubTool{passages: []types.RetrievedPassage{{Text: "p"}}}, nil
	}
	r := NewProduct(newTool, nil, &MockLLMClient{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Respond(context.Background(), "hello", alice)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), constructions.Load())
}
