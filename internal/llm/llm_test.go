// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/deep-researcher/internal/httputil"
	"github.com/pdiddy/deep-researcher/pkg/types"
)

func TestMain(m *testing.M) {
	httputil.RetryBaseDelay = time.Millisecond
	os.Exit(m.Run())
}

type scoreDoc struct {
	Score int `json:"score"`
}

func (d *scoreDoc) Validate() error {
	if d.Score < 0 || d.Score > 10 {
		return errors.New("score out of range")
	}
	return nil
}

type stubClient struct {
	text string
	err  error
	got  Request
}

func (s *stubClient) Complete(_ context.Context, req Request) (string, error) {
	s.got = req
	return s.text, s.err
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"bare array", `[1,2]`, `[1,2]`},
		{"prose around object", "Here you go:\n{\"a\":1}\nThanks.", `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"think block first", "<think>maybe {\"b\":2}</think>\n{\"a\":1}", `{"a":1}`},
		{"no json", "no structured output here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestStripThinking(t *testing.T) {
	in := "<think>\nplanning the answer\n</think>\n\n# Title\nBody <think>more</think>text"
	assert.Equal(t, "# Title\nBody text", StripThinking(in))
}

func TestCompleteJSON(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		c := &stubClient{text: `{"score": 7}`}
		var doc scoreDoc
		require.NoError(t, CompleteJSON(context.Background(), c, "rate it", &doc))
		assert.Equal(t, 7, doc.Score)
		assert.Equal(t, Structured, c.got.Format)
	})

	t.Run("invalid json is malformed", func(t *testing.T) {
		c := &stubClient{text: `{"score": seven}`}
		var doc scoreDoc
		err := CompleteJSON(context.Background(), c, "rate it", &doc)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("validation failure is malformed", func(t *testing.T) {
		c := &stubClient{text: `{"score": 42}`}
		var doc scoreDoc
		err := CompleteJSON(context.Background(), c, "rate it", &doc)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("transport error passes through", func(t *testing.T) {
		c := &stubClient{err: ErrUnavailable}
		var doc scoreDoc
		err := CompleteJSON(context.Background(), c, "rate it", &doc)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.NotErrorIs(t, err, ErrMalformed)
	})
}

func TestStatusError(t *testing.T) {
	assert.ErrorIs(t, statusError("x", 429, nil), ErrUnavailable)
	assert.ErrorIs(t, statusError("x", 503, []byte("down")), ErrUnavailable)
	assert.NotErrorIs(t, statusError("x", 401, []byte("bad key")), ErrUnavailable)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, types.CompletionConfig{Provider: types.ProviderGroq})
	assert.Error(t, err, "missing API key")

	c, err := New(ctx, types.CompletionConfig{Provider: types.ProviderGroq, APIKey: "k"})
	require.NoError(t, err)
	groq, ok := c.(*OpenAI)
	require.True(t, ok)
	assert.Equal(t, GroqBaseURL, groq.BaseURL)
	assert.Equal(t, DefaultGroqModel, groq.Model)

	c, err = New(ctx, types.CompletionConfig{Provider: types.ProviderAnthropic, APIKey: "k", Model: "m"})
	require.NoError(t, err)
	claude, ok := c.(*Claude)
	require.True(t, ok)
	assert.Equal(t, "m", claude.Model)

	_, err = New(ctx, types.CompletionConfig{Provider: "bogus", APIKey: "k"})
	assert.Error(t, err)
}
