// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/deep-researcher/internal/archive"
	"github.com/pdiddy/deep-researcher/internal/secrets"
	"github.com/pdiddy/deep-researcher/pkg/types"
)

func TestAPIKey_Precedence(t *testing.T) {
	t.Setenv("TAVILY_API_KEY", "from-env")
	t.Setenv("GROQ_API_KEY", "groq-env")

	saved := loadedSecrets
	t.Cleanup(func() { loadedSecrets = saved })
	loadedSecrets = secrets.Set{"tavily-api-key": "from-secrets"}

	assert.Equal(t, "explicit", apiKey("explicit", "tavily"))
	assert.Equal(t, "from-secrets", apiKey("", "tavily"))
	assert.Equal(t, "groq-env", apiKey("", "groq"))
	assert.Equal(t, "", apiKey("", "unknown"))
}

func TestFormatRunList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, formatRunList(&buf, nil, false))
	assert.Equal(t, "No archived runs.\n", buf.String())

	mean := 7.5
	runs := []archive.Summary{{
		ID:              "run-1",
		OriginalQuery:   "effects of remote work on productivity and employee wellbeing",
		ContentStyle:    types.StyleReport,
		Status:          types.StatusCompleted,
		Claims:          4,
		Verified:        3,
		MeanReliability: &mean,
		CreatedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}
	buf.Reset()
	require.NoError(t, formatRunList(&buf, runs, false))
	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "3/4")
	assert.Contains(t, out, "7.5/10")
	assert.Contains(t, out, "...")
	assert.Contains(t, out, "1 runs")

	buf.Reset()
	require.NoError(t, formatRunList(&buf, runs, true))
	assert.Contains(t, buf.String(), `"mean_reliability": 7.5`)
}

func TestPrintRun(t *testing.T) {
	st := types.NewResearchState("run-1", "q", types.StyleBlog, time.Now())
	st.Status = types.StatusCompleted
	st.DraftContent = "# Draft"
	st.FactCheckReport = "report"

	var buf bytes.Buffer
	require.NoError(t, printRun(&buf, st, false))
	assert.Contains(t, buf.String(), "# Draft")
	assert.Contains(t, buf.String(), "report")

	failed := types.NewResearchState("run-2", "q", types.StyleBlog, time.Now())
	failed.Status = types.StatusFailed
	buf.Reset()
	require.NoError(t, printRun(&buf, failed, false))
	assert.Empty(t, buf.String())

	buf.Reset()
	require.NoError(t, printRun(&buf, failed, true))
	assert.Contains(t, buf.String(), `"status": "failed"`)
}
