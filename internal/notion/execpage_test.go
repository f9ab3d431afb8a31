package notion

import (
	"testing"
	"time"

	napi "github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowkeeper/dbsync/internal/engine"
)

func TestExecutionProperties_CoversAllFixedFields(t *testing.T) {
	rec := &engine.ExecutionRecord{
		RunID:       "run-1",
		ScriptName:  "dbsync",
		Environment: "prod",
		ScriptID:    "s1",
		UserID:      "agent-1",
		StartTime:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Status:      engine.ExecutionRunning,
	}

	props := executionProperties(rec)

	for _, field := range []string{
		"Script Name", "Start Time", "Final Status", "Run Id",
		"Environment", "Script Id", "Timezone", "User Identifier",
	} {
		require.Contains(t, props, field)
	}

	title, ok := props["Script Name"].(*napi.TitleProperty)
	require.True(t, ok)
	require.Len(t, title.Title, 1)
	assert.Equal(t, "dbsync", title.Title[0].Text.Content)

	status, ok := props["Final Status"].(*napi.SelectProperty)
	require.True(t, ok)
	assert.Equal(t, string(engine.ExecutionRunning), status.Select.Name)

	runID, ok := props["Run Id"].(*napi.RichTextProperty)
	require.True(t, ok)
	require.Len(t, runID.RichText, 1)
	assert.Equal(t, "run-1", runID.RichText[0].Text.Content)
}

func TestNewExecutionPages_SatisfiesExecutionPageClient(t *testing.T) {
	var _ engine.ExecutionPageClient = NewExecutionPages(&Client{}, "db-1")
}
