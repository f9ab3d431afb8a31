package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchColumn_ExactWins(t *testing.T) {
	res, ok := matchColumn("Name", []string{"Name", "name"}, map[string]matchResult{})
	require.True(t, ok)
	assert.Equal(t, "Name", res.Candidate)
	assert.Equal(t, strategyExact, res.Strategy)
}

func TestMatchColumn_CaseStyleFoldsNamingConventions(t *testing.T) {
	res, ok := matchColumn("Row Key", []string{"row_key"}, map[string]matchResult{})
	require.True(t, ok)
	assert.Equal(t, "row_key", res.Candidate)
	assert.Equal(t, strategyCaseStyle, res.Strategy)
}

func TestMatchColumn_CaseStyleToleratesCamelCase(t *testing.T) {
	res, ok := matchColumn("Due Date", []string{"dueDate"}, map[string]matchResult{})
	require.True(t, ok)
	assert.Equal(t, "dueDate", res.Candidate)
	assert.Equal(t, strategyCaseStyle, res.Strategy)
}

func TestMatchColumn_FallsThroughToPluralAndSynonym(t *testing.T) {
	res, ok := matchColumn("Tag", []string{"Tags"}, map[string]matchResult{})
	require.True(t, ok)
	assert.Equal(t, strategyPlural, res.Strategy)

	res, ok = matchColumn("title", []string{"Name"}, map[string]matchResult{})
	require.True(t, ok)
	assert.Equal(t, strategySynonym, res.Strategy)
}

func TestMatchColumn_NoMatch(t *testing.T) {
	_, ok := matchColumn("Completely Unrelated", []string{"Other Thing"}, map[string]matchResult{})
	assert.False(t, ok)
}

func TestMatchColumn_CachesAcrossCalls(t *testing.T) {
	cache := map[string]matchResult{}

	res1, ok := matchColumn("Name", []string{"Name"}, cache)
	require.True(t, ok)

	// Second call with a candidate list that would no longer match must
	// still return the cached result (§4.8: stable within a run).
	res2, ok := matchColumn("Name", nil, cache)
	require.True(t, ok)
	assert.Equal(t, res1, res2)
}
