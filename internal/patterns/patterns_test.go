package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyraxred/reactor/internal/core"
)

func TestDetectFindsLineAndColumn(t *testing.T) {
	d := NewDetector()
	require.NoError(t, d.Register("formatter", []core.PatternSpec{
		{Literal: "TODO", Component: "tasks"},
	}))

	content := []byte("line one\nsecond TODO here\nthird")
	matches := d.Detect("file.go", content)
	require.Len(t, matches, 1)
	assert.Equal(t, 2, matches[0].Line)
	assert.Equal(t, 8, matches[0].Column)
	assert.Equal(t, "formatter", matches[0].ToolTag)
	assert.Equal(t, "tasks", matches[0].ComponentName)
}

func TestDetectFindsMultipleOccurrencesOnSameLine(t *testing.T) {
	d := NewDetector()
	require.NoError(t, d.Register("t", []core.PatternSpec{{Literal: "ab"}}))
	matches := d.Detect("f.txt", []byte("ab ab ab"))
	assert.Len(t, matches, 3)
}

func TestDetectRestrictsToLanguage(t *testing.T) {
	d := NewDetector()
	require.NoError(t, d.Register("t", []core.PatternSpec{
		{Literal: "func", Languages: []string{"Python"}},
	}))
	matches := d.Detect("main.go", []byte("func main() {}"))
	assert.Empty(t, matches, "pattern restricted to Python must not match a Go file")
}

func TestDetectUnrestrictedPatternAppliesToAnyLanguage(t *testing.T) {
	d := NewDetector()
	require.NoError(t, d.Register("t", []core.PatternSpec{{Literal: "secret"}}))
	matches := d.Detect("notes.unknownext", []byte("a secret value"))
	assert.Len(t, matches, 1)
}

func TestHasAnyPrefiltersBeforeScanning(t *testing.T) {
	d := NewDetector()
	require.NoError(t, d.Register("t", []core.PatternSpec{{Literal: "needle"}}))
	assert.True(t, d.HasAny([]byte("a needle in a haystack")))
	assert.False(t, d.HasAny([]byte("nothing here")))
}

func TestGroupByToolPartitionsMatches(t *testing.T) {
	matches := []core.PatternMatch{
		{ToolTag: "a", Line: 1},
		{ToolTag: "b", Line: 2},
		{ToolTag: "a", Line: 3},
	}
	grouped := GroupByTool(matches)
	assert.Len(t, grouped["a"], 2)
	assert.Len(t, grouped["b"], 1)
}

func TestExtractComponentsDedupesNonEmptyNames(t *testing.T) {
	matches := []core.PatternMatch{
		{ComponentName: "x"},
		{ComponentName: "x"},
		{ComponentName: "y"},
		{ComponentName: ""},
	}
	components := ExtractComponents(matches)
	assert.Len(t, components, 2)
	_, hasX := components["x"]
	_, hasY := components["y"]
	assert.True(t, hasX)
	assert.True(t, hasY)
}

func TestRegisterRejectsEmptyLiteral(t *testing.T) {
	d := NewDetector()
	err := d.Register("t", []core.PatternSpec{{Literal: ""}})
	assert.Error(t, err)
}
