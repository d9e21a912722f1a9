package traffic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cyraxred/reactor/internal/core"
)

func TestGreenGlobClassifiesDocsAsGreen(t *testing.T) {
	c := NewClassifier(Policy{GreenGlobs: []string{"**/*.md"}})
	result := c.Classify(ClassifyInput{
		Path:            "/docs/readme.md",
		DiskContent:     []byte("hello"),
		IncomingContent: []byte("hello world"),
	})
	assert.Equal(t, core.Green, result.Color.Kind)
}

func TestAPISurfaceChangeIsRedEvenWithGreenPath(t *testing.T) {
	c := NewClassifier(Policy{GreenGlobs: []string{"**/*.md"}})
	result := c.Classify(ClassifyInput{
		Path:            "/docs/readme.md",
		DiskContent:     []byte("hello"),
		IncomingContent: []byte("hello world"),
		APISurface:      true,
	})
	assert.Equal(t, core.Red, result.Color.Kind)
}

func TestExportedSignatureChangeIsRed(t *testing.T) {
	c := NewClassifier(Policy{})
	result := c.Classify(ClassifyInput{
		Path:            "/src/api.rs",
		DiskContent:     []byte("fn handle(a: i32)"),
		IncomingContent: []byte("fn handle(a: i32, b: i32)"),
		APISurface:      true,
	})
	assert.Equal(t, core.Red, result.Color.Kind)
	assert.NotEmpty(t, result.Color.Conflicts)
}

func TestRedGlobOverridesGreenGlob(t *testing.T) {
	c := NewClassifier(Policy{GreenGlobs: []string{"**/*.md"}, RedGlobs: []string{"**/SECURITY.md"}})
	result := c.Classify(ClassifyInput{Path: "/SECURITY.md", DiskContent: []byte("a"), IncomingContent: []byte("b")})
	assert.Equal(t, core.Red, result.Color.Kind)
}

func TestMissingBaselineIsTreatedAsRed(t *testing.T) {
	c := NewClassifier(Policy{})
	result := c.Classify(ClassifyInput{
		Path:            "/src/internal.go",
		DiskContent:     []byte("a"),
		IncomingContent: []byte("b"),
		HasBaseline:     false,
	})
	assert.Equal(t, core.Red, result.Color.Kind)
}

func TestCleanThreeWayMergeIsYellowWithoutConflicts(t *testing.T) {
	c := NewClassifier(Policy{})
	result := c.Classify(ClassifyInput{
		Path:            "/src/internal.go",
		BaselineContent: []byte("line1\nline2\nline3\n"),
		DiskContent:     []byte("line1\nline2\nline3\n"),
		IncomingContent: []byte("line1\nline2 modified\nline3\n"),
		HasBaseline:     true,
	})
	assert.Equal(t, core.Yellow, result.Color.Kind)
	assert.Empty(t, result.Color.Conflicts)
	assert.Contains(t, string(result.Merged), "line2 modified")
}

func TestConflictingThreeWayMergeIsYellowWithConflicts(t *testing.T) {
	c := NewClassifier(Policy{})
	result := c.Classify(ClassifyInput{
		Path:            "/src/internal.go",
		BaselineContent: []byte("alpha\nbeta\ngamma\ndelta\nepsilon\n"),
		DiskContent:     []byte("alpha\nBETA-disk\ngamma\ndelta\nepsilon\n"),
		IncomingContent: []byte("alpha\nBETA-incoming\ngamma\ndelta\nepsilon\n"),
		HasBaseline:     true,
	})
	assert.Equal(t, core.Yellow, result.Color.Kind)
	assert.NotEmpty(t, result.Color.Conflicts)
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := NewClassifier(Policy{GreenGlobs: []string{"**/*.md"}, RedGlobs: []string{"**/*.secret"}})
	in := ClassifyInput{
		Path:            "/a/b/c.go",
		BaselineContent: []byte("x\n"),
		DiskContent:     []byte("x\n"),
		IncomingContent: []byte("y\n"),
		HasBaseline:     true,
	}
	first := c.Classify(in)
	second := c.Classify(in)
	assert.Equal(t, first.Color, second.Color)
}

func TestGlobMatchesNestedDirectories(t *testing.T) {
	c := NewClassifier(Policy{GreenGlobs: []string{"**/*.md"}})
	result := c.Classify(ClassifyInput{Path: "a/b/c/d.md", DiskContent: []byte("x"), IncomingContent: []byte("y")})
	assert.Equal(t, core.Green, result.Color.Kind)
}
