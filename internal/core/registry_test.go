package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTool is the shared test double for this package: a minimal Tool with everything
// configurable via fields so tests can target exactly the behavior under test.
type fakeTool struct {
	name          string
	version       string
	priority      int
	deps          map[string]string
	run           func(ctx context.Context, ec *ExecutionContext) (*ToolOutput, error)
	should        bool
	timeout       time.Duration
	hooks         Hooks
	features      []string
	external      bool
	retryTimeouts bool
}

func newFakeTool(name string) *fakeTool {
	return &fakeTool{
		name:    name,
		version: "1.0.0",
		should:  true,
		run: func(ctx context.Context, ec *ExecutionContext) (*ToolOutput, error) {
			return &ToolOutput{Success: true}, nil
		},
	}
}

func (f *fakeTool) Name() string                     { return f.name }
func (f *fakeTool) Version() string                  { return f.version }
func (f *fakeTool) Priority() int                    { return f.priority }
func (f *fakeTool) Dependencies() map[string]string  { return f.deps }
func (f *fakeTool) ShouldRun(ec *ExecutionContext) bool { return f.should }
func (f *fakeTool) Execute(ctx context.Context, ec *ExecutionContext) (*ToolOutput, error) {
	return f.run(ctx, ec)
}
func (f *fakeTool) Timeout() time.Duration                        { return f.timeout }
func (f *fakeTool) Hooks() Hooks                                  { return f.hooks }
func (f *fakeTool) ListConfigurationOptions() []ConfigurationOption { return nil }
func (f *fakeTool) Configure(map[string]interface{})              {}
func (f *fakeTool) FeaturedBy() []string                          { return f.features }
func (f *fakeTool) UsesExternalProvider() bool                    { return f.external }
func (f *fakeTool) RetryTimeouts() bool                           { return f.retryTimeouts }

func TestRegistryRejectsDuplicateName(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register(newFakeTool("a")))
	err := r.Register(newFakeTool("a"))
	assert.Error(t, err)
}

func TestRegistryRejectsUnresolvedDependency(t *testing.T) {
	r := NewToolRegistry()
	a := newFakeTool("a")
	a.deps = map[string]string{"missing": ""}
	err := r.Register(a)
	assert.Error(t, err)
}

func TestRegistryRejectsCycle(t *testing.T) {
	r := NewToolRegistry()
	a := newFakeTool("a")
	require.NoError(t, r.Register(a))
	b := newFakeTool("b")
	b.deps = map[string]string{"a": ""}
	require.NoError(t, r.Register(b))

	// Registering a variant of "a" that depends on "b" would close the cycle; since names
	// must be unique we simulate the cycle check path via Unregister+re-register instead,
	// which is the realistic way a cycle could be introduced after the fact.
	require.NoError(t, r.Unregister("a"))
	a2 := newFakeTool("a")
	a2.deps = map[string]string{"b": ""}
	err := r.Register(a2)
	assert.Error(t, err)
}

func TestRegistryOrdersByDependencyThenPriorityThenName(t *testing.T) {
	r := NewToolRegistry()
	low := newFakeTool("low")
	low.priority = 50
	require.NoError(t, r.Register(low))

	high := newFakeTool("high")
	high.priority = 100
	high.deps = map[string]string{"low": ""}
	require.NoError(t, r.Register(high))

	zebra := newFakeTool("zebra")
	zebra.priority = 50
	require.NoError(t, r.Register(zebra))

	alpha := newFakeTool("alpha")
	alpha.priority = 50
	require.NoError(t, r.Register(alpha))

	ordered, err := r.ListInExecutionOrder()
	require.NoError(t, err)
	names := make([]string, len(ordered))
	for i, tl := range ordered {
		names[i] = tl.Name()
	}
	// alpha, low, zebra share priority 50 and no deps among them -> lexicographic.
	// high depends on low so must come after it.
	assert.Equal(t, []string{"alpha", "low", "zebra", "high"}, names)
}

func TestRegistryVersionConstraintEnforced(t *testing.T) {
	r := NewToolRegistry()
	base := newFakeTool("base")
	base.version = "1.0.0"
	require.NoError(t, r.Register(base))

	dependent := newFakeTool("dependent")
	dependent.deps = map[string]string{"base": ">=2.0.0"}
	err := r.Register(dependent)
	assert.Error(t, err)
}

func TestRegistryUnregisterBlockedWhileRunning(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register(newFakeTool("a")))
	r.markRunning()
	defer r.markIdle()
	err := r.Unregister("a")
	assert.Error(t, err)
}

func TestFeatureGatedToolsGrouping(t *testing.T) {
	r := NewToolRegistry()
	gated := newFakeTool("destructive-formatter")
	gated.features = []string{"experimental"}
	require.NoError(t, r.Register(gated))
	plain := newFakeTool("linter")
	require.NoError(t, r.Register(plain))

	grouped := r.FeatureGatedTools()
	require.Len(t, grouped["experimental"], 1)
	assert.Equal(t, "destructive-formatter", grouped["experimental"][0].Name())
}

func TestEligibleFiltersShouldRunAndFeatures(t *testing.T) {
	r := NewToolRegistry()
	gated := newFakeTool("gated")
	gated.features = []string{"opt-in"}
	require.NoError(t, r.Register(gated))
	skipped := newFakeTool("skipped")
	skipped.should = false
	require.NoError(t, r.Register(skipped))
	plain := newFakeTool("plain")
	require.NoError(t, r.Register(plain))

	ordered, err := r.ListInExecutionOrder()
	require.NoError(t, err)
	ec := NewExecutionContext("/repo", "/repo/.forge", nil, nil)

	eligible := Eligible(ec, ordered, nil)
	names := map[string]bool{}
	for _, t := range eligible {
		names[t.Name()] = true
	}
	assert.False(t, names["gated"])
	assert.False(t, names["skipped"])
	assert.True(t, names["plain"])

	eligible = Eligible(ec, ordered, map[string]bool{"opt-in": true})
	names = map[string]bool{}
	for _, t := range eligible {
		names[t.Name()] = true
	}
	assert.True(t, names["gated"])
}
