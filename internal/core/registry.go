package core

import (
	"sort"
	"sync"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"

	"github.com/cyraxred/reactor/internal/toposort"
)

// ToolRegistry stores declared Tools with their version, priority, dependency list, and
// should-run predicate, and resolves them into a dependency-respecting execution order.
//
// This replaces the reflect-based PipelineItemRegistry pattern (type registration + Summon-ing
// fresh reflect.New instances on demand): Tools are ordinary values behind the Tool interface,
// registered once and kept as-is, with no reflection and no process-wide singleton — each
// ToolRegistry is owned by whoever constructs it (normally one per Engine).
type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	running bool // true while a pipeline holds the resolved order; blocks Unregister
}

// NewToolRegistry constructs an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: map[string]Tool{}}
}

// Register adds a Tool to the registry. It rejects a duplicate name, a dependency on a tool
// that does not exist yet, a dependency whose version constraint the dependency's declared
// version does not satisfy, and a cycle introduced by this registration.
func (r *ToolRegistry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if name == "" {
		return errors.New("tool registration: name must not be empty")
	}
	if _, exists := r.tools[name]; exists {
		return errors.Errorf("tool registration: %q is already registered", name)
	}
	for dep, constraint := range tool.Dependencies() {
		other, exists := r.tools[dep]
		if !exists {
			return errors.Errorf("tool registration: %q depends on unregistered tool %q", name, dep)
		}
		if constraint == "" {
			continue
		}
		c, err := semver.NewConstraint(constraint)
		if err != nil {
			return errors.Wrapf(err, "tool registration: %q has an invalid version constraint on %q", name, dep)
		}
		v, err := semver.NewVersion(other.Version())
		if err != nil {
			return errors.Wrapf(err, "tool registration: %q has an unparseable version %q", dep, other.Version())
		}
		if !c.Check(v) {
			return errors.Errorf("tool registration: %q requires %s %s, but %s is registered",
				name, dep, constraint, other.Version())
		}
	}
	r.tools[name] = tool
	if _, err := r.resolveLocked(); err != nil {
		delete(r.tools, name)
		return errors.Wrapf(err, "tool registration: %q would introduce a cycle", name)
	}
	return nil
}

// Unregister removes a Tool by name. Disallowed while a pipeline is running (the same process
// must not mutate the dependency graph mid-execution).
func (r *ToolRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("tool registry: cannot unregister while a pipeline is running")
	}
	if _, exists := r.tools[name]; !exists {
		return errors.Errorf("tool registry: %q is not registered", name)
	}
	delete(r.tools, name)
	return nil
}

// Lookup returns the registered Tool by name.
func (r *ToolRegistry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// markRunning / markIdle bracket a pipeline execution so Unregister can refuse concurrent
// mutation; the Scheduler calls these around a run.
func (r *ToolRegistry) markRunning() {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()
}

func (r *ToolRegistry) markIdle() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

type byPriorityThenName []Tool

func (s byPriorityThenName) Len() int      { return len(s) }
func (s byPriorityThenName) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s byPriorityThenName) Less(i, j int) bool {
	if s[i].Priority() != s[j].Priority() {
		return s[i].Priority() < s[j].Priority()
	}
	return s[i].Name() < s[j].Name()
}

// ListInExecutionOrder performs a topological sort of the dependency DAG, breaking ties among
// nodes with no remaining unresolved dependency by (priority asc, name asc), per spec §4.6.
func (r *ToolRegistry) ListInExecutionOrder() ([]Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked()
}

// resolveLocked builds the toposort.Graph from each Tool's declared Dependencies() and sorts
// it, using the tie-break carried by toposort.Graph's insertion order (which we seed in
// priority/name order so that ties fall out correctly from the algorithm's own queue order).
func (r *ToolRegistry) resolveLocked() ([]Tool, error) {
	ordered := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		ordered = append(ordered, t)
	}
	sort.Sort(byPriorityThenName(ordered))

	graph := toposort.NewGraphWithInsertionOrder()
	for _, t := range ordered {
		graph.AddNode(t.Name())
	}
	for _, t := range ordered {
		for dep := range t.Dependencies() {
			graph.AddEdge(dep, t.Name())
		}
	}
	names, ok := graph.Toposort()
	if !ok {
		return nil, errors.New("tool registry: dependency graph contains a cycle")
	}
	result := make([]Tool, 0, len(names))
	for _, n := range names {
		result = append(result, r.tools[n])
	}
	return result, nil
}

// DumpDAG writes the resolved dependency graph in Graphviz form, for operators debugging a
// stuck pipeline (grounded on the teacher's --dump-dag / resolve()'s graphCopy.Serialize()).
func (r *ToolRegistry) DumpDAG() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	graph := toposort.NewGraphWithInsertionOrder()
	ordered := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		ordered = append(ordered, t)
	}
	sort.Sort(byPriorityThenName(ordered))
	for _, t := range ordered {
		graph.AddNode(t.Name())
	}
	for _, t := range ordered {
		for dep := range t.Dependencies() {
			graph.AddEdge(dep, t.Name())
		}
	}
	names, ok := graph.Toposort()
	if !ok {
		return "", errors.New("tool registry: dependency graph contains a cycle")
	}
	return graph.Serialize(names), nil
}

// FeatureGatedTools returns the subset of registered tools that declare feature gating,
// grouped by the feature name that activates them (generalizes the teacher's
// FeaturedPipelineItem/--feature mechanism, see SPEC_FULL.md's SUPPLEMENTED FEATURES).
func (r *ToolRegistry) FeatureGatedTools() map[string][]Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := map[string][]Tool{}
	for _, t := range r.tools {
		fg, ok := t.(FeatureGated)
		if !ok {
			continue
		}
		for _, f := range fg.FeaturedBy() {
			result[f] = append(result[f], t)
		}
	}
	for _, ts := range result {
		sort.Sort(byPriorityThenName(ts))
	}
	return result
}

// Eligible filters the execution order down to the tools that should actually run in this
// context: ShouldRun(ctx) is true, and if the tool is FeatureGated, at least one of its
// features is present in enabledFeatures.
func Eligible(ctx *ExecutionContext, ordered []Tool, enabledFeatures map[string]bool) []Tool {
	result := make([]Tool, 0, len(ordered))
	for _, t := range ordered {
		if fg, ok := t.(FeatureGated); ok {
			enabled := false
			for _, f := range fg.FeaturedBy() {
				if enabledFeatures[f] {
					enabled = true
					break
				}
			}
			if !enabled {
				continue
			}
		}
		if !t.ShouldRun(ctx) {
			continue
		}
		result = append(result, t)
	}
	return result
}

// ListConfigurationOptions collects every registered tool's configuration surface, prefixed
// with the tool's name, for CLI flag generation (mirrors the teacher's AddFlags but without
// the unsafe-pointer reflection trick: each option carries its own typed Default already).
func (r *ToolRegistry) ListConfigurationOptions() map[string][]ConfigurationOption {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := map[string][]ConfigurationOption{}
	for name, t := range r.tools {
		opts := t.ListConfigurationOptions()
		if len(opts) > 0 {
			result[name] = opts
		}
	}
	return result
}
