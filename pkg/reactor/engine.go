// Package reactor is the public facade of spec §6: a single owned Engine per process (never a
// package-level singleton, per spec §9's Design Note), wiring the Resource Governor, Blob
// Store + Operation Log, Change Detector, Pattern Detector, Traffic Branch Analyzer, Apply
// Gate, Tool Registry/Scheduler, Event Bus, and Platform I/O Layer behind the operation/vote/
// event surface external collaborators (CLI, editor plugins, cloud-sync, …) consume.
package reactor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cyraxred/reactor/internal/blobstore"
	"github.com/cyraxred/reactor/internal/config"
	"github.com/cyraxred/reactor/internal/core"
	"github.com/cyraxred/reactor/internal/detector"
	"github.com/cyraxred/reactor/internal/eventbus"
	"github.com/cyraxred/reactor/internal/gate"
	"github.com/cyraxred/reactor/internal/governor"
	"github.com/cyraxred/reactor/internal/ioplatform"
	"github.com/cyraxred/reactor/internal/oplog"
	"github.com/cyraxred/reactor/internal/patterns"
	"github.com/cyraxred/reactor/internal/traffic"
)

// Preview is one non-mutating look at how a proposed change would classify, returned by
// Preview() (spec §6: "preview(vec<FileChange>)→vec<Preview> (no mutation)").
type Preview struct {
	Path   string
	Color  core.BranchColor
	Merged []byte
}

// CommitSummary is one entry of History(): spec §6's "vec<{CommitId, message, time}>".
type CommitSummary struct {
	CommitID string
	Message  string
	Time     time.Time
}

// Engine is the single owned root object for one forge instance. Construct with New, Initialize
// before use, Shutdown exactly once when done.
type Engine struct {
	cfg       config.Config
	forgeRoot string
	logger    core.Logger

	gov        *governor.Governor
	io         ioplatform.Platform
	blobs      *blobstore.Store
	log        *oplog.Log
	bus        *eventbus.Bus
	classifier *traffic.Classifier
	patternDet *patterns.Detector
	registry   *core.ToolRegistry
	scheduler  *core.Scheduler
	changeDet  *detector.Detector

	mu           sync.Mutex
	currentGate  *gate.Gate
	pendingVotes map[string][]core.Vote
	editorEvents chan detector.RawEvent
	watchCancel  context.CancelFunc
	started      bool
	shutdownOnce sync.Once
}

// New constructs an Engine for the forge directory rooted at forgeRoot (spec §6's persisted
// state: blobs/, log/, meta.bolt with the refs and path index, and config.toml all live under
// here; applied files are written relative to forgeRoot's parent). logger may be nil
// (core.NewLogger() is substituted).
func New(cfg config.Config, forgeRoot string, logger core.Logger) (*Engine, error) {
	if logger == nil {
		logger = core.NewLogger()
	}
	if err := os.MkdirAll(forgeRoot, 0o755); err != nil {
		return nil, core.NewEngineError(core.CategoryFilesystem, "engine.new", err)
	}

	blobs, err := blobstore.NewStore(filepath.Join(forgeRoot, "blobs"))
	if err != nil {
		return nil, err
	}
	log, err := oplog.Open(forgeRoot)
	if err != nil {
		return nil, err
	}
	gov := governor.NewGovernor(cfg.FileHandleCap)
	bus := eventbus.New(eventbus.WithLogger(logger))
	classifier := traffic.NewClassifier(traffic.Policy{
		GreenGlobs: cfg.TrafficPolicy.GreenGlobs,
		RedGlobs:   cfg.TrafficPolicy.RedGlobs,
	})

	e := &Engine{
		cfg:          cfg,
		forgeRoot:    forgeRoot,
		logger:       logger,
		gov:          gov,
		io:           ioplatform.Select(gov, logger),
		blobs:        blobs,
		log:          log,
		bus:          bus,
		classifier:   classifier,
		patternDet:   patterns.NewDetector(),
		registry:     core.NewToolRegistry(),
		pendingVotes: map[string][]core.Vote{},
		editorEvents: make(chan detector.RawEvent, 256),
	}
	e.scheduler = core.NewScheduler(e.registry, logger, bus, core.NewBreakerBank())
	e.changeDet = detector.NewDetector(cfg.DebounceWindow(), e.readFile, logger)
	e.currentGate = gate.New(e.classifier, e.blobs, e.log, e.bus, filepath.Join(e.forgeRoot, ".."))
	return e, nil
}

func (e *Engine) readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Initialize starts the Engine's background machinery: the Change Detector actor goroutine and
// one fsnotify-backed Watch stream per configured watch path, both feeding the same debounced
// core.FileChange channel (spec §4.4: editor-protocol and filesystem sources merge into one
// stream). Spec §6's initialize().
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	watchCtx, cancel := context.WithCancel(ctx)
	e.watchCancel = cancel

	fsEvents := make(chan detector.RawEvent, 256)
	for _, path := range e.cfg.WatchPaths {
		w, err := e.io.Watch(watchCtx, path)
		if err != nil {
			cancel()
			return core.NewEngineError(core.CategoryFilesystem, "engine.initialize", err)
		}
		go forwardWatch(watchCtx, w, fsEvents)
	}
	go e.changeDet.Run(watchCtx, fsEvents, e.editorEvents)
	e.started = true
	e.logger.Infof("engine initialized, watching %d path(s) via %s backend", len(e.cfg.WatchPaths), e.io.BackendName())
	return nil
}

func forwardWatch(ctx context.Context, w ioplatform.Watcher, out chan<- detector.RawEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			out <- detector.RawEvent{
				Path:        ev.Path,
				Kind:        ioEventKindToChangeKind(ev.Kind),
				Source:      core.SourceFilesystem,
				ArrivalTime: time.Now(),
			}
		}
	}
}

func ioEventKindToChangeKind(k ioplatform.EventKind) core.ChangeKind {
	switch k {
	case ioplatform.EvCreated:
		return core.Created
	case ioplatform.EvDeleted:
		return core.Deleted
	case ioplatform.EvRenamed:
		return core.Renamed
	default:
		return core.Modified
	}
}

// DetectedChanges exposes the Change Detector's output stream, for a caller that wants to drive
// its own pipeline-execution policy off of detected changes.
func (e *Engine) DetectedChanges() <-chan core.FileChange {
	return e.changeDet.Output()
}

// SubmitEditorEvent feeds one editor-protocol-sourced raw event into the Change Detector.
// Editor events are authoritative over filesystem events for the same path within one debounce
// window (spec §4.4).
func (e *Engine) SubmitEditorEvent(ev detector.RawEvent) {
	ev.Source = core.SourceEditor
	e.editorEvents <- ev
}

// RegisterTool adds tool to the registry and returns its ToolId (spec §6's
// register_tool(Tool)→ToolId; the teacher/spec treat a tool's Name() as its stable identity).
func (e *Engine) RegisterTool(tool core.Tool) (string, error) {
	if err := e.registry.Register(tool); err != nil {
		return "", err
	}
	return tool.Name(), nil
}

// ExecutePipeline runs every eligible registered tool once, tagged with id, per spec §6's
// execute_pipeline(id).
func (e *Engine) ExecutePipeline(ctx context.Context, id string, ec *core.ExecutionContext, opts core.SchedulerOptions) (*core.PipelineResult, error) {
	return e.scheduler.ExecutePipeline(ctx, id, ec, opts)
}

// ExecuteAll runs every eligible registered tool once with a generated run id.
func (e *Engine) ExecuteAll(ctx context.Context, ec *core.ExecutionContext, opts core.SchedulerOptions) (*core.PipelineResult, error) {
	return e.scheduler.ExecuteAll(ctx, ec, opts)
}

// ExecuteImmediate runs a single named tool outside the normal wave ordering.
func (e *Engine) ExecuteImmediate(ctx context.Context, name string, ec *core.ExecutionContext) (*core.ToolOutput, error) {
	return e.scheduler.ExecuteImmediate(ctx, name, ec)
}

// Suspend halts dispatch of further pipeline waves until Resume.
func (e *Engine) Suspend() { e.scheduler.Suspend() }

// Resume releases a previously suspended Engine.
func (e *Engine) Resume() { e.scheduler.Resume() }

// Restart suspends dispatch, resets the per-run Apply Gate's Red-veto ledger (a fresh "run"
// begins), and resumes. Spec §6's restart().
func (e *Engine) Restart(ctx context.Context) error {
	e.scheduler.Suspend()
	e.mu.Lock()
	e.currentGate = gate.New(e.classifier, e.blobs, e.log, e.bus, filepath.Join(e.forgeRoot, ".."))
	e.pendingVotes = map[string][]core.Vote{}
	e.mu.Unlock()
	e.scheduler.Resume()
	return nil
}

// BackendName reports which Platform I/O Layer backend was selected at startup.
func (e *Engine) BackendName() string { return string(e.io.BackendName()) }

// WatchedPaths returns the configured watch roots.
func (e *Engine) WatchedPaths() []string { return e.cfg.WatchPaths }

// Publish broadcasts event to every subscriber, per spec §6's publish(event).
func (e *Engine) Publish(event interface{}) { e.bus.Publish(event) }

// Subscribe registers a new subscriber, returning a cancellable handle. Spec §6's
// subscribe()→EventStream (cancellable).
func (e *Engine) Subscribe() *eventbus.Subscription { return e.bus.Subscribe() }

// SubmitVote records one voter's opinion on path ahead of an apply_changes call, per spec §6's
// submit_vote(path, Vote). A Red vote is a hard veto once the corresponding Apply runs.
func (e *Engine) SubmitVote(path string, vote core.Vote) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingVotes[path] = append(e.pendingVotes[path], vote)
}

// Veto is sugar for SubmitVote with a Red verdict, per spec §6's veto(path, voter, reason).
func (e *Engine) Veto(path, voterID, reason string) {
	e.SubmitVote(path, core.Vote{VoterID: voterID, Color: core.Red, Reason: reason, Confidence: 1})
}

// recordedVoter replays votes collected via SubmitVote/Veto for one Apply call, so the Apply
// Gate's normal vote-collection path (spec §4.8) also serves pre-submitted votes.
type recordedVoter struct{ votes []core.Vote }

func (r recordedVoter) Vote(_ context.Context, _ string, _ core.BranchColor) core.Vote {
	if len(r.votes) == 0 {
		return core.Vote{Color: core.NoOpinion}
	}
	// A Red vote always wins a path's recorded ballot; otherwise the first vote stands.
	for _, v := range r.votes {
		if v.Color == core.Red {
			return v
		}
	}
	return r.votes[0]
}

func (e *Engine) votersFor(path string) []gate.Voter {
	e.mu.Lock()
	defer e.mu.Unlock()
	votes := e.pendingVotes[path]
	if len(votes) == 0 {
		return nil
	}
	return []gate.Voter{recordedVoter{votes: votes}}
}

// componentBaseline resolves the last recorded known-good content for path, from the
// Operation Log's current path->blob-hash index and the Blob Store.
func (e *Engine) componentBaseline(path string) (content []byte, has bool) {
	heads, err := e.log.PathToHead()
	if err != nil {
		return nil, false
	}
	hash, ok := heads[path]
	if !ok {
		return nil, false
	}
	data, err := e.blobs.Get(hash)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (e *Engine) currentGateFor() *gate.Gate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentGate
}

func (e *Engine) buildApplyInput(change core.FileChange, actorID string) gate.ApplyInput {
	baseline, hasBaseline := e.componentBaseline(change.Path)
	disk, _ := os.ReadFile(filepath.Join(e.forgeRoot, "..", change.Path))
	apiSurface := false
	for _, m := range change.Patterns {
		if m.ComponentName != "" {
			apiSurface = true
			break
		}
	}
	return gate.ApplyInput{
		Change:          change,
		DiskContent:     disk,
		BaselineContent: baseline,
		HasBaseline:     hasBaseline,
		APISurface:      apiSurface,
		ActorID:         actorID,
		Voters:          e.votersFor(change.Path),
	}
}

// ApplyChanges runs the full Apply Gate algorithm for each change, per spec §6's
// apply_changes(vec<FileChange>)→vec<AppliedPath | BlockedPath>.
func (e *Engine) ApplyChanges(ctx context.Context, changes []core.FileChange, actorID string) ([]gate.Decision, error) {
	g := e.currentGateFor()
	decisions := make([]gate.Decision, 0, len(changes))
	for _, c := range changes {
		d, err := g.Apply(ctx, e.buildApplyInput(c, actorID))
		if err != nil {
			return decisions, err
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// ApplyChangesPreapproved applies changes without collecting explicit votes: only the Traffic
// Branch Analyzer's own classification gates the write. Spec §6's apply_changes_preapproved.
func (e *Engine) ApplyChangesPreapproved(ctx context.Context, changes []core.FileChange, actorID string) ([]gate.Decision, error) {
	g := e.currentGateFor()
	decisions := make([]gate.Decision, 0, len(changes))
	for _, c := range changes {
		in := e.buildApplyInput(c, actorID)
		in.Voters = nil
		d, err := g.Apply(ctx, in)
		if err != nil {
			return decisions, err
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// ApplyChangesForce applies changes without collecting votes. Each change is classified first,
// with the same inputs the Apply Gate uses; a Red result publishes a SecurityViolation event so
// the attempt is auditable and, when the policy is "unsafe-forbidden" (the default), blocks the
// change there. With AllowUnsafeForce set, the change still goes through the Apply Gate, whose
// own classification blocks a Red change: this method does not bypass the gate's Red verdict.
// Spec §6's apply_changes_force.
func (e *Engine) ApplyChangesForce(ctx context.Context, changes []core.FileChange, actorID string) ([]gate.Decision, error) {
	g := e.currentGateFor()
	decisions := make([]gate.Decision, 0, len(changes))
	for _, c := range changes {
		in := e.buildApplyInput(c, actorID)
		in.Voters = nil
		preview := e.classifier.Classify(traffic.ClassifyInput{
			Path:            c.Path,
			DiskContent:     in.DiskContent,
			IncomingContent: c.Content,
			BaselineContent: in.BaselineContent,
			HasBaseline:     in.HasBaseline,
			APISurface:      in.APISurface,
		})
		if preview.Color.Kind == core.Red {
			e.bus.Publish(core.SecurityViolation{Path: c.Path, Reason: "apply_changes_force on a red-classified path"})
			if !e.cfg.AllowUnsafeForce {
				decisions = append(decisions, gate.Decision{Accepted: false, Color: preview.Color, Reasons: preview.Color.Conflicts})
				continue
			}
		}
		d, err := g.Apply(ctx, in)
		if err != nil {
			return decisions, err
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// QueryColor classifies a hypothetical (oldContent, newContent) pair for path without applying
// anything, per spec §6's query_color(path)→BranchColor.
func (e *Engine) QueryColor(path string, oldContent, newContent []byte) core.BranchColor {
	baseline, hasBaseline := e.componentBaseline(path)
	result := e.classifier.Classify(traffic.ClassifyInput{
		Path: path, DiskContent: oldContent, IncomingContent: newContent,
		HasBaseline: hasBaseline, BaselineContent: baseline,
	})
	return result.Color
}

// IsGuaranteedSafe reports whether changing path from oldContent to newContent classifies
// Green (see QueryColor), per spec §6's is_guaranteed_safe(path)→bool.
func (e *Engine) IsGuaranteedSafe(path string, oldContent, newContent []byte) bool {
	return e.QueryColor(path, oldContent, newContent).Kind == core.Green
}

// Preview classifies every change without mutating any state, per spec §6's
// preview(vec<FileChange>)→vec<Preview> (no mutation).
func (e *Engine) Preview(changes []core.FileChange) []Preview {
	previews := make([]Preview, 0, len(changes))
	for _, c := range changes {
		baseline, hasBaseline := e.componentBaseline(c.Path)
		disk, _ := os.ReadFile(filepath.Join(e.forgeRoot, "..", c.Path))
		result := e.classifier.Classify(traffic.ClassifyInput{
			Path: c.Path, DiskContent: disk, IncomingContent: c.Content,
			HasBaseline: hasBaseline, BaselineContent: baseline,
		})
		previews = append(previews, Preview{Path: c.Path, Color: result.Color, Merged: result.Merged})
	}
	return previews
}

// Checkpoint labels the current path->blob-hash state, per spec §6's checkpoint(message)→CommitId.
func (e *Engine) Checkpoint(message string) (string, error) {
	return e.log.Checkpoint(message)
}

// Checkout restores the path->blob-hash index to a previously recorded checkpoint, per spec §6's
// checkout(CommitId).
func (e *Engine) Checkout(commitID string) (map[string]string, error) {
	return e.log.Checkout(commitID)
}

// History returns every checkpoint, most recent first, per spec §6's
// history()→vec<{CommitId, message, time}>.
func (e *Engine) History() ([]CommitSummary, error) {
	cps, err := e.log.History()
	if err != nil {
		return nil, err
	}
	out := make([]CommitSummary, 0, len(cps))
	for _, cp := range cps {
		out = append(out, CommitSummary{CommitID: cp.ID, Message: cp.Message, Time: cp.Time})
	}
	return out, nil
}

// RegisterPattern wires one tool's pattern specs into the Pattern Detector. The Engine does not
// run the Pattern Detector itself: FileChanges from DetectedChanges carry no Patterns, and the
// Apply methods see only the matches a caller has already placed on a FileChange.
func (e *Engine) RegisterPattern(toolTag string, specs []core.PatternSpec) error {
	return e.patternDet.Register(toolTag, specs)
}

// Shutdown idempotently drains and releases every owned resource with a deadline, per spec §6's
// shutdown() ("idempotent, waits for drain with deadline").
func (e *Engine) Shutdown(timeout time.Duration) error {
	var shutdownErr error
	e.shutdownOnce.Do(func() {
		if e.watchCancel != nil {
			e.watchCancel()
		}
		e.bus.Close()
		if err := e.gov.Shutdown(timeout); err != nil {
			shutdownErr = err
			return
		}
		shutdownErr = e.log.Close()
	})
	return shutdownErr
}
