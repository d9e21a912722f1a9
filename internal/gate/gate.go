// Package gate implements the Apply Gate of spec §4.8: the single choke point through which a
// proposed FileChange becomes a durable edit. It owns the per-run Red-veto ledger (P4), runs the
// Traffic Branch Analyzer classifier, collects votes from opted-in subscribers, and on
// acceptance persists via the Blob Store + Operation Log per spec §4.3's apply algorithm
// (hash -> put -> append -> write file).
package gate

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/cyraxred/reactor/internal/blobstore"
	"github.com/cyraxred/reactor/internal/core"
	"github.com/cyraxred/reactor/internal/oplog"
	"github.com/cyraxred/reactor/internal/traffic"
)

// Voter is an Event Bus subscriber that opted in to cast a Vote on a pending change.
type Voter interface {
	Vote(ctx context.Context, path string, color core.BranchColor) core.Vote
}

// Decision is the Apply Gate's verdict for one proposed change.
type Decision struct {
	Accepted bool
	Color    core.BranchColor
	Reasons  []string
	BlobHash string
	OpID     string
}

// Gate is one run's Apply Gate instance: it is constructed fresh per pipeline run so that its
// Red-veto ledger (P4: "all subsequent apply_changes to that path in the same run return
// Blocked") cannot leak state across runs.
type Gate struct {
	classifier *traffic.Classifier
	blobs      *blobstore.Store
	log        *oplog.Log
	events     core.EventPublisher
	root       string

	mu        sync.Mutex
	redVetoed map[string][]string // path -> reasons, permanent for this Gate's lifetime
}

// New constructs a Gate scoped to one pipeline run.
func New(classifier *traffic.Classifier, blobs *blobstore.Store, log *oplog.Log, events core.EventPublisher, fileRoot string) *Gate {
	if events == nil {
		events = core.NopPublisher{}
	}
	return &Gate{
		classifier: classifier,
		blobs:      blobs,
		log:        log,
		events:     events,
		root:       fileRoot,
		redVetoed:  map[string][]string{},
	}
}

// ApplyInput bundles a proposed change with what the classifier and merge need to know about
// it.
type ApplyInput struct {
	Change          core.FileChange
	DiskContent     []byte
	BaselineContent []byte
	HasBaseline     bool
	APISurface      bool
	ActorID         string
	Voters          []Voter
}

// Apply runs the full Apply Gate algorithm of spec §4.8 for one proposed change.
func (g *Gate) Apply(ctx context.Context, in ApplyInput) (Decision, error) {
	path := in.Change.Path

	g.mu.Lock()
	if reasons, vetoed := g.redVetoed[path]; vetoed {
		g.mu.Unlock()
		g.events.Publish(core.FileBlocked{Path: path, Color: core.Red, Reasons: reasons})
		return Decision{Accepted: false, Color: core.RedColor(reasons...), Reasons: reasons}, nil
	}
	g.mu.Unlock()

	result := g.classifier.Classify(traffic.ClassifyInput{
		Path:            path,
		DiskContent:     in.DiskContent,
		IncomingContent: in.Change.Content,
		BaselineContent: in.BaselineContent,
		HasBaseline:     in.HasBaseline,
		APISurface:      in.APISurface,
	})

	if result.Color.Kind == core.Red {
		g.recordVeto(path, result.Color.Conflicts)
		g.events.Publish(core.FileBlocked{Path: path, Color: core.Red, Reasons: result.Color.Conflicts})
		return Decision{Accepted: false, Color: result.Color, Reasons: result.Color.Conflicts}, nil
	}

	votes := castVotes(ctx, in.Voters, path, result.Color)
	if hasRedVote(votes) {
		reasons := redVoteReasons(votes)
		g.recordVeto(path, reasons)
		g.events.Publish(core.FileBlocked{Path: path, Color: result.Color.Kind, Reasons: reasons})
		return Decision{Accepted: false, Color: core.RedColor(reasons...), Reasons: reasons}, nil
	}

	content := in.Change.Content
	if result.Color.Kind == core.Yellow && result.Merged != nil {
		// Default policy, spec §4.8 step 3: "Yellow ⇒ apply iff ... the 3-way merged text is
		// used" — the merged text, not the raw proposal, is what gets persisted.
		content = result.Merged
	}

	decision, err := g.persist(ctx, in, content, result.Color)
	if err != nil {
		return Decision{}, err
	}
	return decision, nil
}

// persist implements spec §4.3's apply-to-disk algorithm: hash -> blob put -> operation append
// -> atomic file write.
func (g *Gate) persist(ctx context.Context, in ApplyInput, content []byte, color core.BranchColor) (Decision, error) {
	hash, err := g.blobs.Put(content)
	if err != nil {
		return Decision{}, err // step 1 failure: abort, nothing changed
	}

	op := core.Operation{
		ID:         uuid.NewString(),
		FilePath:   in.Change.Path,
		Kind:       changeKindToOperationKind(in.Change.Kind),
		Content:    content,
		OldContent: in.DiskContent,
		BlobHash:   hash,
		ActorID:    in.ActorID,
		Timestamp:  in.Change.Timestamp,
	}
	if in.Change.Kind == core.Renamed {
		op.RenameTo = in.Change.Path
		op.FilePath = in.Change.RenamedFrom
	}
	seq, isNew, err := g.log.Append(ctx, op)
	if err != nil {
		return Decision{}, err // step 2 failure: abort, orphan blob GC'd later
	}
	if !isNew {
		// P2 idempotency: op.ID collided with one already durably recorded (practically
		// impossible for a fresh uuid, but Append's contract allows it); the id we publish
		// must be the one the log actually holds at seq, which is op.ID either way.
		op.Seq = seq
	}

	if g.root != "" {
		target := filepath.Join(g.root, in.Change.Path)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			// step 3 failure is durable-log-plus-orphan-on-disk acceptable per spec §4.3; the
			// recovery pass on next start replays missing disk writes from the log tail.
			return Decision{}, err
		}
		if err := renameio.WriteFile(target, content, 0o644); err != nil {
			return Decision{}, err
		}
	}

	g.events.Publish(core.FileApplied{Path: in.Change.Path, BlobHash: hash, Color: color.Kind, Operation: op.ID})
	return Decision{Accepted: true, Color: color, BlobHash: hash, OpID: op.ID}, nil
}

// recordVeto makes a Red verdict on path permanent for the remaining lifetime of this Gate (one
// pipeline run), per P4.
func (g *Gate) recordVeto(path string, reasons []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.redVetoed[path]; !exists {
		g.redVetoed[path] = reasons
	}
}

// IsVetoed reports whether path already carries a permanent Red veto in this run.
func (g *Gate) IsVetoed(path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, vetoed := g.redVetoed[path]
	return vetoed
}

func castVotes(ctx context.Context, voters []Voter, path string, color core.BranchColor) []core.Vote {
	votes := make([]core.Vote, 0, len(voters))
	for _, v := range voters {
		votes = append(votes, v.Vote(ctx, path, color))
	}
	return votes
}

func hasRedVote(votes []core.Vote) bool {
	for _, v := range votes {
		if v.Color == core.Red {
			return true
		}
	}
	return false
}

func redVoteReasons(votes []core.Vote) []string {
	var reasons []string
	for _, v := range votes {
		if v.Color == core.Red && v.Reason != "" {
			reasons = append(reasons, v.Reason)
		}
	}
	return reasons
}

func changeKindToOperationKind(k core.ChangeKind) core.OperationKind {
	switch k {
	case core.Created:
		return core.OpFileCreate
	case core.Deleted:
		return core.OpFileDelete
	case core.Renamed:
		return core.OpFileRename
	default:
		return core.OpReplace
	}
}
