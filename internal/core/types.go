package core

import "time"

// ChangeSource identifies which upstream produced a FileChange.
type ChangeSource int

const (
	// SourceEditor means the change was reported over the editor protocol stream; editor
	// events are authoritative over filesystem events for the same path within one debounce
	// window.
	SourceEditor ChangeSource = iota
	// SourceFilesystem means the change was observed by the platform watcher.
	SourceFilesystem
)

func (s ChangeSource) String() string {
	switch s {
	case SourceEditor:
		return "editor"
	case SourceFilesystem:
		return "filesystem"
	}
	return "unknown"
}

// ChangeKind enumerates what happened to a path.
type ChangeKind int

const (
	Created ChangeKind = iota
	Modified
	Deleted
	Renamed
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	}
	return "unknown"
}

// FileChange is the Detector's unit of output: one debounced, deduplicated observation of a
// path changing. Immutable once constructed; consumed exactly once by the Scheduler.
type FileChange struct {
	Path      string
	Kind      ChangeKind
	RenamedFrom string // only set when Kind == Renamed
	Source    ChangeSource
	Timestamp time.Time
	Content   []byte // present for Created/Modified
	Patterns  []PatternMatch
}

// PatternMatch annotates a FileChange with one location where a registered Tool's pattern
// fired, produced by the Pattern Detector.
type PatternMatch struct {
	Path          string
	Line          int // 1-indexed
	Column        int // 1-indexed
	PatternLiteral string
	ToolTag       string
	ComponentName string
}

// BranchColorKind is the three-way (plus NoOpinion) safety classification of a proposed edit.
type BranchColorKind int

const (
	Green BranchColorKind = iota
	Yellow
	Red
	NoOpinion
)

func (k BranchColorKind) String() string {
	switch k {
	case Green:
		return "green"
	case Yellow:
		return "yellow"
	case Red:
		return "red"
	case NoOpinion:
		return "no_opinion"
	}
	return "unknown"
}

// BranchColor is the full classifier verdict: the color plus, for Yellow/Red, the reasons or
// conflict descriptions that produced it.
type BranchColor struct {
	Kind      BranchColorKind
	Conflicts []string
}

// RedColor constructs a Red verdict carrying the given reasons.
func RedColor(reasons ...string) BranchColor { return BranchColor{Kind: Red, Conflicts: reasons} }

// YellowColor constructs a Yellow verdict carrying the given conflict descriptions (empty
// means cleanly mergeable).
func YellowColor(conflicts ...string) BranchColor {
	return BranchColor{Kind: Yellow, Conflicts: conflicts}
}

// GreenColor constructs a Green (auto-apply) verdict.
func GreenColor() BranchColor { return BranchColor{Kind: Green} }

// Vote is one voter's opinion on a pending change. A Red vote is a hard veto: it cannot be
// overridden within the same pipeline run (spec invariant, P4).
type Vote struct {
	VoterID    string
	Color      BranchColorKind
	Reason     string
	Confidence float64
}

// ComponentRecord tracks one file the system manages, enabling 3-way merge against a recorded
// baseline.
type ComponentRecord struct {
	Path          string
	SourceTool    string
	ComponentName string
	Version       string
	BaselineHash  string
	CurrentHash   string
}

// OperationKind enumerates the fine-grained edit actions recorded in the Operation Log.
type OperationKind int

const (
	OpInsert OperationKind = iota
	OpDelete
	OpReplace
	OpFileCreate
	OpFileDelete
	OpFileRename
)

func (k OperationKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpDelete:
		return "delete"
	case OpReplace:
		return "replace"
	case OpFileCreate:
		return "file_create"
	case OpFileDelete:
		return "file_delete"
	case OpFileRename:
		return "file_rename"
	}
	return "unknown"
}

// Position gives stable logical coordinates for an edit, so concurrent edits to the same file
// can still be ordered without relying on raw byte offsets alone.
type Position struct {
	Line       int
	Column     int
	ByteOffset int64
	Actor      string
	Counter    uint64
}

// Operation is one recorded edit action. Actor+Counter form a Lamport logical clock; Seq is the
// monotonic sequence number assigned by the Operation Log on append.
type Operation struct {
	ID        string // UUID v4
	FilePath  string
	Kind      OperationKind
	Pos       Position
	Content   []byte // Insert/FileCreate: new bytes; Replace: new bytes
	OldContent []byte // Replace: previous bytes, for 3-way merge / undo
	Len       int64   // Delete: number of bytes removed
	RenameTo  string  // FileRename only
	BlobHash  string  // content-addressed hash of the resulting file content, if applicable
	ActorID   string
	Timestamp time.Time
	Deps      []string // Operation IDs this operation causally depends on
	Seq       uint64   // assigned by the Operation Log; 0 until appended
}
