// Package traffic implements the Traffic Branch Analyzer of spec §4.8: a pure classifier that
// assigns one of Green/Yellow/Red to a proposed change, plus the 3-way merge it relies on for
// the Yellow verdict. The merge is grounded on github.com/sergi/go-diff/diffmatchpatch's
// Patch/PatchApply pair — the teacher (analyser.go, renames.go, burndown.go) only ever uses
// this library's line-level Diff output, never its patch-and-apply path, but PatchMake/
// PatchApply is exactly Myers-diff-based fuzzy 3-way merging: a patch computed from
// baseline->incoming, applied against disk's current content, with per-hunk success flags that
// double as conflict detection.
package traffic

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/cyraxred/reactor/internal/core"
)

// Policy configures the path-glob and API-surface rules the classifier applies.
type Policy struct {
	GreenGlobs []string
	RedGlobs   []string
}

// ClassifyInput carries everything the classifier needs for one path (spec §4.8: "(path,
// old_bytes, new_bytes, optional baseline_hash)").
type ClassifyInput struct {
	Path string

	// DiskContent is the file's current content on disk ("old_bytes").
	DiskContent []byte
	// IncomingContent is the proposed new content ("new_bytes").
	IncomingContent []byte

	// HasBaseline and BaselineContent describe the last recorded known-good version, if any.
	HasBaseline    bool
	BaselineContent []byte

	// APISurface is true when the Pattern Detector flagged this change as touching a public
	// signature, exported type, or schema field.
	APISurface bool
}

// ClassifyResult is the classifier's verdict, plus the merged text when the verdict is Yellow
// (the Apply Gate applies this text, not IncomingContent, per spec §4.8 step 3).
type ClassifyResult struct {
	Color  core.BranchColor
	Merged []byte
}

// Classifier applies Policy to ClassifyInput. It holds no mutable state beyond its compiled
// globs, so Classify is safe to call concurrently and is a pure function of its inputs, per
// spec §4.8 ("Classifier (pure function)") and property P3.
type Classifier struct {
	mu         sync.RWMutex
	greenRe    []*regexp.Regexp
	redRe      []*regexp.Regexp
}

// NewClassifier compiles policy's globs. Invalid globs are skipped (matching nothing), never
// fatal, since a misconfigured glob must not take down the whole classifier.
func NewClassifier(policy Policy) *Classifier {
	c := &Classifier{}
	for _, g := range policy.GreenGlobs {
		if re := compileGlob(g); re != nil {
			c.greenRe = append(c.greenRe, re)
		}
	}
	for _, g := range policy.RedGlobs {
		if re := compileGlob(g); re != nil {
			c.redRe = append(c.redRe, re)
		}
	}
	return c
}

// Classify is the pure classifier described in spec §4.8.
func (c *Classifier) Classify(in ClassifyInput) ClassifyResult {
	c.mu.RLock()
	greenRe := c.greenRe
	redRe := c.redRe
	c.mu.RUnlock()

	redByPath := matchesAny(redRe, in.Path)
	greenByPath := matchesAny(greenRe, in.Path)

	// Red always wins: over API surface, over a configured Red glob, and (tie-break rule)
	// over a path that would otherwise be Green.
	if in.APISurface {
		return ClassifyResult{Color: core.RedColor("change touches public API surface")}
	}
	if redByPath {
		return ClassifyResult{Color: core.RedColor(fmt.Sprintf("%s matches a configured Red path pattern", in.Path))}
	}
	if greenByPath {
		return ClassifyResult{Color: core.GreenColor()}
	}
	if !in.HasBaseline {
		// Tie-break rule: Yellow-without-conflicts but no baseline ⇒ cannot prove safety ⇒ Red.
		return ClassifyResult{Color: core.RedColor("no recorded baseline for this path; safety cannot be proven")}
	}

	merged, conflicts, clean := merge3(string(in.BaselineContent), string(in.DiskContent), string(in.IncomingContent))
	if clean {
		return ClassifyResult{Color: core.YellowColor(), Merged: []byte(merged)}
	}
	return ClassifyResult{Color: core.YellowColor(conflicts...), Merged: []byte(merged)}
}

// merge3 performs a 3-way merge of incoming against disk, relative to baseline: a patch
// representing baseline->incoming is computed, then applied against disk. Hunks that fail to
// apply cleanly are reported as conflict descriptions; merged always contains dmp's best-effort
// result (possibly containing unresolved hunks) so callers can still inspect it even when
// clean==false.
func merge3(baseline, disk, incoming string) (merged string, conflicts []string, clean bool) {
	dmp := diffmatchpatch.New()
	patches := dmp.PatchMake(baseline, incoming)
	if len(patches) == 0 {
		return disk, nil, true
	}
	result, applied := dmp.PatchApply(patches, disk)
	for i, ok := range applied {
		if !ok {
			conflicts = append(conflicts, fmt.Sprintf("hunk %d of %d did not apply cleanly", i+1, len(applied)))
		}
	}
	return result, conflicts, len(conflicts) == 0
}

func matchesAny(patterns []*regexp.Regexp, path string) bool {
	for _, re := range patterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// compileGlob translates a shell-style glob (supporting "**" for any number of path segments,
// "*" for any run within one segment, "?" for one character) into an anchored regexp. There is
// no third-party glob-matching library in the retrieved example pack, so this small translator
// sits directly on the standard library's regexp; see DESIGN.md.
func compileGlob(glob string) *regexp.Regexp {
	var b strings.Builder
	b.WriteByte('^')
	runes := []rune(glob)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString(".*")
				i++
				if i+1 < len(runes) && runes[i+1] == '/' {
					i++
				}
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '.', '+', '(', ')', '|', '^', '$', '[', ']', '{', '}', '\\':
			b.WriteByte('\\')
			b.WriteRune(runes[i])
		default:
			b.WriteRune(runes[i])
		}
	}
	b.WriteByte('$')
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil
	}
	return re
}
