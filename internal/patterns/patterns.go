// Package patterns implements the Pattern Detector of spec §4.5: given (path, bytes), it
// returns the PatternMatch occurrences of every pattern a registered Tool declared interest in.
// Language identification is grounded on the teacher's LanguagesDetection
// (internal/plumbing/languages.go), which calls github.com/src-d/enry/v2 to classify a blob by
// its path and content; here that classification decides whether a pattern restricted to
// specific languages applies, matching spec §4.5's "falling back to line-scanning for unknown
// extensions" (an unclassified file still matches language-unrestricted patterns).
package patterns

import (
	"bufio"
	"bytes"
	"path"
	"sort"
	"sync"

	"github.com/src-d/enry/v2"

	"github.com/cyraxred/reactor/internal/core"
)

type compiledPattern struct {
	spec    core.PatternSpec
	toolTag string
}

func (p compiledPattern) appliesToLanguage(lang string) bool {
	if len(p.spec.Languages) == 0 {
		return true
	}
	for _, l := range p.spec.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// Detector scans change content against the immutable set of patterns registered tools supplied
// at init.
type Detector struct {
	mu       sync.RWMutex
	patterns []compiledPattern
}

// NewDetector builds a Detector with no registered patterns; call Register (normally once, at
// startup, per tool) before first use.
func NewDetector() *Detector {
	return &Detector{}
}

// Register adds one tool's pattern declarations, tagging each with toolTag so GroupByTool can
// later partition matches back to their owning tool. Call during initialization, before any
// Detect call; the set is treated as immutable afterward (spec §4.5).
func (d *Detector) Register(toolTag string, specs []core.PatternSpec) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, spec := range specs {
		if spec.Literal == "" {
			return core.NewEngineError(core.CategoryConfiguration, "patterns.register", nil,
				"pattern literal must not be empty")
		}
		d.patterns = append(d.patterns, compiledPattern{spec: spec, toolTag: toolTag})
	}
	return nil
}

// HasAny is a fast prefilter: it reports whether content could possibly contain any registered
// pattern, without computing line/column positions. Tools should call this before Detect to
// skip scanning content that cannot match.
func (d *Detector) HasAny(content []byte) bool {
	d.mu.RLock()
	patterns := make([]compiledPattern, len(d.patterns))
	copy(patterns, d.patterns)
	d.mu.RUnlock()

	for _, p := range patterns {
		if bytes.Contains(content, []byte(p.spec.Literal)) {
			return true
		}
	}
	return false
}

// Detect scans content for every registered pattern applicable to path's language (as
// classified by enry; patterns with no Languages restriction apply universally) and returns
// every match found, ordered by line then column.
func (d *Detector) Detect(filePath string, content []byte) []core.PatternMatch {
	d.mu.RLock()
	patterns := make([]compiledPattern, len(d.patterns))
	copy(patterns, d.patterns)
	d.mu.RUnlock()

	if len(patterns) == 0 {
		return nil
	}
	lang := enry.GetLanguage(path.Base(filePath), content)

	var matches []core.PatternMatch
	for _, p := range patterns {
		if !p.appliesToLanguage(lang) {
			continue
		}
		matches = append(matches, scanPattern(filePath, content, p)...)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Line != matches[j].Line {
			return matches[i].Line < matches[j].Line
		}
		return matches[i].Column < matches[j].Column
	})
	return matches
}

func scanPattern(filePath string, content []byte, p compiledPattern) []core.PatternMatch {
	var out []core.PatternMatch
	needle := []byte(p.spec.Literal)
	lineNo := 1
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		offset := 0
		for {
			idx := bytes.Index(line[offset:], needle)
			if idx < 0 {
				break
			}
			col := offset + idx + 1
			out = append(out, core.PatternMatch{
				Path:           filePath,
				Line:           lineNo,
				Column:         col,
				PatternLiteral: p.spec.Literal,
				ToolTag:        p.toolTag,
				ComponentName:  p.spec.Component,
			})
			offset += idx + len(needle)
			if offset >= len(line) {
				break
			}
		}
		lineNo++
	}
	return out
}

// GroupByTool partitions matches by the tool tag that registered the matched pattern.
func GroupByTool(matches []core.PatternMatch) map[string][]core.PatternMatch {
	out := map[string][]core.PatternMatch{}
	for _, m := range matches {
		out[m.ToolTag] = append(out[m.ToolTag], m)
	}
	return out
}

// ExtractComponents returns the distinct non-empty component names referenced by matches.
func ExtractComponents(matches []core.PatternMatch) map[string]struct{} {
	out := map[string]struct{}{}
	for _, m := range matches {
		if m.ComponentName != "" {
			out[m.ComponentName] = struct{}{}
		}
	}
	return out
}
