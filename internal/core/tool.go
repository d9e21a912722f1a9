package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ConfigurationOptionType represents the possible types of a ConfigurationOption's value.
type ConfigurationOptionType int

const (
	// BoolConfigurationOption reflects the boolean value type.
	BoolConfigurationOption ConfigurationOptionType = iota
	// IntConfigurationOption reflects the integer value type.
	IntConfigurationOption
	// StringConfigurationOption reflects the string value type.
	StringConfigurationOption
	// PathConfigurationOption reflects a filesystem path value type.
	PathConfigurationOption
	// FloatConfigurationOption reflects a floating point value type.
	FloatConfigurationOption
	// StringsConfigurationOption reflects the array of strings value type.
	StringsConfigurationOption
)

// String returns the CLI flag type name: empty for bool, "int" for integers, "string"/"path"
// for strings, "float" for floats. Used to render --help output.
func (opt ConfigurationOptionType) String() string {
	switch opt {
	case BoolConfigurationOption:
		return ""
	case IntConfigurationOption:
		return "int"
	case StringConfigurationOption:
		return "string"
	case PathConfigurationOption:
		return "path"
	case FloatConfigurationOption:
		return "float"
	case StringsConfigurationOption:
		return "string"
	}
	panic(fmt.Sprintf("invalid ConfigurationOptionType value %d", opt))
}

// ConfigurationOption allows Tools to expose their tunables in a uniform, introspectable way,
// so that cmd/reactor can generate CLI flags and config.toml schema entries from them without
// each Tool hand-rolling flag registration.
type ConfigurationOption struct {
	Name        string
	Description string
	Flag        string
	Type        ConfigurationOptionType
	Default     interface{}
}

// FormatDefault renders the option's default value for --help output.
func (opt ConfigurationOption) FormatDefault() string {
	if opt.Type == StringsConfigurationOption {
		return fmt.Sprintf("%q", strings.Join(opt.Default.([]string), ","))
	}
	if opt.Type == StringConfigurationOption || opt.Type == PathConfigurationOption {
		return fmt.Sprintf("%q", opt.Default)
	}
	return fmt.Sprint(opt.Default)
}

// ToolOutput is what a Tool proposes after Execute runs. It is a proposal only: none of
// Modified/Created/Deleted have touched disk until the Apply Gate accepts them.
type ToolOutput struct {
	Success  bool
	Message  string
	Modified []string
	Created  []string
	Deleted  []string
	Duration time.Duration
}

// Hooks are the lifecycle callbacks a Tool may supply around its own Execute call.
// Any of the three may be nil.
type Hooks struct {
	Before  func(ctx *ExecutionContext) error
	After   func(ctx *ExecutionContext, out *ToolOutput) error
	OnError func(ctx *ExecutionContext, err error)
}

// Tool is the capability-set interface every pluggable unit of work implements. It replaces
// the base-class-polymorphism style of dynamic dispatch: the registry and scheduler only ever
// hold Tool values, never concrete types, and there is exactly one shape instead of a hierarchy
// of optional base classes.
type Tool interface {
	// Name uniquely identifies the tool; registration fails on duplicates.
	Name() string
	// Version is a semver string checked against dependents' version requirements.
	Version() string
	// Priority orders execution among tools whose dependencies are already satisfied; lower
	// runs earlier. Ties break on Name, lexicographically.
	Priority() int
	// Dependencies lists the names of tools that must run (and finish) before this one, each
	// optionally constrained to a semver range ("" means any version).
	Dependencies() map[string]string
	// ShouldRun lets a tool opt out of a particular pipeline run without being unregistered.
	ShouldRun(ctx *ExecutionContext) bool
	// Execute performs the tool's work and returns a proposal. The supplied context is
	// cancelled when the tool's own timeout (Timeout()) elapses.
	Execute(ctx context.Context, ec *ExecutionContext) (*ToolOutput, error)
	// Timeout bounds a single Execute call; zero means no timeout.
	Timeout() time.Duration
	// Hooks returns the lifecycle callbacks around Execute. May return a zero Hooks.
	Hooks() Hooks
	// ListConfigurationOptions exposes the tool's tunables for flags/config schema generation.
	ListConfigurationOptions() []ConfigurationOption
	// Configure applies resolved configuration values, keyed by ConfigurationOption.Name.
	Configure(values map[string]interface{})
}

// RetryableTimeout is optionally implemented by a Tool whose own Timeout() expiring should be
// retried by the scheduler rather than surfaced immediately, per spec §7: "Timeout — may be
// retried at the tool level if the tool opts in". Tools that are not idempotent must not
// implement this.
type RetryableTimeout interface {
	Tool
	RetryTimeouts() bool
}

// FeatureGated is implemented by Tools that should only be eligible to run when one of the
// named features has been explicitly enabled for the run (e.g. a destructive formatter that
// must not activate by default).
type FeatureGated interface {
	Tool
	FeaturedBy() []string
}

// PatternSource is implemented by Tools that contribute recognized patterns to the Pattern
// Detector at registration time (spec §4.5: "supplied by registered tools at init").
type PatternSource interface {
	Tool
	Patterns() []PatternSpec
}

// PatternSpec declares one pattern a Tool is interested in being notified about.
type PatternSpec struct {
	// Literal is matched verbatim against scanned line/token text.
	Literal string
	// Languages restricts the match to the given enry language classifications; empty means
	// all languages (including unclassified ones, via the line-scanning fallback).
	Languages []string
	// Component names the logical component this pattern belongs to, surfaced via
	// PatternMatch.ComponentName.
	Component string
}
