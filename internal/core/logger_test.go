package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLoggerImplementsLogger(t *testing.T) {
	var l Logger = NewLogger()
	assert.NotNil(t, l)
	l.Info("hello")
	l.Infof("hello %s", "world")
	l.Warn("careful")
	l.Warnf("careful %d", 1)
	l.Error("broken")
	l.Errorf("broken %d", 2)
	l.Critical("fatal")
	l.Criticalf("fatal %d", 3)
}

func TestDefaultLoggerWith(t *testing.T) {
	base := NewLogger()
	scoped := base.With("tool", "formatter")
	assert.NotNil(t, scoped)
	scoped.Info("scoped message")
}
