package framework

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTestLogger struct {
	started  []string
	finished []string
	failed   []string
	skipped  []string
}

func (l *recordingTestLogger) TestStarted(id TestID) { l.started = append(l.started, id.String()) }
func (l *recordingTestLogger) TestError(TestID, error) {}
func (l *recordingTestLogger) TestFinished(id TestID, failed bool, _ CapturedOutput) {
	l.finished = append(l.finished, id.String())
	if failed {
		l.failed = append(l.failed, id.String())
	}
}
func (l *recordingTestLogger) TestSkipped(id TestID, _ string) {
	l.skipped = append(l.skipped, id.String())
}

func TestRunCollectsSubtestResults(t *testing.T) {
	logger := &recordingTestLogger{}
	results := Run(nil, logger, func(c *Context) {
		c.Run("passes", func(c *Context) {})
		c.Run("fails", func(c *Context) {
			c.Errorf("deliberate failure")
		})
	})

	assert.False(t, results.OK())
	require.Len(t, results.Failures, 1)
	assert.Equal(t, "fails", results.Failures[0].TestID.String())
	assert.Equal(t, []string{"passes", "fails"}, logger.started)
}

func TestFailNowStopsTheTestOnly(t *testing.T) {
	reachedAfterFailNow := false
	siblingRan := false
	results := Run(nil, nil, func(c *Context) {
		c.Run("fatal", func(c *Context) {
			c.Errorf("fatal problem")
			c.FailNow()
			reachedAfterFailNow = true
		})
		c.Run("sibling", func(c *Context) {
			siblingRan = true
		})
	})

	assert.False(t, reachedAfterFailNow)
	assert.True(t, siblingRan)
	require.Len(t, results.Failures, 1)
}

func TestUnexpectedPanicIsReportedAsFailure(t *testing.T) {
	results := Run(nil, nil, func(c *Context) {
		c.Run("panics", func(c *Context) {
			panic(errors.New("boom"))
		})
	})

	require.Len(t, results.Failures, 1)
	require.Len(t, results.Failures[0].Errors, 1)
	assert.Contains(t, results.Failures[0].Errors[0].Error(), "boom")
}

func TestSkippedTestIsNotAFailure(t *testing.T) {
	logger := &recordingTestLogger{}
	results := Run(nil, logger, func(c *Context) {
		c.Run("skipped", func(c *Context) {
			c.SkipWithReason("not applicable")
			c.Errorf("should not be reached")
		})
	})

	assert.True(t, results.OK())
	assert.Equal(t, []string{"skipped"}, logger.skipped)
}

func TestFilterExcludesTests(t *testing.T) {
	var filters RegexFilters
	require.NoError(t, filters.MustNotMatch.Set("excluded"))

	ran := []string{}
	logger := &recordingTestLogger{}
	Run(filters.AsFilter, logger, func(c *Context) {
		c.Run("included test", func(c *Context) { ran = append(ran, "included") })
		c.Run("excluded test", func(c *Context) { ran = append(ran, "excluded") })
	})

	assert.Equal(t, []string{"included"}, ran)
	assert.Equal(t, []string{"excluded test"}, logger.skipped)
}

func TestDeferRunsInReverseOrderEvenOnFailure(t *testing.T) {
	var order []string
	Run(nil, nil, func(c *Context) {
		c.Run("failing with cleanups", func(c *Context) {
			c.Defer(func() { order = append(order, "first") })
			c.Defer(func() { order = append(order, "second") })
			c.Errorf("failure before cleanup")
			c.FailNow()
		})
	})

	assert.Equal(t, []string{"second", "first"}, order)
}

func TestDebugOutputIsCapturedPerTest(t *testing.T) {
	var captured CapturedOutput
	logger := &funcTestLogger{onFinished: func(_ TestID, _ bool, output CapturedOutput) {
		captured = output
	}}
	Run(nil, logger, func(c *Context) {
		c.Run("with debug output", func(c *Context) {
			c.Debug("poll %d", 1)
			c.Debug("poll %d", 2)
		})
	})

	require.Len(t, captured, 2)
	assert.Equal(t, "poll 1", captured[0].Message)
	assert.Equal(t, "poll 2", captured[1].Message)
}

type funcTestLogger struct {
	onFinished func(TestID, bool, CapturedOutput)
}

func (l *funcTestLogger) TestStarted(TestID)          {}
func (l *funcTestLogger) TestError(TestID, error)     {}
func (l *funcTestLogger) TestSkipped(TestID, string)  {}
func (l *funcTestLogger) TestFinished(id TestID, failed bool, output CapturedOutput) {
	l.onFinished(id, failed, output)
}
