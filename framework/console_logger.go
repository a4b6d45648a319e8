package framework

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	failedColor  = color.New(color.FgRed)
	skippedColor = color.New(color.FgYellow)
)

// ConsoleTestLogger prints test progress to standard output as the suite runs.
type ConsoleTestLogger struct {
	DebugOutputOnFailure bool
	DebugOutputOnSuccess bool
}

func (c ConsoleTestLogger) TestStarted(id TestID) {
	fmt.Printf("[%s]\n", id)
}

func (c ConsoleTestLogger) TestError(id TestID, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		fmt.Printf("  %s\n", line)
	}
}

func (c ConsoleTestLogger) TestFinished(id TestID, failed bool, debugOutput CapturedOutput) {
	if failed {
		failedColor.Printf("  FAILED: %s\n", id)
	}
	if len(debugOutput) > 0 &&
		((failed && c.DebugOutputOnFailure) || (!failed && c.DebugOutputOnSuccess)) {
		debugOutput.Dump(os.Stdout, "    DEBUG ")
	}
}

func (c ConsoleTestLogger) TestSkipped(id TestID, reason string) {
	if reason == "" {
		skippedColor.Printf("  SKIPPED: %s\n", id)
	} else {
		skippedColor.Printf("  SKIPPED: %s (%s)\n", id, reason)
	}
}
