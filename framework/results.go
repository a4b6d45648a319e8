package framework

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

type Results struct {
	Tests    []TestResult
	Failures []TestResult
}

type TestResult struct {
	TestID  TestID
	Errors  []error
	Skipped bool
}

func (r Results) OK() bool {
	return len(r.Failures) == 0
}

// Append merges another result set into this one. The harness runs the suite
// once per configured service and aggregates everything into a single report.
func (r *Results) Append(other Results) {
	r.Tests = append(r.Tests, other.Tests...)
	r.Failures = append(r.Failures, other.Failures...)
}

type TestID struct {
	Path []string
}

func (t TestID) Plus(name string) TestID {
	return TestID{Path: append(append([]string(nil), t.Path...), name)}
}

func (t TestID) String() string {
	return strings.Join(t.Path, "/")
}

type TestFailure struct {
	ID  TestID
	Err error
}

func (f TestFailure) Error() string {
	return fmt.Sprintf("[%s]: %s", f.ID, f.Err)
}

func PrintResults(dest io.Writer, results Results) {
	if results.OK() {
		color.New(color.FgGreen).Fprintf(dest, "All tests passed (%d)\n", len(results.Tests))
		return
	}
	color.New(color.FgRed).Fprintf(dest, "FAILED TESTS (%d):\n", len(results.Failures))
	for _, f := range results.Failures {
		fmt.Fprintf(dest, "  * %s\n", f.TestID)
		for _, err := range f.Errors {
			for _, line := range strings.Split(err.Error(), "\n") {
				fmt.Fprintf(dest, "    %s\n", line)
			}
		}
	}
}
