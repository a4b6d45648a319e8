// Package runtimetest provides an in-memory ContainerRuntime for tests.
package runtimetest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/modelserving/tgi-container-tests/runtime"
)

// BuildCall records one BuildImage invocation. Because the launcher deletes
// the build context as soon as the build returns, the fake snapshots the
// context files at call time.
type BuildCall struct {
	ContextDir   string
	ContextFiles map[string]string
	Dockerfile   string
	Tag          string
}

// FakeRuntime is a scriptable in-memory ContainerRuntime.
type FakeRuntime struct {
	mu sync.Mutex

	// BuildErr, if set, makes BuildImage fail.
	BuildErr error
	// RunErr, if set, makes RunContainer fail.
	RunErr error
	// OnRun, if set, is called with each container RunContainer creates,
	// before it is returned. Tests use it to script crashes.
	OnRun func(*FakeContainer)

	builds        []BuildCall
	runs          []runtime.RunConfig
	containers    map[string]*FakeContainer
	removedImages []string
	nextImageID   int
}

func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{containers: map[string]*FakeContainer{}}
}

func (f *FakeRuntime) BuildImage(ctx context.Context, contextDir, dockerfile, tag string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := BuildCall{ContextDir: contextDir, ContextFiles: map[string]string{}, Dockerfile: dockerfile, Tag: tag}
	_ = filepath.Walk(contextDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(contextDir, path)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		call.ContextFiles[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	f.builds = append(f.builds, call)
	if f.BuildErr != nil {
		return "", "", f.BuildErr
	}
	f.nextImageID++
	return fmt.Sprintf("sha256:fake%04d", f.nextImageID), "build ok\n", nil
}

func (f *FakeRuntime) RunContainer(ctx context.Context, cfg runtime.RunConfig) (runtime.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RunErr != nil {
		return nil, f.RunErr
	}
	f.runs = append(f.runs, cfg)
	c := NewFakeContainer(cfg.Name)
	f.containers[cfg.Name] = c
	if f.OnRun != nil {
		f.OnRun(c)
	}
	return c, nil
}

func (f *FakeRuntime) GetContainer(ctx context.Context, name string) (runtime.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok || c.Removed() {
		return nil, fmt.Errorf("container %s: %w", name, runtime.ErrNotFound)
	}
	return c, nil
}

func (f *FakeRuntime) RemoveImage(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removedImages = append(f.removedImages, ref)
	return nil
}

// AddContainer pre-registers a container, as if left over from a prior run.
func (f *FakeRuntime) AddContainer(c *FakeContainer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[c.name] = c
}

func (f *FakeRuntime) Builds() []BuildCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]BuildCall(nil), f.builds...)
}

func (f *FakeRuntime) Runs() []runtime.RunConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runtime.RunConfig(nil), f.runs...)
}

func (f *FakeRuntime) RemovedImages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removedImages...)
}

// FakeContainer is a scriptable container handle. Its status defaults to
// running; tests can change it or inject errors at any point.
type FakeContainer struct {
	mu   sync.Mutex
	name string

	status    string
	statusErr error
	stopErr   error
	waitErr   error
	removeErr error

	logLines []logLine

	stops    int
	waits    int
	removes  int
	removed  bool
	Timeline []string
}

type logLine struct {
	at   time.Time
	text string
}

func NewFakeContainer(name string) *FakeContainer {
	return &FakeContainer{name: name, status: runtime.StatusRunning}
}

func (c *FakeContainer) Name() string { return c.name }

func (c *FakeContainer) Status(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statusErr != nil {
		return "", c.statusErr
	}
	return c.status, nil
}

func (c *FakeContainer) Logs(ctx context.Context, since time.Time) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []byte
	for _, l := range c.logLines {
		if !l.at.Before(since) {
			out = append(out, l.text...)
		}
	}
	return out, nil
}

func (c *FakeContainer) Stop(ctx context.Context, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	c.Timeline = append(c.Timeline, "stop")
	if c.stopErr != nil {
		return c.stopErr
	}
	c.status = runtime.StatusExited
	return nil
}

func (c *FakeContainer) Wait(ctx context.Context, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits++
	c.Timeline = append(c.Timeline, "wait")
	return c.waitErr
}

func (c *FakeContainer) Remove(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removes++
	c.Timeline = append(c.Timeline, "remove")
	if c.removeErr != nil {
		return c.removeErr
	}
	c.removed = true
	return nil
}

func (c *FakeContainer) SetStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

func (c *FakeContainer) SetStatusErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusErr = err
}

func (c *FakeContainer) SetStopErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopErr = err
}

func (c *FakeContainer) SetWaitErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waitErr = err
}

func (c *FakeContainer) SetRemoveErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeErr = err
}

// AppendLog records a log line with the given timestamp, so tests can verify
// the probe's log watermark behavior.
func (c *FakeContainer) AppendLog(at time.Time, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logLines = append(c.logLines, logLine{at: at, text: text})
}

func (c *FakeContainer) Stops() int    { return c.counter(&c.stops) }
func (c *FakeContainer) Waits() int    { return c.counter(&c.waits) }
func (c *FakeContainer) Removes() int  { return c.counter(&c.removes) }
func (c *FakeContainer) Removed() bool { c.mu.Lock(); defer c.mu.Unlock(); return c.removed }

func (c *FakeContainer) counter(n *int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *n
}
