package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/collector"
	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
)

// ProfileSource wraps one external profiling tool invocation (perf
// record, asprof, jfrconv) as a collector.Source. It is a profile
// source: the scheduler samples it once, at Collect time, by starting
// the tool in the background for the whole record window rather than
// once per tick (Static() returns true, and the periodic loop only
// ticks non-static sources). Finish cancels the tool's context, which makes
// ProfileExecutor.Run send SIGTERM to its process group, and waits for
// it to exit.
type ProfileSource struct {
	tool    string
	args    []string
	session *RecordingSession

	mu     sync.Mutex
	output *RawOutput
	err    error
	done   chan struct{}
	cancel context.CancelFunc
}

// NewProfileSource returns a source that runs tool with args for the
// whole record window, reaped through session when the window ends.
func NewProfileSource(session *RecordingSession, tool string, args []string) *ProfileSource {
	return &ProfileSource{tool: tool, args: args, session: session}
}

func (p *ProfileSource) Name() string    { return "profile_" + p.tool }
func (p *ProfileSource) Static() bool    { return true }
func (p *ProfileSource) IsProfile() bool { return true }

// Collect starts the tool in the background and returns immediately;
// the actual capture happens for the remainder of the record window
// and is reaped by Finish.
func (p *ProfileSource) Collect(ctx context.Context, env collector.Environment) (model.RawRecord, error) {
	if err := p.session.verifyAvailable(p.tool); err != nil {
		return model.RawRecord{}, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.session.track(cancel)

	duration := env.Interval
	go func() {
		defer close(p.done)
		out, err := p.session.executor.Run(runCtx, p.tool, p.args, duration)
		p.mu.Lock()
		p.output, p.err = out, err
		p.mu.Unlock()
	}()

	return model.RawRecord{Timestamp: time.Now(), Payload: []byte(p.tool + " started\n")}, nil
}

// Finish signals the tool's process group to end and blocks until the
// background goroutine started by Collect has observed its exit.
func (p *ProfileSource) Finish(ctx context.Context, env collector.Environment) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	<-p.done
	p.mu.Lock()
	err := p.err
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("executor: %s: %w", p.tool, err)
	}
	return nil
}

// Transform returns the captured stdout as a line-oriented Text
// artifact. records is ignored: the tool's output never passed through
// the raw log, since ProfileSource captures it directly in-process.
func (p *ProfileSource) Transform(records []model.RawRecord, env collector.Environment) (model.Artifact, error) {
	p.mu.Lock()
	out := p.output
	p.mu.Unlock()

	text := &model.Text{}
	if out != nil {
		text.Lines = splitLines(out.Stdout)
	}
	return model.Artifact{Text: text}, nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
