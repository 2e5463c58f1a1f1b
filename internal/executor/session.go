package executor

import (
	"fmt"
	"sync"
)

// RecordingSession owns every external profiling tool child process
// started during one record window. It replaces a process-wide
// registry (§9 redesign flag) with a value scoped to the window: each
// ProfileSource registers its cancel function on start, and the
// session cancels every handle it still holds when the window ends,
// in registration order, so no child outlives its record invocation.
type RecordingSession struct {
	executor *ProfileExecutor

	mu      sync.Mutex
	cancels []func()
}

// NewRecordingSession returns a session backed by e. Callers construct
// one RecordingSession per record invocation and pass it to every
// ProfileSource registered for that window.
func NewRecordingSession(e *ProfileExecutor) *RecordingSession {
	return &RecordingSession{executor: e}
}

// track registers cancel, the function that ends one running tool's
// context, so Close can reach it even if the source that started it
// is never asked to Finish.
func (s *RecordingSession) track(cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels = append(s.cancels, cancel)
}

// Close cancels every still-tracked tool. ProfileExecutor.Run's own
// SIGTERM -> wait -> SIGKILL escalation does the actual reaping; Close
// only triggers it. Safe to call more than once.
func (s *RecordingSession) Close() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// verifyAvailable returns an error if tool cannot be resolved on this
// host, wrapped per the package's error convention.
func (s *RecordingSession) verifyAvailable(tool string) error {
	if !s.executor.Available(tool) {
		return fmt.Errorf("executor: tool %q not available", tool)
	}
	return nil
}
