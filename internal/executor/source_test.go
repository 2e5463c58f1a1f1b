package executor

import "testing"

func TestSplitLines(t *testing.T) {
	cases := map[string][]string{
		"":            nil,
		"a\n":         {"a"},
		"a\nb":        {"a", "b"},
		"a\nb\n":      {"a", "b"},
		"one\ntwo\nx": {"one", "two", "x"},
	}
	for in, want := range cases {
		got := splitLines(in)
		if len(got) != len(want) {
			t.Fatalf("splitLines(%q) = %v, want %v", in, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("splitLines(%q)[%d] = %q, want %q", in, i, got[i], want[i])
			}
		}
	}
}

func TestProfileSourceNameAndKind(t *testing.T) {
	session := NewRecordingSession(NewProfileExecutor(false))
	src := NewProfileSource(session, "perf", []string{"record"})
	if src.Name() != "profile_perf" {
		t.Errorf("Name() = %q", src.Name())
	}
	if !src.Static() || !src.IsProfile() {
		t.Errorf("Static()=%v IsProfile()=%v, want true,true", src.Static(), src.IsProfile())
	}
}

func TestRecordingSessionCloseIsIdempotent(t *testing.T) {
	session := NewRecordingSession(NewProfileExecutor(false))
	called := 0
	session.track(func() { called++ })
	session.Close()
	session.Close()
	if called != 1 {
		t.Errorf("cancel called %d times, want 1", called)
	}
}
