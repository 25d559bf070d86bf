package node

import (
	"errors"
	"testing"
)

type fakeService struct {
	name     string
	startErr error
	stopErr  error
	calls    *[]string
}

func (s *fakeService) Start() error {
	*s.calls = append(*s.calls, "start:"+s.name)
	return s.startErr
}

func (s *fakeService) Stop() error {
	*s.calls = append(*s.calls, "stop:"+s.name)
	return s.stopErr
}

func (s *fakeService) Name() string { return s.name }

func TestLifecycleStartStopOrder(t *testing.T) {
	var calls []string
	l := NewLifecycle(nil)
	for _, reg := range []struct {
		name     string
		priority int
	}{
		{"b", 20},
		{"a", 10},
		{"c", 30},
	} {
		if err := l.Register(&fakeService{name: reg.name, calls: &calls}, reg.priority); err != nil {
			t.Fatalf("Register(%s): %v", reg.name, err)
		}
	}

	if err := l.StartAll(); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if err := l.StopAll(); err != nil {
		t.Fatalf("StopAll: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %s, want %s", i, calls[i], want[i])
		}
	}
}

func TestLifecycleStartRollback(t *testing.T) {
	var calls []string
	l := NewLifecycle(nil)
	boom := errors.New("boom")
	l.Register(&fakeService{name: "a", calls: &calls}, 10)
	l.Register(&fakeService{name: "b", startErr: boom, calls: &calls}, 20)
	l.Register(&fakeService{name: "c", calls: &calls}, 30)

	err := l.StartAll()
	if !errors.Is(err, boom) {
		t.Fatalf("StartAll error = %v, want %v", err, boom)
	}

	want := []string{"start:a", "start:b", "stop:a"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %s, want %s", i, calls[i], want[i])
		}
	}
	if l.Running("a") || l.Running("b") || l.Running("c") {
		t.Error("no service should be running after rollback")
	}
}

func TestLifecycleDuplicateName(t *testing.T) {
	var calls []string
	l := NewLifecycle(nil)
	if err := l.Register(&fakeService{name: "dup", calls: &calls}, 1); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := l.Register(&fakeService{name: "dup", calls: &calls}, 2); err == nil {
		t.Fatal("second Register should fail")
	}
}

func TestLifecycleRunning(t *testing.T) {
	var calls []string
	l := NewLifecycle(nil)
	l.Register(&fakeService{name: "svc", calls: &calls}, 1)

	if l.Running("svc") {
		t.Error("service running before StartAll")
	}
	if err := l.StartAll(); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if !l.Running("svc") {
		t.Error("service not running after StartAll")
	}
	if l.Running("missing") {
		t.Error("unknown service reported running")
	}
	if err := l.StopAll(); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if l.Running("svc") {
		t.Error("service still running after StopAll")
	}
}

func TestLifecycleStopCollectsErrors(t *testing.T) {
	var calls []string
	l := NewLifecycle(nil)
	fail := errors.New("stop failed")
	l.Register(&fakeService{name: "a", stopErr: fail, calls: &calls}, 10)
	l.Register(&fakeService{name: "b", calls: &calls}, 20)

	if err := l.StartAll(); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	err := l.StopAll()
	if !errors.Is(err, fail) {
		t.Fatalf("StopAll error = %v, want %v", err, fail)
	}
	// b must still have been stopped despite a's failure.
	found := false
	for _, c := range calls {
		if c == "stop:b" {
			found = true
		}
	}
	if !found {
		t.Error("service b was not stopped")
	}
}
