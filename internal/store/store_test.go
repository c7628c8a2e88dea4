package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"anonchat/internal/models"
	"anonchat/internal/storage"
)

func TestSessionLifecycle(t *testing.T) {
	s := New(nil, nil)

	if s.GetSession(1) != nil {
		t.Fatalf("expected no session for fresh user")
	}

	first := models.NewSession(1)
	s.SetSession(1, first)
	if got := s.GetSession(1); got != first {
		t.Fatalf("GetSession returned %#v", got)
	}

	cleared := s.ClearSession(1)
	if cleared != first {
		t.Fatalf("ClearSession should return the prior session")
	}
	if s.GetSession(1) != nil {
		t.Fatalf("session should be gone after clear")
	}
	if s.ClearSession(1) != nil {
		t.Fatalf("second clear should return nil")
	}
}

func TestReplaceReturnsRetiredPrevious(t *testing.T) {
	s := New(nil, nil)

	old := models.NewSession(5)
	old.MessagesCount = 7
	if s.SetSession(5, old) != nil {
		t.Fatalf("first SetSession should have no predecessor")
	}

	prev := s.SetSession(5, models.NewSession(5))
	if prev != old {
		t.Fatalf("SetSession returned %#v, want the replaced session", prev)
	}
	if prev.Active {
		t.Fatalf("previous session should be retired")
	}
	if prev.MessagesCount != 7 {
		t.Fatalf("messages count changed during retirement: %d", prev.MessagesCount)
	}
	if cur := s.GetSession(5); cur == prev || !cur.Active {
		t.Fatalf("current session not replaced: %#v", cur)
	}
}

func TestStatsConcurrentWithReplace(t *testing.T) {
	s := New(nil, nil)
	s.RegisterUser(1)
	s.SetSession(1, models.NewSession(1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			s.SetSession(1, models.NewSession(1))
		}
	}()
	for i := 0; i < 500; i++ {
		s.Stats()
	}
	<-done

	stats := s.Stats()
	if stats.ActiveDialogs != 1 {
		t.Fatalf("active dialogs = %d, want 1", stats.ActiveDialogs)
	}
}

func TestHistoryCap(t *testing.T) {
	session := models.NewSession(1)
	for i := 0; i < 100; i++ {
		session.Append(models.Turn{Role: models.RoleUser, Content: fmt.Sprintf("m%d", i)}, 30)
	}
	if len(session.History) != 30 {
		t.Fatalf("history length = %d, want 30", len(session.History))
	}
	if session.History[29].Content != "m99" {
		t.Fatalf("newest turn lost: %q", session.History[29].Content)
	}
	if session.History[0].Content != "m70" {
		t.Fatalf("oldest kept turn = %q, want m70", session.History[0].Content)
	}
}

func TestIncrementMessagesRequiresSession(t *testing.T) {
	s := New(nil, nil)

	s.IncrementMessages(9)
	if got := s.Stats().Messages24h; got != 0 {
		t.Fatalf("no session, message log should stay empty, got %d", got)
	}

	session := models.NewSession(9)
	s.SetSession(9, session)
	s.IncrementMessages(9)
	s.IncrementMessages(9)

	if session.MessagesCount != 2 {
		t.Fatalf("messages count = %d, want 2", session.MessagesCount)
	}
	if got := s.Stats().Messages24h; got != 2 {
		t.Fatalf("messages24h = %d, want 2", got)
	}
}

func TestStats(t *testing.T) {
	s := New(nil, nil)

	s.RegisterUser(1)
	s.RegisterUser(2)
	s.RegisterUser(2)

	s.SetSession(1, models.NewSession(1))
	s.SetSession(2, models.NewSession(2))
	s.TrackStart()
	s.TrackStart()

	if ended := s.ClearSession(2); ended.Active {
		t.Fatalf("cleared session should be retired")
	}

	stats := s.Stats()
	if stats.TotalUsers != 2 {
		t.Fatalf("total users = %d, want 2", stats.TotalUsers)
	}
	if stats.ActiveDialogs != 1 {
		t.Fatalf("active dialogs = %d, want 1", stats.ActiveDialogs)
	}
	if stats.Starts24h != 2 {
		t.Fatalf("starts = %d, want 2", stats.Starts24h)
	}
}

func TestRollingLogsTrimmedAtRead(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := New(nil, nil, WithClock(func() time.Time { return now }))

	s.SetSession(1, models.NewSession(1))
	s.TrackStart()
	s.IncrementMessages(1)

	now = now.Add(25 * time.Hour)
	stats := s.Stats()
	if stats.Messages24h != 0 || stats.Starts24h != 0 {
		t.Fatalf("events older than 24h should be trimmed: %+v", stats)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	backend := storage.NewFileBackend(dir + "/state.json")

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := New(backend, nil, WithClock(func() time.Time { return now }))
	s.RegisterUser(3)
	s.RegisterUser(1)
	s.RegisterUser(2)
	s.SetSession(1, models.NewSession(1))
	s.TrackStart()
	s.IncrementMessages(1)

	if err := backend.Save(context.Background(), s.snapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored := New(backend, nil, WithClock(func() time.Time { return now }))
	stats := restored.Stats()
	if stats.TotalUsers != 3 {
		t.Fatalf("restored users = %d, want 3", stats.TotalUsers)
	}
	if stats.Messages24h != 1 || stats.Starts24h != 1 {
		t.Fatalf("restored logs wrong: %+v", stats)
	}
}

func TestRunWritesSnapshot(t *testing.T) {
	dir := t.TempDir()
	backend := storage.NewFileBackend(dir + "/state.json")
	s := New(backend, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.RegisterUser(11)
	time.Sleep(2 * saveDebounce)
	cancel()
	<-done

	restored := New(backend, nil)
	if got := restored.Stats().TotalUsers; got != 1 {
		t.Fatalf("writer never persisted the registry, users = %d", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New(nil, nil)

	var wg sync.WaitGroup
	for u := int64(0); u < 8; u++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.RegisterUser(id)
				s.SetSession(id, models.NewSession(id))
				s.IncrementMessages(id)
				s.Stats()
				s.ClearSession(id)
			}
		}(u)
	}
	wg.Wait()

	if got := s.Stats().TotalUsers; got != 8 {
		t.Fatalf("total users = %d, want 8", got)
	}
}
