package app_test

import (
	"testing"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

func TestEventHubScopesBySession(t *testing.T) {
	hub := app.NewEventHub()
	a, cancelA := hub.Subscribe("s1")
	defer cancelA()
	b, cancelB := hub.Subscribe("s2")
	defer cancelB()

	hub.Publish(domain.Event{Type: domain.EventSessionExpired, SessionID: "s1"})

	select {
	case event := <-a:
		if event.SessionID != "s1" {
			t.Fatalf("unexpected event %+v", event)
		}
	default:
		t.Fatalf("expected event on s1")
	}
	select {
	case event := <-b:
		t.Fatalf("s2 should not see s1 events, got %+v", event)
	default:
	}
}

func TestEventHubDropsOldestForSlowSubscribers(t *testing.T) {
	hub := app.NewEventHub()
	ch, cancel := hub.Subscribe("s1")
	defer cancel()

	for i := 0; i < 20; i++ {
		hub.Publish(domain.Event{Type: domain.EventAttemptStarted, SessionID: "s1", AttemptID: string(rune('a' + i))})
	}

	var last domain.Event
	n := 0
	for len(ch) > 0 {
		last = <-ch
		n++
	}
	if n != 8 {
		t.Fatalf("expected a full buffer of 8, got %d", n)
	}
	if last.AttemptID != string(rune('a'+19)) {
		t.Fatalf("newest event must be kept, got %q", last.AttemptID)
	}
}

func TestEventHubCancelClosesAndCleansUp(t *testing.T) {
	hub := app.NewEventHub()
	ch, cancel := hub.Subscribe("s1")
	if hub.Subscribers("s1") != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if hub.Subscribers("s1") != 0 {
		t.Fatalf("expected no subscribers after cancel")
	}
	hub.Publish(domain.Event{SessionID: "s1"})
}
