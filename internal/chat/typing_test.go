package chat

import (
	"testing"
	"time"

	"github.com/tullo/messenger/internal/models"
)

func TestKeystrokeEmitsStartOnceThenStop(t *testing.T) {
	sock := &fakeEmitter{connected: true}
	tr := NewTypingTracker(sock, 40*time.Millisecond)
	tr.SetActive("r1")

	for i := 0; i < 4; i++ {
		tr.Keystroke()
		time.Sleep(10 * time.Millisecond)
	}

	if got := len(sock.byName(models.EventTypingStart)); got != 1 {
		t.Fatalf("expected one typing_start, got %d", got)
	}
	if got := len(sock.byName(models.EventTypingStop)); got != 0 {
		t.Fatalf("typing_stop fired too early: %d", got)
	}

	time.Sleep(80 * time.Millisecond)
	if got := len(sock.byName(models.EventTypingStop)); got != 1 {
		t.Fatalf("expected one typing_stop after idle, got %d", got)
	}

	// next keystroke after idle starts a new cycle
	tr.Keystroke()
	if got := len(sock.byName(models.EventTypingStart)); got != 2 {
		t.Fatalf("expected a fresh typing_start, got %d", got)
	}
}

func TestSwitchingConversationFlushesStop(t *testing.T) {
	sock := &fakeEmitter{connected: true}
	tr := NewTypingTracker(sock, time.Minute)
	tr.SetActive("r1")
	tr.Keystroke()

	tr.SetActive("r2")
	if got := len(sock.byName(models.EventTypingStop)); got != 1 {
		t.Fatalf("expected immediate typing_stop on switch, got %d", got)
	}
}

func TestRemoteTypingOnlyForActiveRoom(t *testing.T) {
	tr := NewTypingTracker(&fakeEmitter{connected: true}, time.Minute)
	tr.SetActive("r1")

	tr.ApplyRemote(models.TypingEvent{UserID: "u1", RoomID: "r1"}, true)
	tr.ApplyRemote(models.TypingEvent{UserID: "u2", RoomID: "other"}, true)

	users := tr.TypingUsers()
	if len(users) != 1 || users[0] != "u1" {
		t.Fatalf("expected only the active room's typer, got %v", users)
	}

	tr.ApplyRemote(models.TypingEvent{UserID: "u1", RoomID: "r1"}, false)
	if len(tr.TypingUsers()) != 0 {
		t.Fatal("stop event did not clear the typer")
	}
}

func TestSetActiveClearsRemoteState(t *testing.T) {
	tr := NewTypingTracker(&fakeEmitter{connected: true}, time.Minute)
	tr.SetActive("r1")
	tr.ApplyRemote(models.TypingEvent{UserID: "u1", RoomID: "r1"}, true)

	tr.SetActive("r2")
	if len(tr.TypingUsers()) != 0 {
		t.Fatal("remote typing state leaked across conversations")
	}
}
