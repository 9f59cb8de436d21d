package service

import (
	"context"
	"testing"
	"time"

	"darna/pkg/logger"
	"darna/pkg/model"
	"darna/pkg/realtime"
)

func startStream(t *testing.T, f *messageFixture, viewer string) (*Stream, *realtime.Hub) {
	t.Helper()
	hub := realtime.NewHub(16, logger.Discard())
	t.Cleanup(hub.Close)

	stream := NewStream(f.svc, "conv-1", viewer, logger.Discard())
	if err := stream.Start(context.Background(), hub); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(stream.Close)
	return stream, hub
}

func publishMessage(t *testing.T, hub *realtime.Hub, op realtime.Op, msg model.Message) {
	t.Helper()
	ev, err := realtime.NewEvent(realtime.TableMessages, op, msg.ID, msg)
	if err != nil {
		t.Fatal(err)
	}
	hub.Publish(ev)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestStream_SendShowsProvisionalThenConfirmed(t *testing.T) {
	f := newMessageFixture()
	stream, _ := startStream(t, f, "guest-1")

	var sawPending bool
	stream.OnChange(func() {
		for _, m := range stream.Messages() {
			if m.Pending {
				sawPending = true
			}
		}
	})

	msg, err := stream.Send(context.Background(), "Is parking included?")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !sawPending {
		t.Errorf("expected a provisional entry before confirmation")
	}

	msgs := stream.Messages()
	if len(msgs) != 1 || msgs[0].ID != msg.ID || msgs[0].Pending {
		t.Fatalf("expected only the confirmed message, got %+v", msgs)
	}
}

func TestStream_EchoBeforeConfirmationIsNotDuplicated(t *testing.T) {
	f := newMessageFixture()
	stream, hub := startStream(t, f, "guest-1")

	echoed := make(chan struct{})
	f.repo.afterCreate = func(stored model.Message) {
		publishMessage(t, hub, realtime.OpInsert, stored)
		eventually(t, func() bool {
			for _, m := range stream.Messages() {
				if m.ID == stored.ID {
					return true
				}
			}
			return false
		})
		close(echoed)
	}

	msg, err := stream.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	<-echoed

	msgs := stream.Messages()
	if len(msgs) != 1 || msgs[0].ID != msg.ID {
		t.Fatalf("expected exactly one message, got %+v", msgs)
	}
}

func TestStream_FailedSendRemovesProvisional(t *testing.T) {
	f := newMessageFixture()
	stream, _ := startStream(t, f, "guest-1")

	if _, err := stream.Send(context.Background(), "   "); err == nil {
		t.Fatal("expected validation error")
	}
	if got := len(stream.Messages()); got != 0 {
		t.Errorf("provisional entry should be removed, got %d messages", got)
	}
}

func TestStream_StatusOnlyMovesForward(t *testing.T) {
	f := newMessageFixture()
	incoming := f.send(t, "owner-1", "Welcome!")
	stream, hub := startStream(t, f, "guest-1")

	if got := stream.UnreadCount(); got != 1 {
		t.Fatalf("expected 1 unread, got %d", got)
	}

	seen := *incoming
	seen.Status = model.MessageSeen
	publishMessage(t, hub, realtime.OpUpdate, seen)
	eventually(t, func() bool { return stream.UnreadCount() == 0 })

	stale := *incoming
	stale.Status = model.MessageDelivered
	publishMessage(t, hub, realtime.OpUpdate, stale)

	marker := model.Message{ID: "msg-marker", ConversationID: "conv-1", SenderID: "guest-1", Content: "x", Status: model.MessageSent, CreatedAt: time.Now()}
	publishMessage(t, hub, realtime.OpInsert, marker)
	eventually(t, func() bool { return len(stream.Messages()) == 2 })

	if got := stream.Messages()[0].Status; got != model.MessageSeen {
		t.Errorf("status regressed to %s", got)
	}
}

func TestStream_MarkSeenUpdatesLocally(t *testing.T) {
	f := newMessageFixture()
	f.send(t, "owner-1", "one")
	f.send(t, "owner-1", "two")
	stream, _ := startStream(t, f, "guest-1")

	if err := stream.MarkSeen(context.Background()); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}
	if got := stream.UnreadCount(); got != 0 {
		t.Errorf("expected 0 unread, got %d", got)
	}
	if err := stream.MarkSeen(context.Background()); err != nil {
		t.Fatalf("second MarkSeen() error = %v", err)
	}
}

func TestStream_MarkSeenLeavesLaterArrivalsUnread(t *testing.T) {
	f := newMessageFixture()
	f.send(t, "owner-1", "one")
	stream, hub := startStream(t, f, "guest-1")

	var late model.Message
	f.repo.afterMarkSeen = func() {
		f.repo.afterMarkSeen = nil
		late = *f.send(t, "owner-1", "are you still there?")
		publishMessage(t, hub, realtime.OpInsert, late)
		eventually(t, func() bool {
			for _, m := range stream.Messages() {
				if m.ID == late.ID {
					return true
				}
			}
			return false
		})
	}

	if err := stream.MarkSeen(context.Background()); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}

	stored, err := f.svc.Load(context.Background(), "conv-1", "guest-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := model.CountUnread(stored, "guest-1")
	if want != 1 {
		t.Fatalf("expected the late message unread in the store, got %d", want)
	}
	if got := stream.UnreadCount(); got != want {
		t.Errorf("stream unread = %d, store unread = %d", got, want)
	}
	for _, m := range stream.Messages() {
		if m.ID == late.ID && m.Status != model.MessageSent {
			t.Errorf("late message advanced locally to %s", m.Status)
		}
	}
}

func TestStream_IgnoresOtherConversations(t *testing.T) {
	f := newMessageFixture()
	stream, hub := startStream(t, f, "guest-1")

	publishMessage(t, hub, realtime.OpInsert, model.Message{ID: "x1", ConversationID: "conv-2", SenderID: "guest-5", Content: "hey", Status: model.MessageSent})
	publishMessage(t, hub, realtime.OpInsert, model.Message{ID: "x2", ConversationID: "conv-1", SenderID: "owner-1", Content: "hey", Status: model.MessageSent, CreatedAt: time.Now()})

	eventually(t, func() bool { return len(stream.Messages()) == 1 })
	if stream.Messages()[0].ID != "x2" {
		t.Errorf("message from another conversation leaked in")
	}
}

func TestStream_CloseReleasesSubscription(t *testing.T) {
	f := newMessageFixture()
	stream, hub := startStream(t, f, "guest-1")

	stream.Close()
	if hub.Len() != 0 {
		t.Errorf("expected subscription released, got %d", hub.Len())
	}
	if _, err := stream.Send(context.Background(), "late"); err != ErrStreamClosed {
		t.Errorf("Send after Close = %v", err)
	}
}
