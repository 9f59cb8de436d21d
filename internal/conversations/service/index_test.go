package service

import (
	"context"
	"testing"
	"time"

	"darna/pkg/logger"
	"darna/pkg/model"
	"darna/pkg/realtime"
)

type indexFixture struct {
	repo    *memoryConversationRepository
	msgs    *memoryMessages
	hub     *realtime.Hub
	index   *Index
	changed chan struct{}
}

func newIndexFixture(t *testing.T, viewer string) *indexFixture {
	t.Helper()
	f := &indexFixture{
		repo:    newMemoryConversationRepository(),
		msgs:    newMemoryMessages(),
		hub:     realtime.NewHub(16, logger.Discard()),
		changed: make(chan struct{}, 32),
	}
	t.Cleanup(f.hub.Close)

	f.repo.add(model.Conversation{ID: "conv-a", ClientID: "guest-1", OwnerID: viewer, LastMessageAt: base})
	for i, id := range []string{"m1", "m2", "m3"} {
		f.msgs.add(message(id, "conv-a", "guest-1", model.MessageSent, i))
	}

	svc := NewConversationService(f.repo, f.msgs, &mockProfiles{}, testConfig())
	f.index = NewIndex(svc, viewer, logger.Discard())
	if err := f.index.Start(context.Background(), f.hub); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(f.index.Close)
	f.index.OnChange(func() { f.changed <- struct{}{} })
	return f
}

func (f *indexFixture) publish(t *testing.T, table string, op realtime.Op, key string, record any) {
	t.Helper()
	ev, err := realtime.NewEvent(table, op, key, record)
	if err != nil {
		t.Fatal(err)
	}
	f.hub.Publish(ev)
}

func (f *indexFixture) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.changed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for index update")
	}
}

// Scenario: three unread messages from the counterpart, then the viewer opens
// the conversation.
func TestIndex_UnreadFollowsMarkSeen(t *testing.T) {
	f := newIndexFixture(t, "owner-1")
	agg := NewAggregator(f.index)

	if got := agg.Count(); got != 3 {
		t.Fatalf("expected 3 unread, got %d", got)
	}

	totals := make(chan int, 4)
	agg.OnChange(func(total int) { totals <- total })

	f.msgs.markSeen("conv-a", "owner-1")
	seen := message("m3", "conv-a", "guest-1", model.MessageSeen, 2)
	f.publish(t, realtime.TableMessages, realtime.OpUpdate, "m3", seen)
	f.wait(t)

	if got := agg.Count(); got != 0 {
		t.Errorf("expected 0 unread after mark seen, got %d", got)
	}
	select {
	case total := <-totals:
		if total != 0 {
			t.Errorf("aggregator reported %d", total)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("aggregator did not report the change")
	}

	f.msgs.markSeen("conv-a", "owner-1")
	f.publish(t, realtime.TableMessages, realtime.OpUpdate, "m3", seen)
	f.wait(t)
	if got := agg.Count(); got != 0 {
		t.Errorf("expected unread to stay 0, got %d", got)
	}
}

func TestIndex_NewConversationAppears(t *testing.T) {
	f := newIndexFixture(t, "owner-1")

	conv := model.Conversation{ID: "conv-b", ClientID: "guest-2", OwnerID: "owner-1", LastMessageAt: base.Add(time.Hour)}
	f.repo.add(conv)
	f.publish(t, realtime.TableConversations, realtime.OpInsert, "conv-b", conv)
	f.wait(t)

	views := f.index.Conversations()
	if len(views) != 2 || views[0].ID != "conv-b" {
		t.Fatalf("expected conv-b first, got %+v", views)
	}

	f.publish(t, realtime.TableConversations, realtime.OpDelete, "conv-b", nil)
	f.wait(t)
	if got := len(f.index.Conversations()); got != 1 {
		t.Errorf("expected deleted conversation dropped, got %d", got)
	}
}

func TestIndex_IgnoresForeignConversations(t *testing.T) {
	f := newIndexFixture(t, "owner-1")

	conv := model.Conversation{ID: "conv-z", ClientID: "guest-8", OwnerID: "owner-9"}
	f.publish(t, realtime.TableConversations, realtime.OpInsert, "conv-z", conv)
	f.publish(t, realtime.TableMessages, realtime.OpInsert, "mz", message("mz", "conv-z", "guest-8", model.MessageSent, 1))

	select {
	case <-f.changed:
		t.Fatal("foreign events must not reach the index")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestIndex_CloseReleasesAndFreezes(t *testing.T) {
	f := newIndexFixture(t, "owner-1")
	if f.hub.Len() != 2 {
		t.Fatalf("expected two subscriptions, got %d", f.hub.Len())
	}

	f.index.Close()
	if f.hub.Len() != 0 {
		t.Errorf("expected subscriptions released, got %d", f.hub.Len())
	}

	f.msgs.add(message("m9", "conv-a", "guest-1", model.MessageSent, 30))
	f.index.ApplyChangeEvent(context.Background(), realtime.ChangeEvent{Table: realtime.TableConversations, Op: realtime.OpUpdate, Key: "conv-a"})

	if got := f.index.TotalUnread(); got != 3 {
		t.Errorf("closed index must not apply results, unread = %d", got)
	}
	if err := f.index.Refresh(context.Background()); err != ErrIndexClosed {
		t.Errorf("Refresh after Close = %v", err)
	}
}
