package service

import (
	"context"
	"errors"
	"sync"

	"darna/pkg/logger"
	"darna/pkg/model"
	"darna/pkg/realtime"
)

var ErrIndexClosed = errors.New("conversation index is closed")

type indexEntry struct {
	view model.ConversationView
	seq  uint64
}

// Index is the live conversation list of one viewer. Every fetch takes a
// sequence number when it starts and its result replaces an entry only if
// nothing newer has been applied to that entry.
type Index struct {
	svc      ConversationService
	viewerID string
	log      *logger.Logger

	mu        sync.Mutex
	seq       uint64
	entries   map[string]indexEntry
	removed   map[string]uint64
	closed    bool
	subs      []*realtime.Subscription
	nextID    int
	listeners map[int]func()
}

func NewIndex(svc ConversationService, viewerID string, log *logger.Logger) *Index {
	return &Index{
		svc:       svc,
		viewerID:  viewerID,
		log:       log.Component("conversation_index").With("viewer_id", viewerID),
		entries:   make(map[string]indexEntry),
		removed:   make(map[string]uint64),
		listeners: make(map[int]func()),
	}
}

// Start subscribes to conversation and message changes, then loads the list.
func (x *Index) Start(ctx context.Context, hub *realtime.Hub) error {
	filters := []realtime.Filter{
		{Table: realtime.TableConversations, Match: x.matchConversation},
		{Table: realtime.TableMessages, Match: x.matchMessage},
	}

	subs := make([]*realtime.Subscription, 0, len(filters))
	for _, f := range filters {
		sub, err := hub.Subscribe(f, x.ApplyChangeEvent)
		if err != nil {
			for _, s := range subs {
				s.Unsubscribe()
			}
			return err
		}
		subs = append(subs, sub)
	}

	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		for _, s := range subs {
			s.Unsubscribe()
		}
		return ErrIndexClosed
	}
	x.subs = subs
	x.mu.Unlock()

	return x.Refresh(ctx)
}

func (x *Index) begin() (uint64, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return 0, false
	}
	x.seq++
	return x.seq, true
}

// Refresh reloads every conversation of the viewer.
func (x *Index) Refresh(ctx context.Context) error {
	seq, ok := x.begin()
	if !ok {
		return ErrIndexClosed
	}

	views, err := x.svc.Refresh(ctx, x.viewerID)
	if err != nil {
		return err
	}

	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return nil
	}
	seen := make(map[string]struct{}, len(views))
	for _, v := range views {
		seen[v.ID] = struct{}{}
		x.putLocked(v, seq)
	}
	for id, e := range x.entries {
		if _, ok := seen[id]; !ok && e.seq < seq {
			delete(x.entries, id)
		}
	}
	listeners := x.listenersLocked()
	x.mu.Unlock()

	notifyAll(listeners)
	return nil
}

// refreshOne re-derives one conversation from the store.
func (x *Index) refreshOne(ctx context.Context, conversationID string) {
	seq, ok := x.begin()
	if !ok {
		return
	}

	view, err := x.svc.RefreshOne(ctx, x.viewerID, conversationID)
	if err != nil {
		if ctx.Err() == nil {
			x.log.Warn("Conversation refresh failed", "conversation_id", conversationID, "error", err)
		}
		return
	}

	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return
	}
	applied := x.putLocked(*view, seq)
	listeners := x.listenersLocked()
	x.mu.Unlock()

	if applied {
		notifyAll(listeners)
	}
}

func (x *Index) putLocked(v model.ConversationView, seq uint64) bool {
	if cur, ok := x.entries[v.ID]; ok && cur.seq > seq {
		return false
	}
	if gone, ok := x.removed[v.ID]; ok && gone > seq {
		return false
	}
	x.entries[v.ID] = indexEntry{view: v, seq: seq}
	return true
}

func (x *Index) drop(conversationID string) {
	seq, ok := x.begin()
	if !ok {
		return
	}

	x.mu.Lock()
	delete(x.entries, conversationID)
	x.removed[conversationID] = seq
	listeners := x.listenersLocked()
	x.mu.Unlock()

	notifyAll(listeners)
}

func (x *Index) has(conversationID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.entries[conversationID]
	return ok
}

func (x *Index) matchConversation(ev realtime.ChangeEvent) bool {
	if ev.Op == realtime.OpDelete {
		return x.has(ev.Key)
	}
	var conv model.Conversation
	if err := ev.Decode(&conv); err != nil {
		return false
	}
	return conv.HasParticipant(x.viewerID)
}

// Messages are never deleted by this service, so a message delete is rare
// enough to answer with a full refresh.
func (x *Index) matchMessage(ev realtime.ChangeEvent) bool {
	if ev.Op == realtime.OpDelete {
		return true
	}
	var msg model.Message
	if err := ev.Decode(&msg); err != nil {
		return false
	}
	return x.has(msg.ConversationID)
}

// ApplyChangeEvent patches the index with one conversation or message change.
func (x *Index) ApplyChangeEvent(ctx context.Context, ev realtime.ChangeEvent) {
	switch {
	case ev.Op == realtime.OpResync,
		ev.Table == realtime.TableMessages && ev.Op == realtime.OpDelete:
		if err := x.Refresh(ctx); err != nil && !errors.Is(err, ErrIndexClosed) && ctx.Err() == nil {
			x.log.Warn("Resync failed", "error", err)
		}

	case ev.Table == realtime.TableConversations && ev.Op == realtime.OpDelete:
		x.drop(ev.Key)

	case ev.Table == realtime.TableConversations:
		x.refreshOne(ctx, ev.Key)

	case ev.Table == realtime.TableMessages:
		var msg model.Message
		if err := ev.Decode(&msg); err != nil {
			x.log.Warn("Dropping undecodable message event", "event_id", ev.ID, "error", err)
			return
		}
		x.refreshOne(ctx, msg.ConversationID)
	}
}

// Conversations returns the views, most recent first.
func (x *Index) Conversations() []model.ConversationView {
	x.mu.Lock()
	views := make([]model.ConversationView, 0, len(x.entries))
	for _, e := range x.entries {
		views = append(views, e.view)
	}
	x.mu.Unlock()

	SortViews(views)
	return views
}

// TotalUnread sums unread counts over the current views.
func (x *Index) TotalUnread() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	total := 0
	for _, e := range x.entries {
		total += e.view.UnreadCount
	}
	return total
}

func (x *Index) OnChange(fn func()) func() {
	x.mu.Lock()
	defer x.mu.Unlock()
	id := x.nextID
	x.nextID++
	x.listeners[id] = fn
	return func() {
		x.mu.Lock()
		delete(x.listeners, id)
		x.mu.Unlock()
	}
}

// Close releases both subscriptions. In-flight fetches are cancelled and
// their results dropped.
func (x *Index) Close() {
	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return
	}
	x.closed = true
	subs := x.subs
	x.subs = nil
	x.listeners = map[int]func(){}
	x.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}

func (x *Index) listenersLocked() []func() {
	out := make([]func(), 0, len(x.listeners))
	for _, fn := range x.listeners {
		out = append(out, fn)
	}
	return out
}

func notifyAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
