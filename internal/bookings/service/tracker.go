package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"darna/pkg/logger"
	"darna/pkg/model"
	"darna/pkg/realtime"
)

var ErrTrackerClosed = errors.New("booking request tracker is closed")

type trackedChange struct {
	req     *model.BookingRequest
	deleted string
}

// Tracker keeps the booking requests a viewer owns and has made up to date
// with the change feed.
type Tracker struct {
	svc      BookingRequestService
	viewerID string
	log      *logger.Logger

	mu         sync.Mutex
	owned      []model.BookingRequest
	requested  []model.BookingRequest
	generation uint64
	refreshing bool
	replay     []trackedChange
	closed     bool
	sub        *realtime.Subscription
	nextID     int
	listeners  map[int]func()
}

func NewTracker(svc BookingRequestService, viewerID string, log *logger.Logger) *Tracker {
	return &Tracker{
		svc:       svc,
		viewerID:  viewerID,
		log:       log.Component("booking_tracker").With("viewer_id", viewerID),
		listeners: make(map[int]func()),
	}
}

// Start subscribes to booking request changes and loads the initial lists.
// Subscribing first means nothing committed during the load is missed.
func (t *Tracker) Start(ctx context.Context, hub *realtime.Hub) error {
	sub, err := hub.Subscribe(realtime.Filter{
		Table: realtime.TableBookingRequests,
		Match: t.matches,
	}, t.ApplyChangeEvent)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		sub.Unsubscribe()
		return ErrTrackerClosed
	}
	t.sub = sub
	t.mu.Unlock()

	return t.Refresh(ctx)
}

// Refresh reloads both lists. A result is discarded when a newer refresh
// started meanwhile or the tracker was closed.
func (t *Tracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTrackerClosed
	}
	t.generation++
	gen := t.generation
	t.refreshing = true
	t.replay = nil
	t.mu.Unlock()

	owned, err := t.svc.ListForOwner(ctx, t.viewerID)
	if err != nil {
		t.finishRefresh(gen)
		return err
	}
	requested, err := t.svc.ListForRequester(ctx, t.viewerID)
	if err != nil {
		t.finishRefresh(gen)
		return err
	}

	t.mu.Lock()
	if t.closed || gen != t.generation {
		t.mu.Unlock()
		return nil
	}
	t.owned = owned
	t.requested = requested
	for _, c := range t.replay {
		t.applyLocked(c)
	}
	t.replay = nil
	t.refreshing = false
	listeners := t.listenersLocked()
	t.mu.Unlock()

	notifyAll(listeners)
	return nil
}

func (t *Tracker) finishRefresh(gen uint64) {
	t.mu.Lock()
	if gen == t.generation {
		t.refreshing = false
		t.replay = nil
	}
	t.mu.Unlock()
}

func (t *Tracker) matches(ev realtime.ChangeEvent) bool {
	if ev.Op == realtime.OpDelete {
		t.mu.Lock()
		defer t.mu.Unlock()
		return indexOf(t.owned, ev.Key) >= 0 || indexOf(t.requested, ev.Key) >= 0
	}
	var req model.BookingRequest
	if err := ev.Decode(&req); err != nil {
		return false
	}
	return req.HasParticipant(t.viewerID)
}

// ApplyChangeEvent patches the lists with one booking request change.
func (t *Tracker) ApplyChangeEvent(ctx context.Context, ev realtime.ChangeEvent) {
	var change trackedChange
	switch ev.Op {
	case realtime.OpResync:
		if err := t.Refresh(ctx); err != nil && !errors.Is(err, ErrTrackerClosed) {
			t.log.Warn("Resync failed", "error", err)
		}
		return
	case realtime.OpDelete:
		change.deleted = ev.Key
	default:
		var req model.BookingRequest
		if err := ev.Decode(&req); err != nil {
			t.log.Warn("Dropping undecodable booking request event", "event_id", ev.ID, "error", err)
			return
		}
		if req.ID == "" {
			req.ID = ev.Key
		}
		if !req.HasParticipant(t.viewerID) {
			return
		}
		t.carryEnrichment(ctx, &req)
		change.req = &req
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.applyLocked(change)
	if t.refreshing {
		t.replay = append(t.replay, change)
	}
	listeners := t.listenersLocked()
	t.mu.Unlock()

	notifyAll(listeners)
}

// carryEnrichment reuses summaries already attached to the tracked copy and
// fetches them only for requests seen for the first time.
func (t *Tracker) carryEnrichment(ctx context.Context, req *model.BookingRequest) {
	t.mu.Lock()
	var prev *model.BookingRequest
	if i := indexOf(t.owned, req.ID); i >= 0 {
		prev = &t.owned[i]
	} else if i := indexOf(t.requested, req.ID); i >= 0 {
		prev = &t.requested[i]
	}
	if prev != nil {
		req.Property = prev.Property
		req.Counterpart = prev.Counterpart
	}
	t.mu.Unlock()

	if prev == nil {
		batch := []model.BookingRequest{*req}
		t.svc.Enrich(ctx, t.viewerID, batch)
		*req = batch[0]
	}
}

func (t *Tracker) applyLocked(c trackedChange) {
	if c.deleted != "" {
		t.owned = remove(t.owned, c.deleted)
		t.requested = remove(t.requested, c.deleted)
		return
	}
	if c.req.OwnerID == t.viewerID {
		t.owned = upsertFresher(t.owned, *c.req)
	}
	if c.req.RequesterID == t.viewerID {
		t.requested = upsertFresher(t.requested, *c.req)
	}
}

// olderThan reports whether incoming would move a tracked row backwards.
// Replayed changes can predate the list read that followed them.
func olderThan(incoming, tracked model.BookingRequest) bool {
	if tracked.Status.IsTerminal() && !incoming.Status.IsTerminal() {
		return true
	}
	return tracked.UpdatedAt.After(incoming.UpdatedAt)
}

// Owned returns the requests made for the viewer's properties, newest first.
func (t *Tracker) Owned() []model.BookingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.BookingRequest(nil), t.owned...)
}

// Requested returns the requests the viewer made, newest first.
func (t *Tracker) Requested() []model.BookingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.BookingRequest(nil), t.requested...)
}

// OnChange registers fn to run after every applied change. The returned func
// removes it.
func (t *Tracker) OnChange(fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// Close releases the subscription. Results arriving afterwards are dropped.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	sub := t.sub
	t.listeners = map[int]func(){}
	t.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

func (t *Tracker) listenersLocked() []func() {
	out := make([]func(), 0, len(t.listeners))
	for _, fn := range t.listeners {
		out = append(out, fn)
	}
	return out
}

func notifyAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

func indexOf(reqs []model.BookingRequest, id string) int {
	for i := range reqs {
		if reqs[i].ID == id {
			return i
		}
	}
	return -1
}

func remove(reqs []model.BookingRequest, id string) []model.BookingRequest {
	i := indexOf(reqs, id)
	if i < 0 {
		return reqs
	}
	out := make([]model.BookingRequest, 0, len(reqs)-1)
	out = append(out, reqs[:i]...)
	return append(out, reqs[i+1:]...)
}

func upsertFresher(reqs []model.BookingRequest, req model.BookingRequest) []model.BookingRequest {
	if i := indexOf(reqs, req.ID); i >= 0 && olderThan(req, reqs[i]) {
		return reqs
	}
	return upsert(reqs, req)
}

func upsert(reqs []model.BookingRequest, req model.BookingRequest) []model.BookingRequest {
	out := remove(reqs, req.ID)
	if len(out) == len(reqs) {
		out = append([]model.BookingRequest(nil), reqs...)
	}
	out = append(out, req)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
