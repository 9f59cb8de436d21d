// Package mongofeed turns MongoDB change streams into realtime change events.
package mongofeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"darna/pkg/logger"
	"darna/pkg/model"
	"darna/pkg/realtime"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// Decoder converts a full document into the value published as the event
// record.
type Decoder func(raw bson.Raw) (any, error)

func DecodeAs[T any]() Decoder {
	return func(raw bson.Raw) (any, error) {
		var v T
		if err := bson.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// DefaultDecoders covers every collection the live views subscribe to.
func DefaultDecoders() map[string]Decoder {
	return map[string]Decoder{
		realtime.TableBookingRequests: DecodeAs[model.BookingRequest](),
		realtime.TableCalendars:       DecodeAs[model.AvailabilityCalendar](),
		realtime.TableConversations:   DecodeAs[model.Conversation](),
		realtime.TableMessages:        DecodeAs[model.Message](),
	}
}

type Watcher struct {
	db       *mongo.Database
	sink     realtime.Sink
	decoders map[string]Decoder
	log      *logger.Logger

	mu     sync.Mutex
	tokens map[string]bson.Raw
}

func NewWatcher(db *mongo.Database, sink realtime.Sink, decoders map[string]Decoder, log *logger.Logger) *Watcher {
	return &Watcher{
		db:       db,
		sink:     sink,
		decoders: decoders,
		log:      log.Component("mongofeed"),
		tokens:   make(map[string]bson.Raw),
	}
}

// Run watches every registered collection until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for table := range w.decoders {
		wg.Add(1)
		go func(table string) {
			defer wg.Done()
			w.watchLoop(ctx, table)
		}(table)
	}
	wg.Wait()
	return ctx.Err()
}

func (w *Watcher) watchLoop(ctx context.Context, table string) {
	backoff := minBackoff
	for {
		err := w.watch(ctx, table)
		if ctx.Err() != nil {
			return
		}

		w.log.Warn("Change stream interrupted, restarting",
			"table", table,
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)

		// Events may have been missed if the resume token expired.
		if err := w.sink.Emit(ctx, realtime.ChangeEvent{
			ID:          "resync-" + table,
			Table:       table,
			Op:          realtime.OpResync,
			CommittedAt: time.Now().UTC(),
		}); err != nil {
			w.log.Error("Failed to emit resync event", "table", table, "error", err)
		}
	}
}

func (w *Watcher) watch(ctx context.Context, table string) error {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if token := w.resumeToken(table); token != nil {
		opts.SetResumeAfter(token)
	}

	stream, err := w.db.Collection(table).Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return fmt.Errorf("failed to open change stream on %s: %w", table, err)
	}
	defer stream.Close(context.Background())

	w.log.Info("Watching collection", "table", table)

	for stream.Next(ctx) {
		var change changeDoc
		if err := stream.Decode(&change); err != nil {
			w.log.Error("Failed to decode change document", "table", table, "error", err)
			continue
		}

		ev, ok, err := eventFromChange(table, change, w.decoders[table])
		if err != nil {
			w.log.Error("Failed to convert change document",
				"table", table,
				"op", change.OperationType,
				"error", err,
			)
		} else if ok {
			if err := w.sink.Emit(ctx, ev); err != nil {
				return fmt.Errorf("failed to emit %s event: %w", table, err)
			}
		}
		w.setResumeToken(table, stream.ResumeToken())
	}

	if err := stream.Err(); err != nil {
		return err
	}
	return errors.New("change stream closed")
}

func (w *Watcher) resumeToken(table string) bson.Raw {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tokens[table]
}

func (w *Watcher) setResumeToken(table string, token bson.Raw) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tokens[table] = token
}

type changeDoc struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID any `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument bson.Raw            `bson:"fullDocument,omitempty"`
	ClusterTime  primitive.Timestamp `bson:"clusterTime"`
}

// eventFromChange maps a change document onto a ChangeEvent. ok is false for
// operation types the live views ignore.
func eventFromChange(table string, change changeDoc, decode Decoder) (realtime.ChangeEvent, bool, error) {
	var op realtime.Op
	switch change.OperationType {
	case "insert":
		op = realtime.OpInsert
	case "update", "replace":
		op = realtime.OpUpdate
	case "delete":
		op = realtime.OpDelete
	default:
		return realtime.ChangeEvent{}, false, nil
	}

	key := keyString(change.DocumentKey.ID)

	var record any
	if op != realtime.OpDelete {
		// fullDocument is missing when the document was deleted before the
		// update lookup ran.
		if len(change.FullDocument) == 0 {
			return realtime.ChangeEvent{}, false, nil
		}
		var err error
		if record, err = decode(change.FullDocument); err != nil {
			return realtime.ChangeEvent{}, false, fmt.Errorf("decode %s/%s: %w", table, key, err)
		}
	}

	ev, err := realtime.NewEvent(table, op, key, record)
	if err != nil {
		return realtime.ChangeEvent{}, false, err
	}
	if change.ClusterTime.T != 0 {
		ev.CommittedAt = time.Unix(int64(change.ClusterTime.T), 0).UTC()
	}
	return ev, true, nil
}

func keyString(id any) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
