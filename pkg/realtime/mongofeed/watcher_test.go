package mongofeed

import (
	"testing"
	"time"

	"darna/pkg/model"
	"darna/pkg/realtime"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestEventFromChange_Insert(t *testing.T) {
	oid := primitive.NewObjectID()
	created := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

	raw, err := bson.Marshal(bson.M{
		"_id":             oid,
		"conversation_id": "c1",
		"sender_id":       "owner",
		"content":         "hello",
		"status":          "sent",
		"created_at":      created,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	change := changeDoc{OperationType: "insert", FullDocument: raw, ClusterTime: primitive.Timestamp{T: 1719824400}}
	change.DocumentKey.ID = oid

	ev, ok, err := eventFromChange(realtime.TableMessages, change, DecodeAs[model.Message]())
	if err != nil || !ok {
		t.Fatalf("eventFromChange() ok=%v err=%v", ok, err)
	}
	if ev.Op != realtime.OpInsert || ev.Key != oid.Hex() || ev.Table != realtime.TableMessages {
		t.Errorf("unexpected event %+v", ev)
	}
	if !ev.CommittedAt.Equal(time.Unix(1719824400, 0)) {
		t.Errorf("CommittedAt = %v", ev.CommittedAt)
	}

	var msg model.Message
	if err := ev.Decode(&msg); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if msg.ID != oid.Hex() || msg.Content != "hello" || msg.Status != model.MessageSent {
		t.Errorf("decoded record %+v", msg)
	}
}

func TestEventFromChange_Delete(t *testing.T) {
	change := changeDoc{OperationType: "delete"}
	change.DocumentKey.ID = "conv-1"

	ev, ok, err := eventFromChange(realtime.TableConversations, change, DecodeAs[model.Conversation]())
	if err != nil || !ok {
		t.Fatalf("eventFromChange() ok=%v err=%v", ok, err)
	}
	if ev.Op != realtime.OpDelete || ev.Key != "conv-1" || len(ev.Record) != 0 {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestEventFromChange_IgnoresOtherOperations(t *testing.T) {
	for _, op := range []string{"drop", "rename", "invalidate"} {
		_, ok, err := eventFromChange(realtime.TableMessages, changeDoc{OperationType: op}, DecodeAs[model.Message]())
		if ok || err != nil {
			t.Errorf("%s: expected to be ignored, ok=%v err=%v", op, ok, err)
		}
	}
}

func TestEventFromChange_UpdateWithoutDocument(t *testing.T) {
	change := changeDoc{OperationType: "update"}
	change.DocumentKey.ID = "m1"

	_, ok, err := eventFromChange(realtime.TableMessages, change, DecodeAs[model.Message]())
	if ok || err != nil {
		t.Errorf("update without fullDocument should be skipped, ok=%v err=%v", ok, err)
	}
}
