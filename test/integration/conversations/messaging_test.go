//go:build integration

package integrationtests

import (
	"fmt"
	"net/http"
	"testing"

	"darna/pkg/identity"
	"darna/pkg/model"
	"darna/pkg/realtime"
	"darna/test/integration/testutil"

	"go.mongodb.org/mongo-driver/bson"
)

const (
	ownerID    = "owner-it-1"
	clientID   = "client-it-1"
	propertyID = "property-it-1"
)

type unread struct {
	TotalUnread int `json:"total_unread"`
}

type updated struct {
	Updated int64 `json:"updated"`
}

func setup(t *testing.T) (*testutil.MongoHelper, *testutil.Client, *testutil.Client) {
	t.Helper()
	env := testutil.NewTestEnv()
	mongo, client := env.Setup(t)
	t.Cleanup(func() { env.Cleanup(t, mongo) })

	mongo.SeedProfile(t, model.ProfileSummary{ID: ownerID, DisplayName: "Yacine"})
	mongo.SeedProfile(t, model.ProfileSummary{ID: clientID, DisplayName: "Amel"})
	mongo.SeedProperty(t, model.PropertySummary{ID: propertyID, Title: "Studio in Oran", OwnerID: ownerID})

	return mongo, client.AsUser(t, ownerID, identity.RoleOwner), client.AsUser(t, clientID, identity.RoleGuest)
}

func openConversation(t *testing.T, c *testutil.Client) model.Conversation {
	t.Helper()
	resp := c.POST(t, "/api/v1/conversations", model.ConversationCreate{OwnerID: ownerID, PropertyID: propertyID})
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var conv model.Conversation
	resp.Data(t, &conv)
	return conv
}

func totalUnread(t *testing.T, c *testutil.Client) int {
	t.Helper()
	resp := c.GET(t, "/api/v1/conversations/unread")
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var u unread
	resp.Data(t, &u)
	return u.TotalUnread
}

func TestConversation_FindOrCreateIsIdempotent(t *testing.T) {
	mongo, _, client := setup(t)

	first := openConversation(t, client)
	second := openConversation(t, client)

	if first.ID == "" || first.ID != second.ID {
		t.Fatalf("expected the same conversation twice, got %q and %q", first.ID, second.ID)
	}
	if n := mongo.CountDocuments(t, realtime.TableConversations, bson.M{}); n != 1 {
		t.Errorf("expected one stored conversation, got %d", n)
	}
}

func TestConversation_CannotMessageYourself(t *testing.T) {
	_, owner, _ := setup(t)

	resp := owner.POST(t, "/api/v1/conversations", model.ConversationCreate{OwnerID: ownerID, PropertyID: propertyID})
	if resp.StatusCode < 400 || resp.StatusCode >= 500 {
		t.Fatalf("expected a client error, got %d. Body: %s", resp.StatusCode, resp.Body)
	}
}

func TestMessaging_UnreadFollowsSeen(t *testing.T) {
	_, owner, client := setup(t)
	conv := openConversation(t, client)
	path := fmt.Sprintf("/api/v1/conversations/id/%s", conv.ID)

	resp := client.POST(t, path+"/messages", model.MessageCreate{Content: "Is the studio free in July?", ClientRef: "ref-1"})
	testutil.AssertStatusCode(t, resp, http.StatusCreated)
	var sent model.Message
	resp.Data(t, &sent)
	if sent.SenderID != clientID || sent.Status != model.MessageSent {
		t.Fatalf("unexpected stored message %+v", sent)
	}

	if got := totalUnread(t, owner); got != 1 {
		t.Errorf("expected owner to have 1 unread, got %d", got)
	}
	if got := totalUnread(t, client); got != 0 {
		t.Errorf("sender should have no unread, got %d", got)
	}

	resp = owner.POST(t, path+"/seen", nil)
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var u updated
	resp.Data(t, &u)
	if u.Updated != 1 {
		t.Errorf("expected 1 message marked seen, got %d", u.Updated)
	}

	if got := totalUnread(t, owner); got != 0 {
		t.Errorf("expected unread to drop to 0, got %d", got)
	}

	resp = client.GET(t, path+"/messages")
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var msgs []model.Message
	resp.Data(t, &msgs)
	if len(msgs) != 1 || msgs[0].Status != model.MessageSeen {
		t.Errorf("expected the message to be seen, got %+v", msgs)
	}
}

func TestMessaging_ClientRefDeduplicates(t *testing.T) {
	mongo, _, client := setup(t)
	conv := openConversation(t, client)
	path := fmt.Sprintf("/api/v1/conversations/id/%s/messages", conv.ID)

	body := model.MessageCreate{Content: "hello", ClientRef: "retry-1"}
	testutil.AssertStatusCode(t, client.POST(t, path, body), http.StatusCreated)
	testutil.AssertStatusCode(t, client.POST(t, path, body), http.StatusCreated)

	if n := mongo.CountDocuments(t, realtime.TableMessages, bson.M{"conversation_id": conv.ID}); n != 1 {
		t.Errorf("expected the retried send to be stored once, got %d", n)
	}
}

func TestMessaging_OutsidersAreForbidden(t *testing.T) {
	env := testutil.NewTestEnv()
	_, _, client := setup(t)
	conv := openConversation(t, client)

	outsider := testutil.NewClient(env.ServerURL, env.JWTSecret, env.JWTIssuer).AsUser(t, "stranger", identity.RoleGuest)
	resp := outsider.GET(t, fmt.Sprintf("/api/v1/conversations/id/%s/messages", conv.ID))
	testutil.AssertStatusCode(t, resp, http.StatusForbidden)
}
