//go:build integration

package integrationtests

import (
	"fmt"
	"net/http"
	"sync"
	"testing"

	"darna/pkg/identity"
	"darna/pkg/model"
	"darna/test/integration/testutil"
)

const (
	ownerID    = "owner-it-1"
	guestID    = "guest-it-1"
	otherGuest = "guest-it-2"
	propertyID = "property-it-1"
)

func setup(t *testing.T) (*testutil.MongoHelper, *testutil.Client, *testutil.Client, *testutil.Client) {
	t.Helper()
	env := testutil.NewTestEnv()
	mongo, client := env.Setup(t)
	t.Cleanup(func() { env.Cleanup(t, mongo) })

	mongo.SeedProfile(t, model.ProfileSummary{ID: ownerID, DisplayName: "Yacine"})
	mongo.SeedProfile(t, model.ProfileSummary{ID: guestID, DisplayName: "Amel"})
	mongo.SeedProfile(t, model.ProfileSummary{ID: otherGuest, DisplayName: "Karim"})
	mongo.SeedProperty(t, model.PropertySummary{ID: propertyID, Title: "Villa in Tipaza", OwnerID: ownerID})

	owner := client.AsUser(t, ownerID, identity.RoleOwner)
	resp := owner.PUT(t, fmt.Sprintf("/api/v1/properties/%s/calendar/window", propertyID), testutil.Window())
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	return mongo, owner, client.AsUser(t, guestID, identity.RoleGuest), client.AsUser(t, otherGuest, identity.RoleGuest)
}

func createRequest(t *testing.T, c *testutil.Client, body *model.BookingRequestCreate) *testutil.Response {
	t.Helper()
	return c.POST(t, "/api/v1/booking-requests", body)
}

func TestBookingFlow_AcceptBooksDatesAndBlocksOverlap(t *testing.T) {
	_, owner, guest, other := setup(t)

	resp := createRequest(t, guest, testutil.NewBookingRequestBuilder(propertyID, ownerID).WithMessage("Family of four").Build())
	testutil.AssertStatusCode(t, resp, http.StatusCreated)
	var created model.BookingRequest
	resp.Data(t, &created)
	if created.Status != model.BookingPending {
		t.Fatalf("expected pending, got %s", created.Status)
	}

	resp = owner.POST(t, fmt.Sprintf("/api/v1/booking-requests/id/%s/accept", created.ID), nil)
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var accepted model.BookingRequest
	resp.Data(t, &accepted)
	if accepted.Status != model.BookingAccepted || !accepted.CalendarSynced {
		t.Fatalf("expected accepted and synced, got %+v", accepted)
	}

	resp = owner.GET(t, fmt.Sprintf("/api/v1/properties/%s/calendar", propertyID))
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var cal model.AvailabilityCalendar
	resp.Data(t, &cal)
	if day := cal.Dates[created.StartDate]; day.Status != model.DayBooked || day.BookingRequestID != created.ID {
		t.Errorf("start date not booked by the request: %+v", day)
	}

	overlap := testutil.NewBookingRequestBuilder(propertyID, ownerID).
		WithDates(created.StartDate.AddDays(3), created.EndDate.AddDays(3)).
		Build()
	resp = createRequest(t, other, overlap)
	testutil.AssertStatusCode(t, resp, http.StatusConflict)
	testutil.AssertErrorCode(t, resp, "CONFLICT")
}

func TestBookingFlow_ConcurrentAcceptsResolveOnce(t *testing.T) {
	_, owner, guest, _ := setup(t)

	resp := createRequest(t, guest, testutil.NewBookingRequestBuilder(propertyID, ownerID).Build())
	testutil.AssertStatusCode(t, resp, http.StatusCreated)
	var created model.BookingRequest
	resp.Data(t, &created)

	const callers = 5
	codes := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = owner.POST(t, fmt.Sprintf("/api/v1/booking-requests/id/%s/accept", created.ID), nil).StatusCode
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
		default:
			t.Errorf("unexpected status %d", code)
		}
	}
	if ok != 1 {
		t.Errorf("expected exactly one accept to succeed, got %d (%v)", ok, codes)
	}
}

func TestBookingFlow_RejectAfterAcceptIsStateError(t *testing.T) {
	_, owner, guest, _ := setup(t)

	resp := createRequest(t, guest, testutil.NewBookingRequestBuilder(propertyID, ownerID).Build())
	var created model.BookingRequest
	resp.Data(t, &created)

	testutil.AssertStatusCode(t, owner.POST(t, fmt.Sprintf("/api/v1/booking-requests/id/%s/accept", created.ID), nil), http.StatusOK)

	resp = owner.POST(t, fmt.Sprintf("/api/v1/booking-requests/id/%s/reject", created.ID), nil)
	testutil.AssertStatusCode(t, resp, http.StatusConflict)
	testutil.AssertErrorCode(t, resp, "STATE_ERROR")
	testutil.AssertContains(t, resp, `"current_status":"accepted"`)
}

func TestBookingFlow_OnlyOwnerResolves(t *testing.T) {
	_, _, guest, other := setup(t)

	resp := createRequest(t, guest, testutil.NewBookingRequestBuilder(propertyID, ownerID).Build())
	var created model.BookingRequest
	resp.Data(t, &created)

	resp = other.POST(t, fmt.Sprintf("/api/v1/booking-requests/id/%s/accept", created.ID), nil)
	testutil.AssertStatusCode(t, resp, http.StatusForbidden)
}

func TestBookingFlow_ListsByRole(t *testing.T) {
	_, owner, guest, _ := setup(t)

	testutil.AssertStatusCode(t, createRequest(t, guest, testutil.NewBookingRequestBuilder(propertyID, ownerID).Build()), http.StatusCreated)

	var owned []model.BookingRequest
	resp := owner.GET(t, "/api/v1/booking-requests?role=owner")
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	resp.Data(t, &owned)
	if len(owned) != 1 || owned[0].Property == nil || owned[0].Property.Title != "Villa in Tipaza" {
		t.Errorf("expected one enriched owned request, got %+v", owned)
	}

	var requested []model.BookingRequest
	resp = guest.GET(t, "/api/v1/booking-requests")
	resp.Data(t, &requested)
	if len(requested) != 1 {
		t.Errorf("expected one requested request, got %d", len(requested))
	}
}

func TestBookingFlow_RequiresToken(t *testing.T) {
	env := testutil.NewTestEnv()
	client := testutil.NewClient(env.ServerURL, env.JWTSecret, env.JWTIssuer)

	resp := client.POST(t, "/api/v1/booking-requests", testutil.NewBookingRequestBuilder(propertyID, ownerID).Build())
	testutil.AssertStatusCode(t, resp, http.StatusUnauthorized)
}
