package reservations

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"wash-sync/cmd/server/testutil"
	"wash-sync/internal/services/reservations"
	"wash-sync/internal/services/watch"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	reservationsEndpoint = "/api/v1/reservations"
	testJWTSecret        = "test-secret-with-32-plus-characters"
	testPhone            = "0550123456"
	testAddress          = "12 Rue Didouche Mourad, Alger"
)

// MockService mocks the reservations service
type MockService struct {
	mock.Mock
}

func (m *MockService) Create(ctx context.Context, clientID bson.ObjectID, req reservations.CreateReservationRequest) (*reservations.ReservationResponse, error) {
	args := m.Called(ctx, clientID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservations.ReservationResponse), args.Error(1)
}

func (m *MockService) SetStatus(ctx context.Context, actor reservations.Actor, id bson.ObjectID, status reservations.Status) (*reservations.ReservationResponse, error) {
	args := m.Called(ctx, actor, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservations.ReservationResponse), args.Error(1)
}

func (m *MockService) MarkSeen(ctx context.Context, clientID, id bson.ObjectID) error {
	args := m.Called(ctx, clientID, id)
	return args.Error(0)
}

// stubStore serves a canned reservation list for snapshot reads. Subscribe is
// never reached from the HTTP handlers.
type stubStore struct {
	list []reservations.Reservation
	err  error
}

func (s *stubStore) Query(_ context.Context, f watch.Filter) ([]reservations.Reservation, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([]reservations.Reservation, 0, len(s.list))
	for i := range s.list {
		if f.Matches(&s.list[i]) {
			out = append(out, s.list[i])
		}
	}
	return out, nil
}

func (s *stubStore) Subscribe(context.Context, watch.Filter, watch.EventFunc, watch.ErrorFunc) (func(), error) {
	panic("subscribe not expected in handler tests")
}

type stubCarwashSource struct {
	ids []bson.ObjectID
	err error
}

func (s *stubCarwashSource) OwnedIDs(context.Context, bson.ObjectID) ([]bson.ObjectID, error) {
	return s.ids, s.err
}

// TestSetup contains common handler test fixtures
type TestSetup struct {
	MockService *MockService
	Store       *stubStore
	Carwashes   *stubCarwashSource
	App         *fiber.App
	ClientID    bson.ObjectID
	OwnerID     bson.ObjectID
	CarwashID   bson.ObjectID
}

func setupHandlerTest(t *testing.T) *TestSetup {
	t.Helper()

	mockService := &MockService{}
	store := &stubStore{}
	carwashes := &stubCarwashSource{}
	app := testutil.CreateTestApp(t)
	v := testutil.CreateTestValidator(t)

	h := NewHandlers(mockService, store, carwashes, v)

	jwtMW := testutil.SetupJWTMiddleware(testJWTSecret)
	grp := app.Group("/api/v1/reservations", jwtMW)
	grp.Post("/", h.Create)
	grp.Get("/", h.List)
	grp.Patch("/:id/status", h.SetStatus)
	grp.Post("/:id/seen", h.MarkSeen)

	return &TestSetup{
		MockService: mockService,
		Store:       store,
		Carwashes:   carwashes,
		App:         app,
		ClientID:    bson.NewObjectID(),
		OwnerID:     bson.NewObjectID(),
		CarwashID:   bson.NewObjectID(),
	}
}

func (s *TestSetup) token(t *testing.T, userID bson.ObjectID, role string) string {
	t.Helper()
	tok, err := testutil.CreateTestJWT(userID.Hex(), role, []byte(testJWTSecret), time.Hour)
	require.NoError(t, err)
	return tok
}

func validBookingBody(carwashID bson.ObjectID) map[string]any {
	return map[string]any{
		"carwash_id":   carwashID.Hex(),
		"service_id":   "lavage-complet",
		"service_name": "Lavage complet",
		"price":        1200.0,
		"date":         "21/06/2025",
		"time":         "14:30",
		"phone":        testPhone,
		"address":      testAddress,
	}
}

func sampleReservation(s *TestSetup, status reservations.Status) reservations.Reservation {
	now := time.Now().UTC()
	return reservations.Reservation{
		ID:            bson.NewObjectID(),
		ClientID:      s.ClientID,
		OwnerID:       s.OwnerID,
		CarwashID:     s.CarwashID,
		CarwashName:   "Lavage Auto Hydra",
		ServiceID:     "lavage-complet",
		ServiceName:   "Lavage complet",
		Price:         1200,
		Date:          "21/06/2025",
		Time:          "14:30",
		ClientPhone:   testPhone,
		ClientAddress: testAddress,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestCreateHandler(t *testing.T) {
	testCases := []struct {
		name           string
		body           map[string]any
		setupMock      func(s *TestSetup)
		expectedStatus int
	}{
		{
			name: "success",
			setupMock: func(s *TestSetup) {
				r := sampleReservation(s, reservations.StatusPending)
				s.MockService.On("Create", mock.Anything, s.ClientID, mock.AnythingOfType("reservations.CreateReservationRequest")).
					Return(&reservations.ReservationResponse{Reservation: &r}, nil).Once()
			},
			expectedStatus: 201,
		},
		{
			name: "unknown_carwash",
			setupMock: func(s *TestSetup) {
				s.MockService.On("Create", mock.Anything, s.ClientID, mock.AnythingOfType("reservations.CreateReservationRequest")).
					Return(nil, reservations.ErrCarwashNotFound).Once()
			},
			expectedStatus: 404,
		},
		{
			name: "missing_phone_fails_validation",
			body: func() map[string]any {
				b := validBookingBody(bson.NewObjectID())
				delete(b, "phone")
				return b
			}(),
			setupMock:      func(*TestSetup) {},
			expectedStatus: 400,
		},
		{
			name: "american_date_order_fails_validation",
			body: func() map[string]any {
				b := validBookingBody(bson.NewObjectID())
				b["date"] = "06/21/2025"
				return b
			}(),
			setupMock:      func(*TestSetup) {},
			expectedStatus: 400,
		},
		{
			name: "service_failure",
			setupMock: func(s *TestSetup) {
				s.MockService.On("Create", mock.Anything, s.ClientID, mock.AnythingOfType("reservations.CreateReservationRequest")).
					Return(nil, reservations.ErrCreateReservation).Once()
			},
			expectedStatus: 500,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setup := setupHandlerTest(t)
			tc.setupMock(setup)

			body := tc.body
			if body == nil {
				body = validBookingBody(setup.CarwashID)
			}

			req := testutil.CreateAuthenticatedRequest("POST", reservationsEndpoint, body, setup.token(t, setup.ClientID, "client"))
			resp, err := setup.App.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tc.expectedStatus, resp.StatusCode)

			if tc.expectedStatus == 201 {
				var got reservations.ReservationResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
				require.NotNil(t, got.Reservation)
				assert.Equal(t, reservations.StatusPending, got.Reservation.Status)
				assert.Equal(t, "Lavage Auto Hydra", got.Reservation.CarwashName)
			}

			setup.MockService.AssertExpectations(t)
		})
	}
}

func TestCreateHandlerRequiresAuth(t *testing.T) {
	setup := setupHandlerTest(t)

	req := testutil.CreateJSONRequest("POST", reservationsEndpoint, validBookingBody(setup.CarwashID))
	resp, err := setup.App.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestListHandler(t *testing.T) {
	t.Run("client_sees_own_reservations", func(t *testing.T) {
		setup := setupHandlerTest(t)
		mine := sampleReservation(setup, reservations.StatusPending)
		other := sampleReservation(setup, reservations.StatusPending)
		other.ClientID = bson.NewObjectID()
		setup.Store.list = []reservations.Reservation{mine, other}

		req := testutil.CreateAuthenticatedRequest("GET", reservationsEndpoint, nil, setup.token(t, setup.ClientID, "client"))
		resp, err := setup.App.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)

		var snap watch.Snapshot
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
		require.Len(t, snap.Reservations, 1)
		assert.Equal(t, mine.ID, snap.Reservations[0].ID)
		assert.False(t, snap.Degraded)
		// pending bookings don't raise the client badge
		assert.False(t, snap.Badge.Show)
	})

	t.Run("owner_sees_pending_badge", func(t *testing.T) {
		setup := setupHandlerTest(t)
		setup.Carwashes.ids = []bson.ObjectID{setup.CarwashID}
		setup.Store.list = []reservations.Reservation{
			sampleReservation(setup, reservations.StatusPending),
			sampleReservation(setup, reservations.StatusConfirmed),
		}

		req := testutil.CreateAuthenticatedRequest("GET", reservationsEndpoint, nil, setup.token(t, setup.OwnerID, "owner"))
		resp, err := setup.App.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)

		var snap watch.Snapshot
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
		assert.Len(t, snap.Reservations, 2)
		assert.True(t, snap.Badge.Show)
		assert.Equal(t, 1, snap.Badge.Count)
		assert.False(t, snap.Degraded)
	})

	t.Run("owner_above_fanout_limit_is_degraded", func(t *testing.T) {
		setup := setupHandlerTest(t)
		for i := 0; i < watch.MaxFilterIDs+1; i++ {
			setup.Carwashes.ids = append(setup.Carwashes.ids, bson.NewObjectID())
		}

		req := testutil.CreateAuthenticatedRequest("GET", reservationsEndpoint, nil, setup.token(t, setup.OwnerID, "owner"))
		resp, err := setup.App.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)

		var snap watch.Snapshot
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
		assert.True(t, snap.Degraded)
	})

	t.Run("unknown_role_claim_is_unauthorized", func(t *testing.T) {
		setup := setupHandlerTest(t)

		req := testutil.CreateAuthenticatedRequest("GET", reservationsEndpoint, nil, setup.token(t, setup.ClientID, "manager"))
		resp, err := setup.App.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, 401, resp.StatusCode)
	})
}

func TestSetStatusHandler(t *testing.T) {
	testCases := []struct {
		name           string
		role           string
		status         string
		setupMock      func(s *TestSetup, id bson.ObjectID)
		expectedStatus int
	}{
		{
			name:   "owner_confirms",
			role:   "owner",
			status: "confirmed",
			setupMock: func(s *TestSetup, id bson.ObjectID) {
				r := sampleReservation(s, reservations.StatusConfirmed)
				r.ID = id
				s.MockService.On("SetStatus", mock.Anything,
					reservations.Actor{UserID: s.OwnerID, IsOwner: true},
					id, reservations.StatusConfirmed).
					Return(&reservations.ReservationResponse{Reservation: &r}, nil).Once()
			},
			expectedStatus: 200,
		},
		{
			name:   "client_confirm_is_forbidden",
			role:   "client",
			status: "confirmed",
			setupMock: func(s *TestSetup, id bson.ObjectID) {
				s.MockService.On("SetStatus", mock.Anything, mock.Anything, id, reservations.StatusConfirmed).
					Return(nil, reservations.ErrForbidden).Once()
			},
			expectedStatus: 403,
		},
		{
			name:   "terminal_status_conflicts",
			role:   "owner",
			status: "canceled",
			setupMock: func(s *TestSetup, id bson.ObjectID) {
				s.MockService.On("SetStatus", mock.Anything, mock.Anything, id, reservations.StatusCanceled).
					Return(nil, reservations.ErrStatusFinal).Once()
			},
			expectedStatus: 409,
		},
		{
			name:           "pending_target_fails_validation",
			role:           "owner",
			status:         "pending",
			setupMock:      func(*TestSetup, bson.ObjectID) {},
			expectedStatus: 400,
		},
		{
			name:   "not_found",
			role:   "owner",
			status: "confirmed",
			setupMock: func(s *TestSetup, id bson.ObjectID) {
				s.MockService.On("SetStatus", mock.Anything, mock.Anything, id, reservations.StatusConfirmed).
					Return(nil, reservations.ErrReservationNotFound).Once()
			},
			expectedStatus: 404,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setup := setupHandlerTest(t)
			id := bson.NewObjectID()
			tc.setupMock(setup, id)

			actorID := setup.ClientID
			if tc.role == "owner" {
				actorID = setup.OwnerID
			}

			url := fmt.Sprintf("%s/%s/status", reservationsEndpoint, id.Hex())
			body := map[string]string{"status": tc.status}
			req := testutil.CreateAuthenticatedRequest("PATCH", url, body, setup.token(t, actorID, tc.role))
			resp, err := setup.App.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tc.expectedStatus, resp.StatusCode)

			setup.MockService.AssertExpectations(t)
		})
	}
}

func TestSetStatusHandlerMalformedID(t *testing.T) {
	setup := setupHandlerTest(t)

	url := reservationsEndpoint + "/not-a-hex-id/status"
	body := map[string]string{"status": "confirmed"}
	req := testutil.CreateAuthenticatedRequest("PATCH", url, body, setup.token(t, setup.OwnerID, "owner"))
	resp, err := setup.App.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestMarkSeenHandler(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		setup := setupHandlerTest(t)
		id := bson.NewObjectID()
		setup.MockService.On("MarkSeen", mock.Anything, setup.ClientID, id).Return(nil).Once()

		url := fmt.Sprintf("%s/%s/seen", reservationsEndpoint, id.Hex())
		req := testutil.CreateAuthenticatedRequest("POST", url, nil, setup.token(t, setup.ClientID, "client"))
		resp, err := setup.App.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
		setup.MockService.AssertExpectations(t)
	})

	t.Run("not_found", func(t *testing.T) {
		setup := setupHandlerTest(t)
		id := bson.NewObjectID()
		setup.MockService.On("MarkSeen", mock.Anything, setup.ClientID, id).
			Return(reservations.ErrReservationNotFound).Once()

		url := fmt.Sprintf("%s/%s/seen", reservationsEndpoint, id.Hex())
		req := testutil.CreateAuthenticatedRequest("POST", url, nil, setup.token(t, setup.ClientID, "client"))
		resp, err := setup.App.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, 404, resp.StatusCode)
		setup.MockService.AssertExpectations(t)
	})
}

func TestBookingRateLimiter(t *testing.T) {
	mockService := &MockService{}
	app := testutil.CreateTestApp(t)
	v := testutil.CreateTestValidator(t)
	h := NewHandlers(mockService, &stubStore{}, &stubCarwashSource{}, v)

	jwtMW := testutil.SetupJWTMiddleware(testJWTSecret)
	limiter := testutil.CreateRateLimiter(2, time.Minute)
	app.Post("/api/v1/reservations", jwtMW, limiter, h.Create)

	clientID := bson.NewObjectID()
	tok, err := testutil.CreateTestJWT(clientID.Hex(), "client", []byte(testJWTSecret), time.Hour)
	require.NoError(t, err)

	setup := &TestSetup{ClientID: clientID, OwnerID: bson.NewObjectID(), CarwashID: bson.NewObjectID()}
	r := sampleReservation(setup, reservations.StatusPending)
	mockService.On("Create", mock.Anything, clientID, mock.AnythingOfType("reservations.CreateReservationRequest")).
		Return(&reservations.ReservationResponse{Reservation: &r}, nil).Twice()

	for i := 0; i < 2; i++ {
		req := testutil.CreateAuthenticatedRequest("POST", reservationsEndpoint, validBookingBody(setup.CarwashID), tok)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, 201, resp.StatusCode)
	}

	req := testutil.CreateAuthenticatedRequest("POST", reservationsEndpoint, validBookingBody(setup.CarwashID), tok)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 429, resp.StatusCode)

	mockService.AssertExpectations(t)
}
