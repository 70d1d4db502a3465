package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/farmlog/activity-reservation/internal/api/middleware"
	"github.com/farmlog/activity-reservation/internal/application"
	"github.com/farmlog/activity-reservation/internal/domain/activity"
	"github.com/farmlog/activity-reservation/internal/domain/booking"
	"github.com/farmlog/activity-reservation/internal/domain/identity"
	"github.com/farmlog/activity-reservation/internal/domain/reservation"
)

// MockReservationService はReservationServiceInterfaceのモック
type MockReservationService struct {
	mock.Mock
}

func (m *MockReservationService) Create(ctx context.Context, input application.CreateReservationInput) (*reservation.Reservation, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationService) Confirm(ctx context.Context, reservationID, actingUserID string) (*reservation.Reservation, error) {
	args := m.Called(ctx, reservationID, actingUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationService) Cancel(ctx context.Context, reservationID, actingUserID string, cancelReason *string) (*reservation.Reservation, error) {
	args := m.Called(ctx, reservationID, actingUserID, cancelReason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationService) Get(ctx context.Context, reservationID, actingUserID string) (*reservation.Reservation, error) {
	args := m.Called(ctx, reservationID, actingUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationService) ListMine(ctx context.Context, userID string) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationService) ListReceived(ctx context.Context, ownerID string) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationService) ListAll(ctx context.Context, actor identity.Actor, limit, offset int) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, actor, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func testReservation(status reservation.Status) *reservation.Reservation {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return &reservation.Reservation{
		ID:          "res-123",
		ActivityID:  "act-1",
		RequesterID: "user-1",
		PartySize:   2,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// newContext はテスト用のリクエストコンテキストを作る。userID が空なら未認証
func newContext(e *echo.Echo, method, target, body, userID string, role identity.Role) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != "" {
		middleware.SetActor(c, identity.Actor{UserID: userID, Role: role})
	}
	return c, rec
}

func requireHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected *echo.HTTPError, got %T", err)
	assert.Equal(t, code, he.Code)
}

func TestReservationHandler_Create(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に予約を作成できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		msg := "家族で参加します"
		expected := testReservation(reservation.StatusPending)
		expected.Message = &msg
		mockService.On("Create", mock.Anything, application.CreateReservationInput{
			ActivityID: "act-1", RequesterID: "user-1", PartySize: 2, Message: &msg,
		}).Return(expected, nil)

		handler := NewReservationHandler(mockService)
		c, rec := newContext(e, http.MethodPost, "/api/v1/activities/act-1/reservations",
			`{"partySize": 2, "message": "家族で参加します"}`, "user-1", identity.RoleHobby)
		c.SetParamNames("activityId")
		c.SetParamValues("act-1")

		err := handler.Create(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp ReservationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "res-123", resp.ID)
		assert.Equal(t, "pending", resp.Status)
		assert.Equal(t, msg, *resp.Message)

		mockService.AssertExpectations(t)
	})

	t.Run("未認証は401", func(t *testing.T) {
		mockService := new(MockReservationService)
		handler := NewReservationHandler(mockService)
		c, _ := newContext(e, http.MethodPost, "/api/v1/activities/act-1/reservations", `{"partySize": 1}`, "", "")

		err := handler.Create(c)

		requireHTTPError(t, err, http.StatusUnauthorized)
		mockService.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("不正なJSONは400", func(t *testing.T) {
		handler := NewReservationHandler(new(MockReservationService))
		c, _ := newContext(e, http.MethodPost, "/api/v1/activities/act-1/reservations", "invalid", "user-1", identity.RoleHobby)

		requireHTTPError(t, handler.Create(c), http.StatusBadRequest)
	})

	t.Run("参加人数0は400", func(t *testing.T) {
		handler := NewReservationHandler(new(MockReservationService))
		c, _ := newContext(e, http.MethodPost, "/api/v1/activities/act-1/reservations", `{"partySize": 0}`, "user-1", identity.RoleHobby)

		requireHTTPError(t, handler.Create(c), http.StatusBadRequest)
	})

	for _, body := range []string{`{"partySize": 101}`, `{"partySize": 2147483648}`} {
		t.Run("参加人数の上限超過は400 "+body, func(t *testing.T) {
			mockService := new(MockReservationService)
			handler := NewReservationHandler(mockService)
			c, _ := newContext(e, http.MethodPost, "/api/v1/activities/act-1/reservations", body, "user-1", identity.RoleHobby)
			c.SetParamNames("activityId")
			c.SetParamValues("act-1")

			requireHTTPError(t, handler.Create(c), http.StatusBadRequest)
			mockService.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}

	tests := []struct {
		name string
		err  error
		code int
	}{
		{"投稿なしは404", fmt.Errorf("体験投稿取得に失敗: %w", activity.ErrActivityNotFound), http.StatusNotFound},
		{"自己予約は403", booking.ErrSelfBooking, http.StatusForbidden},
		{"定員超過は409", booking.ErrCapacityExceeded, http.StatusConflict},
		{"保留中重複は400", reservation.ErrDuplicatePending, http.StatusBadRequest},
		{"開催済みは400", booking.ErrExpired, http.StatusBadRequest},
		{"参加人数上限超過は400", reservation.ErrPartySizeTooLarge, http.StatusBadRequest},
		{"DB障害は500", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockReservationService)
			mockService.On("Create", mock.Anything, mock.AnythingOfType("application.CreateReservationInput")).Return(nil, tt.err)

			handler := NewReservationHandler(mockService)
			c, _ := newContext(e, http.MethodPost, "/api/v1/activities/act-1/reservations", `{"partySize": 1}`, "user-1", identity.RoleHobby)
			c.SetParamNames("activityId")
			c.SetParamValues("act-1")

			requireHTTPError(t, handler.Create(c), tt.code)
		})
	}
}

func TestReservationHandler_GetByID(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に予約を取得できる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("Get", mock.Anything, "res-123", "owner-1").Return(testReservation(reservation.StatusPending), nil)

		handler := NewReservationHandler(mockService)
		c, rec := newContext(e, http.MethodGet, "/api/v1/reservations/res-123", "", "owner-1", identity.RoleExpert)
		c.SetParamNames("id")
		c.SetParamValues("res-123")

		require.NoError(t, handler.GetByID(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("第三者は403", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("Get", mock.Anything, "res-123", "stranger").Return(nil, booking.ErrForbidden)

		handler := NewReservationHandler(mockService)
		c, _ := newContext(e, http.MethodGet, "/api/v1/reservations/res-123", "", "stranger", identity.RoleHobby)
		c.SetParamNames("id")
		c.SetParamValues("res-123")

		requireHTTPError(t, handler.GetByID(c), http.StatusForbidden)
	})

	t.Run("予約が見つからない場合404", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("Get", mock.Anything, "nonexistent", "user-1").Return(nil, reservation.ErrReservationNotFound)

		handler := NewReservationHandler(mockService)
		c, _ := newContext(e, http.MethodGet, "/api/v1/reservations/nonexistent", "", "user-1", identity.RoleHobby)
		c.SetParamNames("id")
		c.SetParamValues("nonexistent")

		requireHTTPError(t, handler.GetByID(c), http.StatusNotFound)
	})
}

func TestReservationHandler_Lists(t *testing.T) {
	e := NewTestEcho()
	list := []*reservation.Reservation{testReservation(reservation.StatusPending), testReservation(reservation.StatusConfirmed)}

	t.Run("自分の予約一覧", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("ListMine", mock.Anything, "user-1").Return(list, nil)

		handler := NewReservationHandler(mockService)
		c, rec := newContext(e, http.MethodGet, "/api/v1/reservations/mine", "", "user-1", identity.RoleHobby)

		require.NoError(t, handler.ListMine(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp []ReservationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp, 2)
	})

	t.Run("届いた予約一覧（0件は空配列）", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("ListReceived", mock.Anything, "owner-1").Return([]*reservation.Reservation{}, nil)

		handler := NewReservationHandler(mockService)
		c, rec := newContext(e, http.MethodGet, "/api/v1/reservations/received", "", "owner-1", identity.RoleExpert)

		require.NoError(t, handler.ListReceived(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("未認証は401", func(t *testing.T) {
		handler := NewReservationHandler(new(MockReservationService))
		c, _ := newContext(e, http.MethodGet, "/api/v1/reservations/mine", "", "", "")

		requireHTTPError(t, handler.ListMine(c), http.StatusUnauthorized)
	})

	t.Run("管理者一覧はクエリを渡す", func(t *testing.T) {
		mockService := new(MockReservationService)
		admin := identity.Actor{UserID: "admin-1", Role: identity.RoleAdmin}
		mockService.On("ListAll", mock.Anything, admin, 20, 40).Return(list, nil)

		handler := NewReservationHandler(mockService)
		c, rec := newContext(e, http.MethodGet, "/api/v1/admin/reservations?limit=20&offset=40", "", "admin-1", identity.RoleAdmin)

		require.NoError(t, handler.ListAll(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("管理者以外は403", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("ListAll", mock.Anything, mock.Anything, 0, 0).Return(nil, booking.ErrForbidden)

		handler := NewReservationHandler(mockService)
		c, _ := newContext(e, http.MethodGet, "/api/v1/admin/reservations", "", "user-1", identity.RoleHobby)

		requireHTTPError(t, handler.ListAll(c), http.StatusForbidden)
	})
}

func TestReservationHandler_Confirm(t *testing.T) {
	e := NewTestEcho()

	tests := []struct {
		name     string
		result   *reservation.Reservation
		err      error
		wantCode int
	}{
		{"正常に確定できる", testReservation(reservation.StatusConfirmed), nil, http.StatusOK},
		{"定員超過は409", nil, booking.ErrCapacityExceeded, http.StatusConflict},
		{"投稿者以外は403", nil, booking.ErrForbidden, http.StatusForbidden},
		{"保留中以外は400", nil, reservation.ErrInvalidTransition, http.StatusBadRequest},
		{"予約なしは404", nil, reservation.ErrReservationNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockReservationService)
			if tt.err != nil {
				mockService.On("Confirm", mock.Anything, "res-123", "owner-1").Return(nil, tt.err)
			} else {
				mockService.On("Confirm", mock.Anything, "res-123", "owner-1").Return(tt.result, nil)
			}

			handler := NewReservationHandler(mockService)
			c, rec := newContext(e, http.MethodPatch, "/api/v1/reservations/res-123/confirm", "", "owner-1", identity.RoleExpert)
			c.SetParamNames("id")
			c.SetParamValues("res-123")

			err := handler.Confirm(c)

			if tt.err != nil {
				requireHTTPError(t, err, tt.wantCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, rec.Code)
			var resp ReservationResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "confirmed", resp.Status)
		})
	}
}

func TestReservationHandler_Cancel(t *testing.T) {
	e := NewTestEcho()

	t.Run("理由付きでキャンセルできる", func(t *testing.T) {
		mockService := new(MockReservationService)
		reason := "体調不良のため"
		cancelled := testReservation(reservation.StatusCancelled)
		cancelled.CancelReason = &reason
		mockService.On("Cancel", mock.Anything, "res-123", "user-1", &reason).Return(cancelled, nil)

		handler := NewReservationHandler(mockService)
		c, rec := newContext(e, http.MethodPatch, "/api/v1/reservations/res-123/cancel",
			`{"cancelReason": "体調不良のため"}`, "user-1", identity.RoleHobby)
		c.SetParamNames("id")
		c.SetParamValues("res-123")

		require.NoError(t, handler.Cancel(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp ReservationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "cancelled", resp.Status)
		assert.Equal(t, reason, *resp.CancelReason)
		mockService.AssertExpectations(t)
	})

	t.Run("ボディなしでもキャンセルできる", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("Cancel", mock.Anything, "res-123", "owner-1", (*string)(nil)).
			Return(testReservation(reservation.StatusCancelled), nil)

		handler := NewReservationHandler(mockService)
		c, rec := newContext(e, http.MethodPatch, "/api/v1/reservations/res-123/cancel", "", "owner-1", identity.RoleExpert)
		c.SetParamNames("id")
		c.SetParamValues("res-123")

		require.NoError(t, handler.Cancel(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("理由が長すぎる場合400", func(t *testing.T) {
		handler := NewReservationHandler(new(MockReservationService))
		body := `{"cancelReason": "` + strings.Repeat("あ", 1001) + `"}`
		c, _ := newContext(e, http.MethodPatch, "/api/v1/reservations/res-123/cancel", body, "user-1", identity.RoleHobby)
		c.SetParamNames("id")
		c.SetParamValues("res-123")

		requireHTTPError(t, handler.Cancel(c), http.StatusBadRequest)
	})

	t.Run("キャンセル済みは400", func(t *testing.T) {
		mockService := new(MockReservationService)
		mockService.On("Cancel", mock.Anything, "res-123", "user-1", (*string)(nil)).Return(nil, reservation.ErrInvalidTransition)

		handler := NewReservationHandler(mockService)
		c, _ := newContext(e, http.MethodPatch, "/api/v1/reservations/res-123/cancel", "", "user-1", identity.RoleHobby)
		c.SetParamNames("id")
		c.SetParamValues("res-123")

		requireHTTPError(t, handler.Cancel(c), http.StatusBadRequest)
	})
}

func TestToReservationResponse(t *testing.T) {
	r := testReservation(reservation.StatusPending)
	msg := "よろしくお願いします"
	r.Message = &msg

	resp := toReservationResponse(r)

	assert.Equal(t, r.ID, resp.ID)
	assert.Equal(t, r.ActivityID, resp.ActivityID)
	assert.Equal(t, r.RequesterID, resp.RequesterID)
	assert.Equal(t, r.PartySize, resp.PartySize)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, &msg, resp.Message)
	assert.Nil(t, resp.CancelReason)
	assert.Equal(t, r.CreatedAt, resp.CreatedAt)
}

func TestToReservationResponse_ActivitySummary(t *testing.T) {
	scheduled := time.Date(2026, 9, 20, 9, 0, 0, 0, time.UTC)
	capacity := 8
	r := testReservation(reservation.StatusConfirmed)
	r.Activity = &reservation.ActivitySummary{
		Title: "ぶどう狩り体験", ScheduledAt: &scheduled, Capacity: &capacity, ConfirmedCount: 6, Location: "山梨県",
	}

	body, err := json.Marshal(toReservationResponse(r))
	require.NoError(t, err)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &resp))
	summary, ok := resp["activity"].(map[string]interface{})
	require.True(t, ok, "activity summary missing: %s", body)
	assert.Equal(t, "ぶどう狩り体験", summary["title"])
	assert.Equal(t, "2026-09-20T09:00:00Z", summary["scheduledAt"])
	assert.Equal(t, 8.0, summary["capacity"])
	assert.Equal(t, 6.0, summary["confirmedCount"])
	assert.Equal(t, "山梨県", summary["location"])

	// 概要が無い場合はキーごと省く
	body, err = json.Marshal(toReservationResponse(testReservation(reservation.StatusPending)))
	require.NoError(t, err)
	assert.NotContains(t, string(body), `"activity"`)
}
