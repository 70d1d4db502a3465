package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/farmlog/activity-reservation/internal/api"
	"github.com/farmlog/activity-reservation/internal/api/middleware"
	"github.com/farmlog/activity-reservation/internal/application"
	"github.com/farmlog/activity-reservation/internal/domain/reservation"
)

type ReservationHandler struct {
	service ReservationServiceInterface
}

func NewReservationHandler(s ReservationServiceInterface) *ReservationHandler {
	return &ReservationHandler{service: s}
}

type CreateReservationRequest struct {
	PartySize int     `json:"partySize" validate:"required,min=1,max=100" example:"2"`
	Message   *string `json:"message" validate:"omitempty,max=1000" example:"家族3人で参加したいです"`
}

type CancelReservationRequest struct {
	CancelReason *string `json:"cancelReason" validate:"omitempty,max=1000"`
}

type ReservationResponse struct {
	ID           string                   `json:"id"`
	ActivityID   string                   `json:"activityId"`
	RequesterID  string                   `json:"requesterId"`
	PartySize    int                      `json:"partySize"`
	Status       string                   `json:"status" example:"pending"`
	Message      *string                  `json:"message,omitempty"`
	CancelReason *string                  `json:"cancelReason,omitempty"`
	Activity     *ActivitySummaryResponse `json:"activity,omitempty"`
	CreatedAt    time.Time                `json:"createdAt"`
	UpdatedAt    time.Time                `json:"updatedAt"`
}

// ActivitySummaryResponse は予約に付く体験投稿の概要
type ActivitySummaryResponse struct {
	Title          string     `json:"title"`
	ScheduledAt    *time.Time `json:"scheduledAt"`
	Capacity       *int       `json:"capacity"`
	ConfirmedCount int        `json:"confirmedCount"`
	Location       string     `json:"location,omitempty"`
}

func toReservationResponse(r *reservation.Reservation) ReservationResponse {
	resp := ReservationResponse{
		ID: r.ID, ActivityID: r.ActivityID, RequesterID: r.RequesterID,
		PartySize: r.PartySize, Status: string(r.Status),
		Message: r.Message, CancelReason: r.CancelReason,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	if a := r.Activity; a != nil {
		resp.Activity = &ActivitySummaryResponse{
			Title: a.Title, ScheduledAt: a.ScheduledAt, Capacity: a.Capacity,
			ConfirmedCount: a.ConfirmedCount, Location: a.Location,
		}
	}
	return resp
}

func toReservationResponses(list []*reservation.Reservation) []ReservationResponse {
	resp := make([]ReservationResponse, len(list))
	for i, r := range list {
		resp[i] = toReservationResponse(r)
	}
	return resp
}

// Create godoc
// @Summary 予約を申し込む
// @Description 体験投稿に保留中の予約を作成します
// @Tags reservations
// @Accept json
// @Produce json
// @Param activityId path string true "体験投稿ID"
// @Param request body CreateReservationRequest true "予約情報"
// @Success 201 {object} ReservationResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 403 {object} api.ErrorResponse "自分の投稿への予約"
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "定員超過"
// @Router /activities/{activityId}/reservations [post]
func (h *ReservationHandler) Create(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return api.NewHTTPError(err)
	}
	var req CreateReservationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	r, err := h.service.Create(c.Request().Context(), application.CreateReservationInput{
		ActivityID:  c.Param("activityId"),
		RequesterID: actor.UserID,
		PartySize:   req.PartySize,
		Message:     req.Message,
	})
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusCreated, toReservationResponse(r))
}

// GetByID godoc
// @Summary 予約を取得
// @Description 申込者または投稿者のみ取得できます
// @Tags reservations
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /reservations/{id} [get]
func (h *ReservationHandler) GetByID(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return api.NewHTTPError(err)
	}
	r, err := h.service.Get(c.Request().Context(), c.Param("id"), actor.UserID)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// ListMine godoc
// @Summary 自分の予約一覧
// @Tags reservations
// @Produce json
// @Success 200 {array} ReservationResponse
// @Router /reservations/mine [get]
func (h *ReservationHandler) ListMine(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return api.NewHTTPError(err)
	}
	list, err := h.service.ListMine(c.Request().Context(), actor.UserID)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponses(list))
}

// ListReceived godoc
// @Summary 自分の投稿に届いた予約一覧
// @Tags reservations
// @Produce json
// @Success 200 {array} ReservationResponse
// @Router /reservations/received [get]
func (h *ReservationHandler) ListReceived(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return api.NewHTTPError(err)
	}
	list, err := h.service.ListReceived(c.Request().Context(), actor.UserID)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponses(list))
}

// Confirm godoc
// @Summary 予約を確定
// @Description 投稿者が保留中の予約を確定します
// @Tags reservations
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "定員超過"
// @Router /reservations/{id}/confirm [patch]
func (h *ReservationHandler) Confirm(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return api.NewHTTPError(err)
	}
	r, err := h.service.Confirm(c.Request().Context(), c.Param("id"), actor.UserID)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// Cancel godoc
// @Summary 予約をキャンセル
// @Description 申込者または投稿者が予約をキャンセルします。確定済みの場合は席を戻します
// @Tags reservations
// @Accept json
// @Produce json
// @Param id path string true "予約ID"
// @Param request body CancelReservationRequest false "キャンセル理由"
// @Success 200 {object} ReservationResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /reservations/{id}/cancel [patch]
func (h *ReservationHandler) Cancel(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return api.NewHTTPError(err)
	}
	var req CancelReservationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	r, err := h.service.Cancel(c.Request().Context(), c.Param("id"), actor.UserID, req.CancelReason)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// ListAll godoc
// @Summary 全予約一覧（管理者）
// @Tags admin
// @Produce json
// @Param limit query int false "取得件数"
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} ReservationResponse
// @Failure 403 {object} api.ErrorResponse
// @Router /admin/reservations [get]
func (h *ReservationHandler) ListAll(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return api.NewHTTPError(err)
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	list, err := h.service.ListAll(c.Request().Context(), actor, limit, offset)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toReservationResponses(list))
}
