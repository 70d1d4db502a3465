package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/farmlog/activity-reservation/internal/api"
	"github.com/farmlog/activity-reservation/internal/api/middleware"
	"github.com/farmlog/activity-reservation/internal/application"
	"github.com/farmlog/activity-reservation/internal/domain/activity"
)

type ActivityHandler struct {
	service ActivityServiceInterface
}

func NewActivityHandler(s ActivityServiceInterface) *ActivityHandler {
	return &ActivityHandler{service: s}
}

type PublishActivityRequest struct {
	Title       string     `json:"title" validate:"required,max=200" example:"さつまいも掘り体験"`
	Capacity    *int       `json:"capacity" validate:"omitempty,min=1,max=100" example:"10"`
	ScheduledAt *time.Time `json:"scheduledAt" validate:"required"`
	Price       int        `json:"price" validate:"min=0" example:"1500"`
	Location    string     `json:"location" validate:"max=200" example:"茨城県つくば市"`
}

type ActivityResponse struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"ownerId"`
	Title          string     `json:"title"`
	Category       string     `json:"category"`
	Capacity       *int       `json:"capacity"`
	ConfirmedCount int        `json:"confirmedCount"`
	ScheduledAt    *time.Time `json:"scheduledAt"`
	IsActive       bool       `json:"isActive"`
	Price          int        `json:"price"`
	Location       string     `json:"location,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type AvailabilityResponse struct {
	ActivityID string `json:"activityId"`
	Unlimited  bool   `json:"unlimited"`
	Remaining  *int   `json:"remaining"`
}

func toActivityResponse(a *activity.Activity) ActivityResponse {
	return ActivityResponse{
		ID: a.ID, OwnerID: a.OwnerID, Title: a.Title, Category: string(a.Category),
		Capacity: a.Capacity, ConfirmedCount: a.ConfirmedCount, ScheduledAt: a.ScheduledAt,
		IsActive: a.IsActive, Price: a.Price, Location: a.Location, CreatedAt: a.CreatedAt,
	}
}

func toAvailabilityResponse(av *application.Availability) AvailabilityResponse {
	resp := AvailabilityResponse{ActivityID: av.ActivityID, Unlimited: av.Unlimited}
	if !av.Unlimited {
		remaining := av.Remaining
		resp.Remaining = &remaining
	}
	return resp
}

// Publish godoc
// @Summary 予約受付の体験投稿を作成
// @Description EXPERT のみ作成できます
// @Tags activities
// @Accept json
// @Produce json
// @Param request body PublishActivityRequest true "体験情報"
// @Success 201 {object} ActivityResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 403 {object} api.ErrorResponse
// @Router /activities [post]
func (h *ActivityHandler) Publish(c echo.Context) error {
	actor, err := middleware.ActorFrom(c)
	if err != nil {
		return api.NewHTTPError(err)
	}
	var req PublishActivityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	a, err := h.service.Publish(c.Request().Context(), actor, application.PublishActivityInput{
		Title:       req.Title,
		Capacity:    req.Capacity,
		ScheduledAt: req.ScheduledAt,
		Price:       req.Price,
		Location:    req.Location,
	})
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusCreated, toActivityResponse(a))
}

// GetByID godoc
// @Summary 体験投稿を取得
// @Tags activities
// @Produce json
// @Param activityId path string true "体験投稿ID"
// @Success 200 {object} ActivityResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /activities/{activityId} [get]
func (h *ActivityHandler) GetByID(c echo.Context) error {
	a, err := h.service.Get(c.Request().Context(), c.Param("activityId"))
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toActivityResponse(a))
}

// Availability godoc
// @Summary 残席数を取得
// @Tags activities
// @Produce json
// @Param activityId path string true "体験投稿ID"
// @Success 200 {object} AvailabilityResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /activities/{activityId}/availability [get]
func (h *ActivityHandler) Availability(c echo.Context) error {
	av, err := h.service.Availability(c.Request().Context(), c.Param("activityId"))
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toAvailabilityResponse(av))
}
