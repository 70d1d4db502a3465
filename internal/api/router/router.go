package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/farmlog/activity-reservation/internal/api"
	"github.com/farmlog/activity-reservation/internal/api/handler"
	"github.com/farmlog/activity-reservation/internal/api/middleware"
	"github.com/farmlog/activity-reservation/internal/pkg/metrics"
)

// Config はルーティングに必要な依存
type Config struct {
	JWTSecret       string
	MetricsUser     string
	MetricsPassword string
	// Metrics が nil の場合 /metrics とHTTPメトリクスは無効
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	Reservations handler.ReservationServiceInterface
	Activities   handler.ActivityServiceInterface
	HealthChecks map[string]handler.HealthCheck
}

// New は共通ミドルウェアとルートを設定した Echo を返す
func New(cfg Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler

	middleware.SetupMiddleware(e, cfg.Metrics)
	Register(e, cfg)
	return e
}

// Register はルートを登録する
func Register(e *echo.Echo, cfg Config) {
	e.GET("/health", handler.NewHealthHandler(cfg.HealthChecks).Check)

	if cfg.Metrics != nil {
		gatherer := cfg.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		e.GET("/metrics",
			echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})),
			middleware.MetricsBasicAuth(cfg.MetricsUser, cfg.MetricsPassword),
		)
	}

	reservations := handler.NewReservationHandler(cfg.Reservations)
	activities := handler.NewActivityHandler(cfg.Activities)

	v1 := e.Group("/api/v1", middleware.JWTAuth(cfg.JWTSecret))

	v1.POST("/activities", activities.Publish)
	v1.GET("/activities/:activityId", activities.GetByID)
	v1.GET("/activities/:activityId/availability", activities.Availability)
	v1.POST("/activities/:activityId/reservations", reservations.Create)

	v1.GET("/reservations/mine", reservations.ListMine)
	v1.GET("/reservations/received", reservations.ListReceived)
	v1.GET("/reservations/:id", reservations.GetByID)
	v1.PATCH("/reservations/:id/confirm", reservations.Confirm)
	v1.PATCH("/reservations/:id/cancel", reservations.Cancel)

	v1.GET("/admin/reservations", reservations.ListAll)
}
