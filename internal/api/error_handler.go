package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/farmlog/activity-reservation/internal/domain/activity"
	"github.com/farmlog/activity-reservation/internal/domain/booking"
	"github.com/farmlog/activity-reservation/internal/domain/identity"
	"github.com/farmlog/activity-reservation/internal/domain/reservation"
	"github.com/farmlog/activity-reservation/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

const internalErrorMessage = "内部サーバーエラー"

type errorStatus struct {
	err    error
	status int
}

// 先に一致したものを採用する
var errorStatuses = []errorStatus{
	{identity.ErrUnauthenticated, http.StatusUnauthorized},

	{activity.ErrActivityNotFound, http.StatusNotFound},
	{reservation.ErrReservationNotFound, http.StatusNotFound},

	{booking.ErrForbidden, http.StatusForbidden},
	{booking.ErrSelfBooking, http.StatusForbidden},

	{booking.ErrCapacityExceeded, http.StatusConflict},

	{booking.ErrNotBookable, http.StatusBadRequest},
	{booking.ErrExpired, http.StatusBadRequest},
	{reservation.ErrDuplicatePending, http.StatusBadRequest},
	{reservation.ErrInvalidTransition, http.StatusBadRequest},
	{reservation.ErrInvalidPartySize, http.StatusBadRequest},
	{reservation.ErrPartySizeTooLarge, http.StatusBadRequest},
	{reservation.ErrMessageTooLong, http.StatusBadRequest},
	{reservation.ErrActivityIDRequired, http.StatusBadRequest},
	{reservation.ErrRequesterIDRequired, http.StatusBadRequest},
	{activity.ErrOwnerIDRequired, http.StatusBadRequest},
	{activity.ErrTitleRequired, http.StatusBadRequest},
	{activity.ErrTitleTooLong, http.StatusBadRequest},
	{activity.ErrInvalidCapacity, http.StatusBadRequest},
	{activity.ErrInvalidPrice, http.StatusBadRequest},
	{activity.ErrInvalidConfirmedCount, http.StatusBadRequest},
	{activity.ErrScheduleRequired, http.StatusBadRequest},
}

func lookup(err error) (errorStatus, bool) {
	for _, es := range errorStatuses {
		if errors.Is(err, es.err) {
			return es, true
		}
	}
	return errorStatus{}, false
}

// StatusFor はドメインエラーに対応するHTTPステータスを返す。未知のエラーは500
func StatusFor(err error) int {
	if es, ok := lookup(err); ok {
		return es.status
	}
	return http.StatusInternalServerError
}

// NewHTTPError はサービス層のエラーをレスポンス用の *echo.HTTPError に変換する
// メッセージはラップ前のドメインエラーのものを使い、500 の場合は詳細を隠す
func NewHTTPError(err error) *echo.HTTPError {
	es, ok := lookup(err)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, internalErrorMessage).SetInternal(err)
	}
	return echo.NewHTTPError(es.status, es.err.Error()).SetInternal(err)
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if !errors.As(err, &he) {
		he = NewHTTPError(err)
	}

	code := he.Code
	message, ok := he.Message.(string)
	if !ok {
		message = http.StatusText(code)
	}
	if code >= http.StatusInternalServerError {
		message = internalErrorMessage
		logger.FromContext(c.Request().Context()).Error("サーバーエラー",
			zap.Int("status", code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, ErrorResponse{Error: message, Code: code})
	}
	if err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}
