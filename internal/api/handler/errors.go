package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/SeifEldin15/quackplan-backend/internal/domain/booking"
	"github.com/SeifEldin15/quackplan-backend/internal/domain/event"
	"github.com/SeifEldin15/quackplan-backend/internal/domain/hold"
)

// toHTTPError はドメインエラーをHTTPステータスにマッピングする
// 404: 対象が存在しない / 409: 定員・一意制約・受付状態の競合 / 400: 入力不正
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, event.ErrEventNotFound),
		errors.Is(err, booking.ErrBookingNotFound),
		errors.Is(err, hold.ErrHoldNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())

	case errors.Is(err, hold.ErrEventAtCapacity),
		errors.Is(err, event.ErrEventNotPublished),
		errors.Is(err, booking.ErrBookingConflict),
		errors.Is(err, hold.ErrHoldConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())

	case errors.Is(err, booking.ErrBookingNotConfirmed),
		errors.Is(err, booking.ErrBookingNotWaitlisted),
		errors.Is(err, booking.ErrInvalidStatus),
		errors.Is(err, event.ErrInvalidStatus),
		errors.Is(err, event.ErrVendorIDRequired),
		errors.Is(err, event.ErrTitleRequired),
		errors.Is(err, event.ErrInvalidCapacity),
		errors.Is(err, event.ErrInvalidPrice),
		errors.Is(err, event.ErrInvalidEventTime):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())

	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
