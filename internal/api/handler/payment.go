package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/SeifEldin15/quackplan-backend/internal/pkg/logger"
)

// Webhookイベントタイプ（決済コラボレーターの命名に合わせる）
const (
	webhookSessionCompleted = "checkout.session.completed"
	webhookSessionExpired   = "checkout.session.expired"
)

type PaymentHandler struct {
	service PaymentServiceInterface
}

func NewPaymentHandler(s PaymentServiceInterface) *PaymentHandler {
	return &PaymentHandler{service: s}
}

type StartCheckoutRequest struct {
	EventID string `json:"event_id" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
}

type CheckoutResponse struct {
	Booking     *BookingResponse `json:"booking,omitempty"`
	HoldID      string           `json:"hold_id,omitempty"`
	SessionRef  string           `json:"session_ref,omitempty"`
	CheckoutURL string           `json:"checkout_url,omitempty"`
}

// WebhookRequest は決済コラボレーターからの通知
// 署名検証はコラボレーター側のSDK・リバースプロキシの責務とし、ここでは形だけ検証する
type WebhookRequest struct {
	Type string `json:"type" validate:"required"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Metadata struct {
				EventID string `json:"event_id"`
				UserID  string `json:"user_id"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// Checkout godoc
// @Summary チェックアウトを開始
// @Description 無料イベントは即予約、有料イベントは席をホールドして決済URLを返します
// @Tags payments
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param request body StartCheckoutRequest true "チェックアウト情報"
// @Success 201 {object} CheckoutResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 409 {object} map[string]string "満席"
// @Router /checkout [post]
func (h *PaymentHandler) Checkout(c echo.Context) error {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	var req StartCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	result, err := h.service.StartCheckout(c.Request().Context(), req.EventID, userID)
	if err != nil {
		return toHTTPError(err)
	}

	resp := CheckoutResponse{
		SessionRef:  result.SessionRef,
		CheckoutURL: result.CheckoutURL,
	}
	if result.Booking != nil {
		b := toBookingResponse(result.Booking)
		resp.Booking = &b
	}
	if result.Hold != nil {
		resp.HoldID = result.Hold.ID
	}
	return c.JSON(http.StatusCreated, resp)
}

// Webhook godoc
// @Summary 決済Webhookを受信
// @Description 決済コラボレーターからのセッション完了・期限切れ通知を処理します（at-least-once 配送前提の冪等処理）
// @Tags payments
// @Accept json
// @Produce json
// @Param request body WebhookRequest true "Webhookイベント"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /payments/webhook [post]
func (h *PaymentHandler) Webhook(c echo.Context) error {
	var req WebhookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	sessionRef := req.Data.Object.ID

	switch req.Type {
	case webhookSessionCompleted:
		eventID := req.Data.Object.Metadata.EventID
		userID := req.Data.Object.Metadata.UserID
		if sessionRef == "" || eventID == "" || userID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "Webhookペイロードが不完全です")
		}
		b, err := h.service.HandleSessionCompleted(ctx, eventID, userID, sessionRef)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(http.StatusOK, map[string]string{
			"received":   "true",
			"booking_id": b.ID,
			"status":     string(b.Status),
		})

	case webhookSessionExpired:
		if sessionRef == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "Webhookペイロードが不完全です")
		}
		if err := h.service.HandleSessionExpired(ctx, sessionRef); err != nil {
			return toHTTPError(err)
		}
		return c.JSON(http.StatusOK, map[string]string{"received": "true"})

	default:
		// 未知のイベントタイプは受領だけして無視する（再配送を止めるため200を返す）
		logger.Debug("未対応のWebhookタイプを無視", zap.String("type", req.Type))
		return c.JSON(http.StatusOK, map[string]string{"received": "true"})
	}
}
