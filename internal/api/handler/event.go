package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/SeifEldin15/quackplan-backend/internal/application"
	"github.com/SeifEldin15/quackplan-backend/internal/domain/event"
)

type EventHandler struct {
	service EventServiceInterface
}

func NewEventHandler(s EventServiceInterface) *EventHandler {
	return &EventHandler{service: s}
}

type CreateEventRequest struct {
	Title       string    `json:"title" validate:"required" example:"朝のヨガ教室"`
	Description string    `json:"description" example:"初心者歓迎のリラックスヨガ"`
	Location    string    `json:"location" example:"スタジオA"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	EndsAt      time.Time `json:"ends_at" validate:"required"`
	Capacity    int       `json:"capacity" validate:"gte=0" example:"20"`
	PriceAmount int       `json:"price_amount" validate:"gte=0" example:"1500"`
}

type UpdateEventStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft published cancelled" example:"published"`
}

type EventResponse struct {
	ID          string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	VendorID    string    `json:"vendor_id" example:"vendor-123"`
	Title       string    `json:"title" example:"朝のヨガ教室"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty" example:"スタジオA"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Capacity    int       `json:"capacity" example:"20"`
	PriceAmount int       `json:"price_amount" example:"1500"`
	Status      string    `json:"status" example:"published"`
	CreatedAt   time.Time `json:"created_at"`
}

type AvailabilityResponse struct {
	EventID   string `json:"event_id"`
	Capacity  int    `json:"capacity" example:"20"`
	Confirmed int    `json:"confirmed" example:"12"`
	Held      int    `json:"held" example:"3"`
	Remaining int    `json:"remaining" example:"5"`
}

func toEventResponse(e *event.Event) EventResponse {
	return EventResponse{
		ID: e.ID, VendorID: e.VendorID, Title: e.Title,
		Description: e.Description, Location: e.Location,
		StartsAt: e.StartsAt, EndsAt: e.EndsAt,
		Capacity: e.Capacity, PriceAmount: e.PriceAmount,
		Status: string(e.Status), CreatedAt: e.CreatedAt,
	}
}

// Create godoc
// @Summary イベントを作成
// @Description 新しいイベントを draft 状態で作成します
// @Tags events
// @Accept json
// @Produce json
// @Param X-User-ID header string true "主催者ID"
// @Param request body CreateEventRequest true "イベント情報"
// @Success 201 {object} EventResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /events [post]
func (h *EventHandler) Create(c echo.Context) error {
	vendorID := c.Request().Header.Get("X-User-ID")
	if vendorID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	var req CreateEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ev, err := h.service.CreateEvent(c.Request().Context(), application.CreateEventInput{
		VendorID:    vendorID,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Capacity:    req.Capacity,
		PriceAmount: req.PriceAmount,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, toEventResponse(ev))
}

// GetByID godoc
// @Summary イベントを取得
// @Description 指定IDのイベントを取得します
// @Tags events
// @Produce json
// @Param id path string true "イベントID"
// @Success 200 {object} EventResponse
// @Failure 404 {object} map[string]string
// @Router /events/{id} [get]
func (h *EventHandler) GetByID(c echo.Context) error {
	ev, err := h.service.GetEvent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toEventResponse(ev))
}

// List godoc
// @Summary イベント一覧を取得
// @Description イベント一覧を取得します
// @Tags events
// @Produce json
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} EventResponse
// @Router /events [get]
func (h *EventHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	events, err := h.service.ListEvents(c.Request().Context(), limit, offset)
	if err != nil {
		return toHTTPError(err)
	}
	resp := make([]EventResponse, len(events))
	for i, ev := range events {
		resp[i] = toEventResponse(ev)
	}
	return c.JSON(http.StatusOK, resp)
}

// UpdateStatus godoc
// @Summary イベントの公開状態を変更
// @Description イベントを公開・キャンセルします（主催者向け）
// @Tags events
// @Accept json
// @Produce json
// @Param id path string true "イベントID"
// @Param request body UpdateEventStatusRequest true "公開状態"
// @Success 200 {object} EventResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /events/{id}/status [patch]
func (h *EventHandler) UpdateStatus(c echo.Context) error {
	var req UpdateEventStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ev, err := h.service.UpdateEventStatus(c.Request().Context(), c.Param("id"), event.Status(req.Status))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toEventResponse(ev))
}

// GetAvailability godoc
// @Summary 残席数を取得
// @Description イベントの残席数を取得します（確定予約と有効ホールドを差し引いた数）
// @Tags events
// @Produce json
// @Param id path string true "イベントID"
// @Success 200 {object} AvailabilityResponse
// @Failure 404 {object} map[string]string
// @Router /events/{id}/availability [get]
func (h *EventHandler) GetAvailability(c echo.Context) error {
	a, err := h.service.GetAvailability(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, AvailabilityResponse{
		EventID:   a.EventID,
		Capacity:  a.Capacity,
		Confirmed: a.Confirmed,
		Held:      a.Held,
		Remaining: a.Remaining,
	})
}
