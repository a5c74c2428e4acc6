package handler

import (
	"context"

	"github.com/SeifEldin15/quackplan-backend/internal/application"
	"github.com/SeifEldin15/quackplan-backend/internal/domain/booking"
	"github.com/SeifEldin15/quackplan-backend/internal/domain/event"
)

// EventServiceInterface はイベントサービスのインターフェース
type EventServiceInterface interface {
	CreateEvent(ctx context.Context, input application.CreateEventInput) (*event.Event, error)
	GetEvent(ctx context.Context, id string) (*event.Event, error)
	ListEvents(ctx context.Context, limit, offset int) ([]*event.Event, error)
	UpdateEventStatus(ctx context.Context, id string, status event.Status) (*event.Event, error)
	GetAvailability(ctx context.Context, eventID string) (*application.Availability, error)
}

// BookingServiceInterface は予約サービスのインターフェース
type BookingServiceInterface interface {
	CreateBooking(ctx context.Context, eventID, userID string) (*booking.Booking, error)
	GetBooking(ctx context.Context, id string) (*booking.Booking, error)
	CancelBooking(ctx context.Context, bookingID, byUserID string) (*application.CancelResult, error)
	ListUserBookings(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error)
	ListEventBookings(ctx context.Context, eventID string, limit, offset int) ([]*booking.Booking, error)
	UpdateBookingStatus(ctx context.Context, bookingID string, status booking.Status) (*booking.Booking, error)
}

// PaymentServiceInterface は決済サービスのインターフェース
type PaymentServiceInterface interface {
	StartCheckout(ctx context.Context, eventID, userID string) (*application.CheckoutResult, error)
	HandleSessionCompleted(ctx context.Context, eventID, userID, sessionRef string) (*booking.Booking, error)
	HandleSessionExpired(ctx context.Context, sessionRef string) error
}
