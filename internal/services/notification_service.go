package services

import (
	"context"
	"log/slog"

	"rideescrow/internal/domain/entities"
	"rideescrow/pkg/utils"
)

// EventSink receives events after the call that emitted them has committed.
// A sink failure never undoes the call.
type EventSink interface {
	Name() string
	Publish(ctx context.Context, events []entities.Event) error
}

// NotificationService turns committed events into notifications for the
// parties of a ride. In a real deployment this would fan out to push
// providers; here every notification is a structured log record.
type NotificationService struct {
	log *slog.Logger
}

func NewNotificationService(log *slog.Logger) *NotificationService {
	return &NotificationService{log: log.With("component", "notifications")}
}

func (s *NotificationService) Name() string { return "notifications" }

func (s *NotificationService) Publish(ctx context.Context, events []entities.Event) error {
	for _, ev := range events {
		switch ev.Name {
		case entities.EventRideCreated:
			s.notifyDriverOfRideCreated(ctx, ev)
		case entities.EventPassengerAdded:
			s.notifyPassengerAdmitted(ctx, ev)
		case entities.EventRideStarted:
			s.notifyRideStarted(ctx, ev)
		default:
			s.log.WarnContext(ctx, "unknown event", "event", ev.Name, "contract", ev.Contract)
		}
	}
	return nil
}

func (s *NotificationService) notifyDriverOfRideCreated(ctx context.Context, ev entities.Event) {
	attrs := []any{"ride", ev.Ride, "tx_id", ev.TxID}
	if ev.Driver != nil {
		attrs = append(attrs, "driver", *ev.Driver)
	}
	if ev.Price != nil {
		attrs = append(attrs, "price", utils.FormatAmount(uint64(*ev.Price)))
	}
	s.log.InfoContext(ctx, "driver notified: new ride created", attrs...)
}

func (s *NotificationService) notifyPassengerAdmitted(ctx context.Context, ev entities.Event) {
	s.log.InfoContext(ctx, "passenger notified: payment held in escrow",
		"ride", ev.Contract, "passenger", ev.Passenger, "tx_id", ev.TxID)
}

func (s *NotificationService) notifyRideStarted(ctx context.Context, ev entities.Event) {
	s.log.InfoContext(ctx, "participants notified: ride started",
		"ride", ev.Contract, "tx_id", ev.TxID)
}
