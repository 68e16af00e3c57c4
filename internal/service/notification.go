package service

import (
	"log/slog"
	"time"

	"ridehail/internal/session"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationDriverArrived      NotificationType = "DRIVER_ARRIVED"
	NotificationDestinationArrived NotificationType = "DESTINATION_ARRIVED"
	NotificationStatusChanged      NotificationType = "STATUS_CHANGED"
)

// Notification is one outbound notification.
type Notification struct {
	Type      NotificationType
	SessionID string
	Title     string
	Message   string
	CreatedAt time.Time
}

// Deliverer fans a notification out to connected clients; the websocket
// hub implements it. Delivery is best-effort.
type Deliverer interface {
	Deliver(n Notification)
}

// NotificationService turns session machine notes into user-facing
// notifications. Arrival notes fire at most once per phase, so delivery
// here needs no deduplication.
type NotificationService struct {
	deliverer Deliverer
	log       *slog.Logger
}

// NewNotificationService creates a new NotificationService. deliverer may
// be nil; notes are then only logged.
func NewNotificationService(deliverer Deliverer, log *slog.Logger) *NotificationService {
	if log == nil {
		log = slog.Default()
	}
	return &NotificationService{deliverer: deliverer, log: log}
}

// Forward consumes a machine's notes until it unwinds. Run as a goroutine
// per session.
func (s *NotificationService) Forward(m *session.Machine) {
	for {
		select {
		case <-m.Done():
			return
		case note := <-m.Notes():
			s.send(note)
		}
	}
}

func (s *NotificationService) send(note session.Note) {
	n := Notification{
		SessionID: note.SessionID,
		CreatedAt: time.Now(),
	}
	switch note.Kind {
	case session.NoteDriverArrived:
		n.Type = NotificationDriverArrived
		n.Title = "Driver Arrived"
		n.Message = "Your driver has arrived at the pickup point."
	case session.NoteDestArrived:
		n.Type = NotificationDestinationArrived
		n.Title = "Arrived"
		n.Message = "You have arrived at your destination."
	case session.NoteStatusChanged:
		n.Type = NotificationStatusChanged
		n.Title = "Ride Update"
		n.Message = "Ride status: " + string(note.Status)
	default:
		return
	}

	s.log.Info("notification", "type", n.Type, "session_id", n.SessionID)
	if s.deliverer != nil {
		s.deliverer.Deliver(n)
	}
}
