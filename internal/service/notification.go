package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"rental/internal/clock"
	"rental/internal/domain"
	"rental/internal/logger"
	"rental/internal/mail"
	"rental/internal/money"
	"rental/internal/receipt"
)

// NotificationType represents the type of notification. It doubles as the
// routing key of the published event.
type NotificationType string

const (
	NotificationRentalRequested NotificationType = "rental.requested"
	NotificationRentalApproved  NotificationType = "rental.approved"
	NotificationRentalRejected  NotificationType = "rental.rejected"
	NotificationRentalCancelled NotificationType = "rental.cancelled"
	NotificationRentalRenewed   NotificationType = "rental.renewed"
	NotificationRentalCompleted NotificationType = "rental.completed"
	NotificationPaymentSuccess  NotificationType = "payment.succeeded"
	NotificationPaymentFailed   NotificationType = "payment.failed"
)

// Notification represents a notification to be sent.
type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	RecipientID string           `json:"recipient_id"` // Customer or owner ID
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Data        map[string]any   `json:"data"`
	CreatedAt   time.Time        `json:"created_at"`
}

// EventPublisher publishes notifications to the message broker.
type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// NotificationService handles notification delivery. Delivery is best effort:
// failures are logged and never undo the state change that triggered them.
type NotificationService struct {
	publisher EventPublisher
	mailer    Mailer
	clock     clock.Clock
}

// NewNotificationService creates a new NotificationService. publisher and
// mailer may be nil, in which case notifications are only logged.
func NewNotificationService(publisher EventPublisher, mailer Mailer, clk clock.Clock) *NotificationService {
	if clk == nil {
		clk = clock.System{}
	}
	return &NotificationService{publisher: publisher, mailer: mailer, clock: clk}
}

func rentalData(r *domain.RentalRequest) map[string]any {
	return map[string]any{
		"rental_request_id": r.ID,
		"vehicle_id":        r.VehicleID,
		"customer_id":       r.CustomerID,
		"start_date":        clock.FormatDate(r.StartDate),
		"end_date":          clock.FormatDate(r.EndDate),
		"total_amount":      money.Format(r.TotalAmount),
		"status":            string(r.Status),
	}
}

// NotifyRentalRequested notifies the owner that a vehicle was requested.
func (s *NotificationService) NotifyRentalRequested(ctx context.Context, rental *domain.RentalRequest, ownerID string) error {
	return s.send(ctx, Notification{
		Type:        NotificationRentalRequested,
		RecipientID: ownerID,
		Title:       "New Rental Request",
		Message:     fmt.Sprintf("Your vehicle was requested from %s to %s", clock.FormatDate(rental.StartDate), clock.FormatDate(rental.EndDate)),
		Data:        rentalData(rental),
	})
}

// NotifyRentalApproved notifies the customer that the owner approved the request.
func (s *NotificationService) NotifyRentalApproved(ctx context.Context, rental *domain.RentalRequest) error {
	return s.send(ctx, Notification{
		Type:        NotificationRentalApproved,
		RecipientID: rental.CustomerID,
		Title:       "Rental Approved",
		Message:     fmt.Sprintf("Your rental was approved. Amount due: %s", money.Format(rental.TotalAmount)),
		Data:        rentalData(rental),
	})
}

// NotifyRentalRejected notifies the customer that the owner rejected the request.
func (s *NotificationService) NotifyRentalRejected(ctx context.Context, rental *domain.RentalRequest) error {
	return s.send(ctx, Notification{
		Type:        NotificationRentalRejected,
		RecipientID: rental.CustomerID,
		Title:       "Rental Rejected",
		Message:     "The owner declined your rental request",
		Data:        rentalData(rental),
	})
}

// NotifyRentalCancelled notifies the owner that the customer withdrew a request.
func (s *NotificationService) NotifyRentalCancelled(ctx context.Context, rental *domain.RentalRequest, ownerID string) error {
	return s.send(ctx, Notification{
		Type:        NotificationRentalCancelled,
		RecipientID: ownerID,
		Title:       "Rental Withdrawn",
		Message:     "The customer withdrew the rental request",
		Data:        rentalData(rental),
	})
}

// NotifyRentalRenewed notifies the owner that a rental was extended.
func (s *NotificationService) NotifyRentalRenewed(ctx context.Context, rental *domain.RentalRequest, ownerID string) error {
	return s.send(ctx, Notification{
		Type:        NotificationRentalRenewed,
		RecipientID: ownerID,
		Title:       "Rental Extended",
		Message:     fmt.Sprintf("The rental now ends on %s", clock.FormatDate(rental.EndDate)),
		Data:        rentalData(rental),
	})
}

// NotifyRentalCompleted notifies the customer that the rental term is over.
func (s *NotificationService) NotifyRentalCompleted(ctx context.Context, rental *domain.RentalRequest) error {
	return s.send(ctx, Notification{
		Type:        NotificationRentalCompleted,
		RecipientID: rental.CustomerID,
		Title:       "Rental Completed",
		Message:     "Your rental is complete. Thank you!",
		Data:        rentalData(rental),
	})
}

// NotifyPaymentSuccess notifies the customer of a successful payment and
// emails the receipt document.
func (s *NotificationService) NotifyPaymentSuccess(ctx context.Context, payment *domain.Payment, rec *domain.Receipt, doc []byte, customer *domain.User) error {
	err := s.send(ctx, Notification{
		Type:        NotificationPaymentSuccess,
		RecipientID: rec.Customer.ID,
		Title:       "Payment Successful",
		Message:     fmt.Sprintf("Payment of %s %s was successful", rec.Currency, money.Format(payment.Amount)),
		Data: map[string]any{
			"payment_id":        payment.ID,
			"rental_request_id": payment.RentalRequestID,
			"amount":            money.Format(payment.Amount),
			"method":            string(payment.Method),
			"receipt_id":        rec.ID,
			"receipt_url":       payment.ReceiptURL,
		},
	})

	if s.mailer == nil || customer == nil || customer.Email == "" {
		return err
	}

	mailErr := s.mailer.Send(ctx, mail.Message{
		ToEmail:   customer.Email,
		ToName:    customer.Name,
		Subject:   "Your rental receipt " + rec.ID,
		PlainText: receipt.FormatText(rec),
		Attachments: []mail.Attachment{
			{Filename: receipt.Filename(rec), ContentType: "application/pdf", Content: doc},
		},
	})
	if mailErr != nil {
		logger.FromContext(ctx).WithError(mailErr).WithField("payment_id", payment.ID).Warn("receipt email not delivered")
		return mailErr
	}
	return err
}

// NotifyPaymentFailed notifies the customer of a failed payment.
func (s *NotificationService) NotifyPaymentFailed(ctx context.Context, payment *domain.Payment, customerID string) error {
	return s.send(ctx, Notification{
		Type:        NotificationPaymentFailed,
		RecipientID: customerID,
		Title:       "Payment Failed",
		Message:     fmt.Sprintf("Payment of %s failed. Please try again.", money.Format(payment.Amount)),
		Data: map[string]any{
			"payment_id":        payment.ID,
			"rental_request_id": payment.RentalRequestID,
			"amount":            money.Format(payment.Amount),
			"method":            string(payment.Method),
			"reason":            payment.FailureReason,
		},
	})
}

// send logs the notification and publishes it to the broker.
func (s *NotificationService) send(ctx context.Context, n Notification) error {
	n.ID = uuid.NewString()
	n.CreatedAt = s.clock.Now()

	entry := logger.FromContext(ctx).WithFields(log.Fields{
		"notification": n.Type,
		"recipient":    n.RecipientID,
	})
	entry.Info(n.Title)

	if s.publisher == nil {
		return nil
	}

	if err := s.publisher.PublishJSON(ctx, string(n.Type), n); err != nil {
		entry.WithError(err).Warn("event not published")
		return err
	}
	return nil
}
