package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tyemirov/guiderelay/internal/model"
)

// NotificationSender emails a text body to one recipient.
type NotificationSender interface {
	SendNotification(ctx context.Context, request model.EmailRequest) error
}

// DeliveryRecorder persists the outcome of a delivery attempt.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, record model.DeliveryRecord) error
}

// SenderCredentials are the server-side account used as the From address.
type SenderCredentials struct {
	Username string
	Password string
}

// Configured reports whether both credential halves are present.
func (credentials SenderCredentials) Configured() bool {
	return credentials.Username != "" && credentials.Password != ""
}

type notificationSenderImpl struct {
	credentials SenderCredentials
	emailSender EmailSender
	recorder    DeliveryRecorder
	logger      *slog.Logger
}

// NewNotificationSender wires validation and delivery logging around emailSender.
// recorder may be nil when the delivery log is disabled.
func NewNotificationSender(credentials SenderCredentials, emailSender EmailSender, recorder DeliveryRecorder, logger *slog.Logger) NotificationSender {
	return &notificationSenderImpl{
		credentials: credentials,
		emailSender: emailSender,
		recorder:    recorder,
		logger:      logger,
	}
}

func (sender *notificationSenderImpl) SendNotification(ctx context.Context, request model.EmailRequest) error {
	if request.Recipient == "" {
		return ErrRecipientRequired
	}
	if !sender.credentials.Configured() {
		sender.logger.Error("Email credentials not configured on server environment")
		return ErrCredentialsMissing
	}

	started := time.Now()
	var deliveryErr *DeliveryError
	if sendErr := sender.emailSender.SendEmail(ctx, request.Recipient, request.Subject, request.Body); sendErr != nil {
		if !errors.As(sendErr, &deliveryErr) {
			deliveryErr = &DeliveryError{Kind: DeliveryFailureNetwork, Err: sendErr}
		}
	}

	record := model.DeliveryRecord{
		Recipient: request.Recipient,
		Subject:   request.Subject,
		Status:    model.DeliveryStatusSent,
		CreatedAt: started.UTC(),
	}
	if deliveryErr != nil {
		record.Status = model.DeliveryStatusFailed
		record.FailureKind = string(deliveryErr.Kind)
		record.FailureDetail = deliveryErr.Error()
		sender.logger.Error("Failed to send itinerary email", "recipient", request.Recipient, "kind", deliveryErr.Kind, "error", deliveryErr)
	} else {
		sender.logger.Info("itinerary_email_sent", "recipient", request.Recipient, "duration_ms", time.Since(started).Milliseconds())
	}
	sender.record(ctx, record)

	if deliveryErr != nil {
		return deliveryErr
	}
	return nil
}

func (sender *notificationSenderImpl) record(ctx context.Context, record model.DeliveryRecord) {
	if sender.recorder == nil {
		return
	}
	if err := sender.recorder.RecordDelivery(context.WithoutCancel(ctx), record); err != nil {
		sender.logger.Error("Failed to record delivery", "recipient", record.Recipient, "error", err)
	}
}
