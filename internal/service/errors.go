package service

import (
	"errors"
	"fmt"
)

// ValidationError reports a defect in caller input.
type ValidationError struct {
	Message string
}

func (validationError *ValidationError) Error() string {
	return validationError.Message
}

// ConfigurationError reports missing or unusable server-side settings.
type ConfigurationError struct {
	Message string
}

func (configurationError *ConfigurationError) Error() string {
	return configurationError.Message
}

var (
	ErrQuestionRequired    = &ValidationError{Message: "question field is required"}
	ErrFileTypeNotAllowed  = &ValidationError{Message: "file type not allowed"}
	ErrRecipientRequired   = &ValidationError{Message: "email is required"}
	ErrCredentialsMissing  = &ConfigurationError{Message: "email credentials not configured"}
	ErrUpstreamUnreachable = errors.New("failed to reach Flowise")
	ErrUpstreamProtocol    = errors.New("invalid response from flowise")
)

// UpstreamError wraps a transport failure talking to the prediction backend.
type UpstreamError struct {
	Err error
}

func (upstreamError *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", ErrUpstreamUnreachable.Error(), upstreamError.Err)
}

func (upstreamError *UpstreamError) Unwrap() []error {
	return []error{ErrUpstreamUnreachable, upstreamError.Err}
}

// Detail is the client-visible failure description.
func (upstreamError *UpstreamError) Detail() string {
	return upstreamError.Err.Error()
}

// ProtocolError reports a backend reply that is not JSON.
type ProtocolError struct {
	StatusCode int
	// Raw is the reply text, already truncated for clients.
	Raw string
}

func (protocolError *ProtocolError) Error() string {
	return fmt.Sprintf("%s (status %d)", ErrUpstreamProtocol.Error(), protocolError.StatusCode)
}

func (protocolError *ProtocolError) Unwrap() error {
	return ErrUpstreamProtocol
}

// DeliveryFailureKind classifies SMTP delivery failures.
type DeliveryFailureKind string

const (
	DeliveryFailureAuth     DeliveryFailureKind = "auth"
	DeliveryFailureNetwork  DeliveryFailureKind = "network"
	DeliveryFailureRejected DeliveryFailureKind = "rejected"
)

// DeliveryError reports an SMTP send that did not complete.
type DeliveryError struct {
	Kind DeliveryFailureKind
	Err  error
}

func (deliveryError *DeliveryError) Error() string {
	return fmt.Sprintf("smtp %s failure: %v", deliveryError.Kind, deliveryError.Err)
}

func (deliveryError *DeliveryError) Unwrap() error {
	return deliveryError.Err
}

// Detail is the client-visible failure description.
func (deliveryError *DeliveryError) Detail() string {
	return deliveryError.Err.Error()
}
