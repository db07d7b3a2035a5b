package service

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

const defaultSMTPTimeout = 30 * time.Second

// SMTPConfig describes an implicit-TLS SMTP relay and the sender account.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	// Timeout bounds the dial and the whole SMTP conversation.
	Timeout time.Duration
}

// EmailSender delivers a single plain-text message.
type EmailSender interface {
	SendEmail(ctx context.Context, recipient string, subject string, body string) error
}

type dialContextFunc func(ctx context.Context, network string, address string) (net.Conn, error)

// SMTPEmailSender opens one TLS session per message and always tears it down.
type SMTPEmailSender struct {
	config      SMTPConfig
	logger      *slog.Logger
	dialContext dialContextFunc
	now         func() time.Time
}

func NewSMTPEmailSender(cfg SMTPConfig, logger *slog.Logger) *SMTPEmailSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	tlsDialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: cfg.Timeout},
		Config:    &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
	}
	return &SMTPEmailSender{
		config:      cfg,
		logger:      logger,
		dialContext: tlsDialer.DialContext,
		now:         time.Now,
	}
}

// SendEmail returns a *DeliveryError on any failure.
func (sender *SMTPEmailSender) SendEmail(ctx context.Context, recipient string, subject string, body string) error {
	ctx, cancel := context.WithTimeout(ctx, sender.config.Timeout)
	defer cancel()

	address := net.JoinHostPort(sender.config.Host, strconv.Itoa(sender.config.Port))
	connection, err := sender.dialContext(ctx, "tcp", address)
	if err != nil {
		return &DeliveryError{Kind: DeliveryFailureNetwork, Err: fmt.Errorf("dial %s: %w", address, err)}
	}
	defer connection.Close()

	deadline, _ := ctx.Deadline()
	if err := connection.SetDeadline(deadline); err != nil {
		return &DeliveryError{Kind: DeliveryFailureNetwork, Err: fmt.Errorf("set deadline: %w", err)}
	}

	client, err := smtp.NewClient(connection, sender.config.Host)
	if err != nil {
		return classifyDeliveryError(DeliveryFailureNetwork, fmt.Errorf("smtp greeting: %w", err))
	}
	defer client.Close()

	auth := smtp.PlainAuth("", sender.config.Username, sender.config.Password, sender.config.Host)
	if err := client.Auth(auth); err != nil {
		return classifyDeliveryError(DeliveryFailureAuth, fmt.Errorf("smtp auth: %w", err))
	}
	if err := client.Mail(sender.config.FromAddress); err != nil {
		return classifyDeliveryError(DeliveryFailureRejected, fmt.Errorf("smtp mail from: %w", err))
	}
	if err := client.Rcpt(recipient); err != nil {
		return classifyDeliveryError(DeliveryFailureRejected, fmt.Errorf("smtp rcpt to: %w", err))
	}

	dataWriter, err := client.Data()
	if err != nil {
		return classifyDeliveryError(DeliveryFailureRejected, fmt.Errorf("smtp data: %w", err))
	}
	message := buildEmailMessage(sender.config.FromAddress, recipient, subject, body, sender.now())
	if _, err := io.WriteString(dataWriter, message); err != nil {
		_ = dataWriter.Close()
		return classifyDeliveryError(DeliveryFailureNetwork, fmt.Errorf("smtp write body: %w", err))
	}
	if err := dataWriter.Close(); err != nil {
		return classifyDeliveryError(DeliveryFailureRejected, fmt.Errorf("smtp end data: %w", err))
	}

	if err := client.Quit(); err != nil {
		// The message was accepted before QUIT failed.
		sender.logger.Warn("SMTP quit failed after delivery", "recipient", recipient, "error", err)
	}
	return nil
}

// classifyDeliveryError keeps the stage's kind for protocol replies and reports everything
// else coming off the wire as a network failure.
func classifyDeliveryError(stageKind DeliveryFailureKind, err error) *DeliveryError {
	var protocolReply *textproto.Error
	if errors.As(err, &protocolReply) {
		if stageKind == DeliveryFailureNetwork {
			return &DeliveryError{Kind: DeliveryFailureRejected, Err: err}
		}
		return &DeliveryError{Kind: stageKind, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return &DeliveryError{Kind: DeliveryFailureNetwork, Err: err}
	}
	return &DeliveryError{Kind: stageKind, Err: err}
}

func buildEmailMessage(from string, to string, subject string, body string, sentAt time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("From: %s\r\n", sanitizeHeaderValue(from)))
	sb.WriteString(fmt.Sprintf("To: %s\r\n", sanitizeHeaderValue(to)))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", sanitizeHeaderValue(subject))))
	sb.WriteString(fmt.Sprintf("Date: %s\r\n", sentAt.Format(time.RFC1123Z)))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	sb.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	sb.WriteString("\r\n")

	bodyWriter := quotedprintable.NewWriter(&sb)
	_, _ = bodyWriter.Write([]byte(body))
	_ = bodyWriter.Close()
	return sb.String()
}

func sanitizeHeaderValue(value string) string {
	return strings.Map(func(character rune) rune {
		if character == '\r' || character == '\n' {
			return -1
		}
		return character
	}, value)
}
