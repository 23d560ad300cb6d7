package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/ksuid"

	"RetailBackOffice/pkg/config"
	"RetailBackOffice/pkg/connection"
	"RetailBackOffice/pkg/logger"
	"RetailBackOffice/services/notification-service/internal/template"
)

// Config конфигурация SMTP отправителя
type Config struct {
	Host          string
	Port          int
	Username      string
	Password      string
	FromAddress   string
	FromName      string
	UseStartTLS   bool
	Timeout       time.Duration
	RetryAttempts int
}

// ConfigFrom переводит общую конфигурацию в конфигурацию отправителя
func ConfigFrom(cfg config.SMTPConfig) Config {
	return Config{
		Host:          cfg.Host,
		Port:          cfg.Port,
		Username:      cfg.Username,
		Password:      cfg.Password,
		FromAddress:   cfg.FromAddress,
		FromName:      cfg.FromName,
		UseStartTLS:   cfg.UseStartTLS,
		Timeout:       cfg.Timeout.Duration,
		RetryAttempts: cfg.RetryAttempts,
	}
}

// transport доставляет готовое сообщение одному получателю
type transport func(ctx context.Context, from, to string, message []byte) error

// Sender отправляет письма через SMTP
type Sender struct {
	config Config
	retry  connection.RetryConfig
	send   transport
	logger logger.Logger
}

// NewSender создает SMTP отправителя
func NewSender(cfg Config, log logger.Logger) *Sender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}

	s := &Sender{
		config: cfg,
		retry: connection.RetryConfig{
			MaxAttempts:  cfg.RetryAttempts,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2,
			Jitter:       true,
		},
		logger: log,
	}
	s.send = s.sendSMTP
	return s
}

// Send отправляет письмо. Временные ошибки SMTP повторяются,
// отказ сервера с кодом 5xx и некорректный адрес возвращаются сразу (см. IsPermanent).
func (s *Sender) Send(ctx context.Context, to, messageID string, msg template.Message) error {
	if _, err := mail.ParseAddress(to); err != nil {
		return fmt.Errorf("%w: %w", &invalidRecipientError{to: to}, err)
	}

	from := (&mail.Address{Name: s.config.FromName, Address: s.config.FromAddress}).String()
	body := buildMessage(from, to, messageID, msg)

	attempt := 0
	err := connection.WithRetry(ctx, s.retry, func(ctx context.Context) error {
		attempt++
		err := s.send(ctx, s.config.FromAddress, to, body)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return connection.Permanent(err)
		}
		s.logger.Warn("Email send attempt failed",
			logger.String("message_id", messageID),
			logger.Int("attempt", attempt),
			logger.Error(err))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// IsPermanent сообщает, что SMTP сервер окончательно отклонил письмо
func IsPermanent(err error) bool {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code >= 500
	}
	var addrErr *invalidRecipientError
	return errors.As(err, &addrErr)
}

type invalidRecipientError struct{ to string }

func (e *invalidRecipientError) Error() string { return "recipient rejected: " + e.to }

// sendSMTP одна попытка доставки через net/smtp
func (s *Sender) sendSMTP(ctx context.Context, from, to string, message []byte) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	dialer := net.Dialer{Timeout: s.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial SMTP server: %w", err)
	}
	deadline := time.Now().Add(s.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer client.Close()

	if s.config.UseStartTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.config.Host}); err != nil {
				return fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}

	if s.config.Username != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code >= 500 {
			return fmt.Errorf("%w: %w", &invalidRecipientError{to: to}, err)
		}
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err := wc.Write(message); err != nil {
		return fmt.Errorf("failed to write email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to finish email data: %w", err)
	}
	return client.Quit()
}

// buildMessage собирает multipart/alternative письмо с текстовой и HTML частью
func buildMessage(from, to, messageID string, msg template.Message) []byte {
	boundary := "b" + ksuid.New().String()

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	if messageID != "" {
		b.WriteString("Message-ID: <" + messageID + ">\r\n")
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/alternative; boundary=" + boundary + "\r\n")
	b.WriteString("\r\n")

	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Text)
	b.WriteString("\r\n")

	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(msg.HTML)
	b.WriteString("\r\n")

	b.WriteString("--" + boundary + "--\r\n")
	return []byte(b.String())
}
