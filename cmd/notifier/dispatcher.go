package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"github.com/smartfix-dev/smartfix-api/services"
)

// Mailer sends a plain-text e-mail
type Mailer interface {
	Send(to, subject, body string) error
}

// ChatSender posts a message to a chat
type ChatSender interface {
	SendText(chatID int64, text string) error
}

// DefaultSMTPTimeout bounds a whole SMTP exchange when SMTPMailer.Timeout is unset
const DefaultSMTPTimeout = 30 * time.Second

// SMTPMailer delivers mail through an SMTP relay with PLAIN auth.
// STARTTLS is used when the relay offers it.
type SMTPMailer struct {
	Host    string
	Port    string
	User    string
	Pass    string
	From    string
	Timeout time.Duration
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("refusing to send mail with a line break in a header")
	}

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = DefaultSMTPTimeout
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(m.Host, m.Port), timeout)
	if err != nil {
		return fmt.Errorf("failed to reach smtp relay: %w", err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("failed to set smtp deadline: %w", err)
	}

	c, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		return fmt.Errorf("failed to greet smtp relay: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.Host}); err != nil {
			return fmt.Errorf("failed to start tls: %w", err)
		}
	}
	if m.User != "" {
		if err := c.Auth(smtp.PlainAuth("", m.User, m.Pass, m.Host)); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}

	msg := "From: " + m.From + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"Content-Type: text/plain; charset=\"utf-8\"\r\n" +
		"\r\n" +
		body + "\r\n"

	if err := c.Mail(m.From); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return c.Quit()
}

// TelegramSender posts messages through the Telegram bot API
type TelegramSender struct {
	api *tgbotapi.BotAPI
}

// NewTelegramSender authorizes the bot token
func NewTelegramSender(token string) (*TelegramSender, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to authorize telegram bot: %w", err)
	}
	api.Debug = false
	log.Info().Str("bot", api.Self.UserName).Msg("telegram bot authorized")
	return &TelegramSender{api: api}, nil
}

func (s *TelegramSender) SendText(chatID int64, text string) error {
	if _, err := s.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// Dispatcher turns domain events into e-mails and admin chat alerts.
// A nil mailer or chat disables that channel.
type Dispatcher struct {
	mailer Mailer
	chat   ChatSender
	chatID int64
}

// NewDispatcher creates a dispatcher
func NewDispatcher(mailer Mailer, chat ChatSender, chatID int64) *Dispatcher {
	return &Dispatcher{mailer: mailer, chat: chat, chatID: chatID}
}

// Handle delivers one event
func (d *Dispatcher) Handle(event services.Event) error {
	switch event.Type {
	case services.EventUserRegistered:
		if d.mailer == nil || event.Email == "" {
			return nil
		}
		body := fmt.Sprintf("Hello %s,\n\nyour SmartFix account has been created. "+
			"An administrator will verify it shortly, after which you can sign in.", event.Name)
		return d.mailer.Send(event.Email, "Welcome to SmartFix", body)

	case services.EventRequestStatusChanged:
		if d.mailer == nil || event.Email == "" {
			return nil
		}
		subject := fmt.Sprintf("Repair request #%d is now %s", event.RequestID, event.Status)
		body := fmt.Sprintf("Hello %s,\n\nthe status of your repair request #%d (%s) changed from %s to %s.",
			event.Name, event.RequestID, event.Device, event.PreviousStatus, event.Status)
		return d.mailer.Send(event.Email, subject, body)

	case services.EventRequestCreated:
		if d.chat == nil || d.chatID == 0 {
			return nil
		}
		text := fmt.Sprintf("New repair request #%d: %s (client %d)", event.RequestID, event.Device, event.UserID)
		return d.chat.SendText(d.chatID, text)
	}

	log.Debug().Str("event", event.Type).Msg("ignoring event without a handler")
	return nil
}

// Consume processes deliveries until ctx is done or the channel closes.
// Failed deliveries are nacked without requeue.
func (d *Dispatcher) Consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-deliveries:
			if !ok {
				log.Warn().Msg("delivery channel closed")
				return
			}
			d.process(msg)
		}
	}
}

func (d *Dispatcher) process(msg amqp.Delivery) {
	var event services.Event
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		log.Error().Err(err).Str("routing_key", msg.RoutingKey).Msg("failed to decode event")
		if nackErr := msg.Nack(false, false); nackErr != nil {
			log.Error().Err(nackErr).Msg("failed to nack delivery")
		}
		return
	}

	if err := d.Handle(event); err != nil {
		log.Error().Err(err).Str("event", event.Type).Str("event_id", event.ID).Msg("failed to deliver notification")
		if nackErr := msg.Nack(false, false); nackErr != nil {
			log.Error().Err(nackErr).Msg("failed to nack delivery")
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		log.Error().Err(err).Msg("failed to ack delivery")
		return
	}
	log.Info().Str("event", event.Type).Str("event_id", event.ID).Msg("notification delivered")
}
