package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"github.com/smartfix-dev/smartfix-api/config"
	"github.com/smartfix-dev/smartfix-api/services"
	"github.com/smartfix-dev/smartfix-api/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The worker does not need the database or the token secret
		cfg = config.FromEnv()
	}
	utils.InitLogger(cfg.LogLevel, cfg.GoEnv)

	if cfg.AMQPURL == "" {
		log.Fatal().Msg("AMQP_URL is required")
	}

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open channel")
	}
	defer ch.Close()

	if err := services.DeclareNotificationTopology(ch); err != nil {
		log.Fatal().Err(err).Msg("Failed to declare notification topology")
	}
	if err := ch.Qos(10, 0, false); err != nil {
		log.Fatal().Err(err).Msg("Failed to set QoS")
	}

	deliveries, err := ch.Consume(
		services.NotificationQueue,
		"smartfix-notifier", // consumer
		false,               // auto-ack
		false,               // exclusive
		false,               // no-local
		false,               // no-wait
		nil,                 // args
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register consumer")
	}

	var mailer Mailer
	if cfg.SMTPHost != "" {
		mailer = &SMTPMailer{Host: cfg.SMTPHost, Port: cfg.SMTPPort, User: cfg.SMTPUser, Pass: cfg.SMTPPass, From: cfg.SMTPFrom}
	} else {
		log.Warn().Msg("SMTP_HOST not set, e-mail notifications disabled")
	}

	var chat ChatSender
	if cfg.TelegramToken != "" {
		sender, err := NewTelegramSender(cfg.TelegramToken)
		if err != nil {
			log.Error().Err(err).Msg("Telegram alerts disabled")
		} else {
			chat = sender
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", services.NotificationQueue).Msg("Started consuming notifications")
	NewDispatcher(mailer, chat, cfg.TelegramChatID).Consume(ctx, deliveries)
	log.Info().Msg("Notifier stopped")
}
