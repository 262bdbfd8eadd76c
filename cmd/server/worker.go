package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/clinic-appointments/internal/config"
	"github.com/iliyamo/clinic-appointments/internal/database"
	"github.com/iliyamo/clinic-appointments/internal/notify"
	"github.com/iliyamo/clinic-appointments/internal/queue"
	"github.com/iliyamo/clinic-appointments/internal/repository"
)

func workerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Deliver appointment notifications from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			prefetch, _ := cmd.Flags().GetInt("prefetch")
			return runWorker(cfg, prefetch)
		},
	}
	cmd.Flags().Int("prefetch", 10, "Unacknowledged messages the broker may push at once")
	return cmd
}

func newSender(cfg config.NotifyConfig) notify.Sender {
	if cfg.Sender == "smtp" {
		return notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}
	return notify.NewLogSender(cfg.LogFile)
}

func runWorker(cfg config.Config, prefetch int) error {
	logger := newLogger(cfg.Env)

	db, err := database.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	users := repository.NewUserRepo(db, repository.NewDoctorRepo(db))
	c := &queue.Consumer{
		URL:      cfg.RabbitMQURL,
		Queue:    cfg.Notify.Queue,
		Prefetch: prefetch,
		Handler: queue.Dispatcher{
			Users:  users,
			Sender: notify.LoggingSender{Next: newSender(cfg.Notify), Log: logger},
		},
		Log:     logger,
		Timeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger.Info().Str("queue", cfg.Notify.Queue).Str("sender", cfg.Notify.Sender).Msg("worker started")
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("worker stopped")
	return nil
}
