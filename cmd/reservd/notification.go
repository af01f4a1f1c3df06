// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/reservd/reservd/internal/config"
	"github.com/reservd/reservd/internal/notification"
)

func newNotificationCmd(flags *rootFlags, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notification",
		Short: "Start the notification consumer",
		Long: `Start the notification consumer. It reads the Redis notification stream
as a member of a consumer group and handles notify_email messages.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runNotification(cmd, flags, deps, nil)
		},
	}
	config.RegisterFlags(cmd.Flags(), config.RoleNotification)
	return cmd
}

func runNotification(cmd *cobra.Command, flags *rootFlags, deps *Deps, started func(*process)) error {
	cfg, err := flags.load(cmd, config.RoleNotification)
	if err != nil {
		return err
	}
	logger := setupLogging(cmd, cfg, config.RoleNotification)
	logger.Info("starting notification consumer",
		"stream", cfg.Notification.Stream,
		"group", cfg.Notification.Group,
		"consumer", cfg.Notification.Consumer,
	)

	p, err := newProcess(cmd.Context(), "notification", cfg, logger)
	if err != nil {
		return err
	}
	if err := startNotification(p, cfg, deps); err != nil {
		return errors.Join(err, p.shutdown())
	}
	if started != nil {
		started(p)
	}
	return p.wait()
}

func startNotification(p *process, cfg *config.Config, deps *Deps) error {
	rdb, err := deps.RedisConnector(p.ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	p.onStop(func(context.Context) error { return rdb.Close() })

	consumer, err := notification.NewConsumer(rdb, notification.ConsumerConfig{
		Stream:   cfg.Notification.Stream,
		Group:    cfg.Notification.Group,
		Consumer: cfg.Notification.Consumer,
	}, notification.WithLogger(p.logger), notification.WithMetrics(p.metrics))
	if err != nil {
		return err
	}
	consumer.Handle(notification.PatternNotifyEmail, notification.EmailLogger(p.logger))

	// The group must exist before the process reports ready.
	if err := consumer.EnsureGroup(p.ctx); err != nil {
		return err
	}
	p.background("consumer", consumer.Run)
	return nil
}
