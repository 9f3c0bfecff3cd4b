package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/anonto42/nano-midea/social/internal/bootstrap"
	"github.com/anonto42/nano-midea/social/internal/models"
	"github.com/anonto42/nano-midea/social/internal/push"
	"github.com/anonto42/nano-midea/social/internal/repositories"
	"github.com/anonto42/nano-midea/social/pkg/config"
	"github.com/anonto42/nano-midea/social/pkg/logger"
)

// ErrPushNotConfigured is returned by push-test when no VAPID keys are set.
var ErrPushNotConfigured = errors.New("push is not configured: set push.vapid_public_key and push.vapid_private_key")

// NewPushTestCommand creates the push-test command.
func NewPushTestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "push-test <user-id>",
		Short: "Send a test notification to every device of a user",
		Long: `Send a test push to every subscription registered for the user.

Subscriptions the push service reports as gone are removed, exactly as during
normal fan-out.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil || userID == 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			transport := bootstrap.NewPushTransport(cfg)
			if transport == nil {
				return ErrPushNotConfigured
			}

			db, err := config.OpenPostgres(cfg.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			registry := repositories.NewPostgresPushSubscriptionRepository(db)
			dispatcher := bootstrap.NewDispatcher(cfg, registry, transport, newLogger(rootOpts))
			report := sendTestPush(cmd.Context(), dispatcher, uint(userID), bootstrap.Payloads(cfg))

			return printResult(cmd.OutOrStdout(), rootOpts, report, func(w io.Writer) {
				fmt.Fprintf(w, "user %d: %d delivered, %d gone (removed), %d failed\n",
					userID, report.Delivered, report.Gone, report.Failed)
			})
		},
	}
}

type pushDispatcher interface {
	Dispatch(ctx context.Context, recipientID uint, payload models.NotificationPayload) push.Report
}

func sendTestPush(ctx context.Context, d pushDispatcher, userID uint, payloads push.Payloads) push.Report {
	if ctx == nil {
		ctx = context.Background()
	}
	return d.Dispatch(logger.WithUserID(ctx, userID), userID, payloads.TestPayload())
}
