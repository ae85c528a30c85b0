package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/smallbiznis/coursedesk/internal/config"
	"github.com/smallbiznis/coursedesk/internal/migration"
	reportingdomain "github.com/smallbiznis/coursedesk/internal/reporting/domain"
	subscriptiondomain "github.com/smallbiznis/coursedesk/internal/subscription/domain"
	userstatusdomain "github.com/smallbiznis/coursedesk/internal/userstatus/domain"
	"github.com/smallbiznis/coursedesk/pkg/db/pagination"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultActor = "ledgerctl"

func newMigrateCommand() *cobra.Command {
	var down int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations, or roll back with --down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				conn *gorm.DB
				cfg  config.Config
				log  *zap.Logger
			)
			return withApp(cmd.Context(), infrastructure(), func(ctx context.Context) error {
				if down <= 0 {
					return migration.Apply(conn, cfg, log)
				}
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				return migration.RollbackSteps(sqlDB, down)
			}, &conn, &cfg, &log)
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "number of postgres migrations to roll back")
	return cmd
}

func newPropagateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "propagate <user-id>",
		Short: "Recompute and store a user's aggregate subscription status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var svc userstatusdomain.Service
			return withApp(cmd.Context(), ledger(), func(ctx context.Context) error {
				result, err := svc.Propagate(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), result)
			}, &svc)
		},
	}
}

func newReconcileCommand() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "reconcile <subscription-id>",
		Short: "Re-derive pending amount and status from the stored payment history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				svc subscriptiondomain.Service
				log *zap.Logger
			)
			return withApp(cmd.Context(), ledger(), func(ctx context.Context) error {
				sub, err := svc.Reconcile(ctx, args[0], actor)
				if err != nil {
					var propErr *subscriptiondomain.PropagationError
					if !errors.As(err, &propErr) {
						return err
					}
					log.Warn("ledger reconciled but status propagation failed",
						zap.String("user_id", propErr.UserID.String()),
						zap.Error(propErr.Err),
					)
				}
				return writeJSON(cmd.OutOrStdout(), sub)
			}, &svc, &log)
		},
	}
	cmd.Flags().StringVar(&actor, "actor", defaultActor, "actor recorded on the change")
	return cmd
}

func newOverdueCommand() *cobra.Command {
	var page pagination.Page
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "List subscriptions past their end date with an open balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var svc reportingdomain.Service
			return withApp(cmd.Context(), ledger(), func(ctx context.Context) error {
				resp, err := svc.OverdueSubscriptions(ctx, page)
				if err != nil {
					return err
				}
				return writeOverdue(cmd.OutOrStdout(), resp)
			}, &svc)
		},
	}
	cmd.Flags().IntVar(&page.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&page.Limit, "limit", 0, "page size, defaults to the ledger policy")
	return cmd
}

func writeOverdue(out io.Writer, resp reportingdomain.OverdueResponse) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tTYPE\tSTATUS\tPENDING\tEND DATE\tOVERDUE DAYS")
	for _, item := range resp.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%d\n",
			item.ID, item.UserID, item.SubscriptionType, item.PaymentStatus,
			item.PendingAmount, item.EndDate.Format("2006-01-02"), item.OverdueDays)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "page %d, %d of %d\n", resp.PageInfo.Page, len(resp.Items), resp.PageInfo.Total)
	return err
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
