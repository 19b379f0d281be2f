package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/ignews/app/models"
	"github.com/ManuelReschke/ignews/app/repository"
	"github.com/ManuelReschke/ignews/internal/pkg/billing"
	"github.com/ManuelReschke/ignews/internal/pkg/database"
)

func syncCmd() *cobra.Command {
	var create bool

	cmd := &cobra.Command{
		Use:   "sync [subscription-id] [customer-id]",
		Short: "Mirror a Stripe subscription into the database",
		Long: `Fetches the subscription from Stripe and writes the local mirror, the
same way a billing webhook does. Use --create for a subscription that has
no mirror yet.

Examples:
  ignewsctl sync sub_123 cus_456 --create
  ignewsctl sync sub_123 cus_456`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.SetupDatabase(database.LoadConfig())
			if err != nil {
				return err
			}
			repos := repository.NewRepositories(db)
			synchronizer := billing.NewSynchronizer(billing.NewStripeClientFromEnv(), repos.User, repos.Subscription)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			sub, err := synchronizer.SaveSubscription(ctx, args[0], args[1], create)
			if err != nil {
				return err
			}
			fmt.Printf("Subscription %s for user %s is %s (price %s)\n", sub.ID, sub.UserRef, sub.Status, sub.PriceID)

			mirrors, err := repos.Subscription.ListByUserRef(ctx, sub.UserRef)
			if err != nil {
				return fmt.Errorf("list mirrors of user %s: %w", sub.UserRef, err)
			}
			printMirrors(os.Stdout, mirrors)
			return nil
		},
	}
	cmd.Flags().BoolVar(&create, "create", false, "insert a new mirror instead of replacing the existing one")

	return cmd
}

// printMirrors lists every mirror of a user and warns when more than one is
// active, since only the most recently updated one grants access.
func printMirrors(w io.Writer, mirrors []models.Subscription) {
	active := 0
	fmt.Fprintf(w, "User has %d subscription mirror(s):\n", len(mirrors))
	for _, m := range mirrors {
		fmt.Fprintf(w, "  %s  %-18s  %s  updated %s\n", m.ID, m.Status, m.PriceID, m.UpdatedAt.UTC().Format(time.RFC3339))
		if m.IsActive() {
			active++
		}
	}
	if active > 1 {
		fmt.Fprintf(w, "Warning: %d active mirrors, only the most recently updated one is used\n", active)
	}
}
