package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/ignews/internal/pkg/cache"
	"github.com/ManuelReschke/ignews/internal/pkg/posts"
)

func revalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revalidate [slug...]",
		Short: "Drop the cached pages of posts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := cache.SetupCache(cache.LoadConfig())
			defer client.Close()

			// Only the cache is touched; no CMS client is needed.
			svc := posts.NewService(nil, cache.NewPageStore(client, posts.CachePrefix), nil)

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			for _, slug := range args {
				if err := svc.Revalidate(ctx, slug); err != nil {
					return fmt.Errorf("revalidate %s: %w", slug, err)
				}
				fmt.Printf("Revalidated %s\n", slug)
			}
			return nil
		},
	}
}
