package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/redive-tools/newswatch/pkg/config"
	"github.com/redive-tools/newswatch/pkg/store"
)

var eventZone = time.FixedZone("UTC+8", 8*60*60)

func newEventsCmd(configPath, envPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List event windows that have not ended yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loadEnvFile(*envPath)

			cfg, err := config.Initialize(*configPath)
			if err != nil {
				return fmt.Errorf("initialize configuration: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			db, err := store.Connect(ctx, cfg.Mongo)
			if err != nil {
				return err
			}
			defer db.Close(ctx)

			now := time.Now()
			posts, err := db.Posts().UpcomingEvents(ctx, now)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, post := range posts {
				fmt.Fprintf(out, "%s\n", post.MappedTitle)
				for _, ev := range post.Events {
					if ev.End.Before(now) {
						continue
					}
					fmt.Fprintf(out, "  - %s: %s - %s\n",
						ev.Title,
						ev.Start.In(eventZone).Format("2006-01-02 15:04"),
						ev.End.In(eventZone).Format("2006-01-02 15:04"))
				}
			}
			return nil
		},
	}
}
