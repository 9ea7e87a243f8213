package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func scrapeCmd(flags *globalFlags) *cobra.Command {
	var scrape *scrapeOptions

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape and chunk the KB, printing documents as JSON lines",
		Long: `Scrape and chunk the configured KB pages without touching the graph. Each
document is printed as one JSON object per line with its id, text and
metadata.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			if err := scrape.apply(cmd, cfg); err != nil {
				return err
			}

			ctx := cmd.Context()
			app, err := NewApp(ctx, cfg, logger, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			docs, err := app.scrape(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(app.stdout)
			for _, doc := range docs {
				if err := enc.Encode(doc); err != nil {
					return err
				}
			}
			return nil
		},
	}

	scrape = bindScrapeFlags(cmd)
	return cmd
}
