package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/c360studio/kbqa/config"
	"github.com/c360studio/kbqa/index"
	"github.com/c360studio/kbqa/questions"
	"github.com/c360studio/kbqa/report"
	"github.com/c360studio/kbqa/source"
	"github.com/c360studio/kbqa/source/chunker"
	"github.com/c360studio/kbqa/source/kb"
)

type ingestOptions struct {
	ask       bool
	questions string
}

// scrapeOptions override the listing range of the KB config.
type scrapeOptions struct {
	category  string
	firstPage int
	lastPage  int
}

func bindScrapeFlags(cmd *cobra.Command) *scrapeOptions {
	var o scrapeOptions
	d := kb.DefaultConfig()
	cmd.Flags().StringVar(&o.category, "category", d.Category, "KB category to scrape")
	cmd.Flags().IntVar(&o.firstPage, "first-page", d.FirstPage, "First listing page, inclusive")
	cmd.Flags().IntVar(&o.lastPage, "last-page", d.LastPage, "Last listing page, inclusive")
	return &o
}

// apply copies the flags the user set onto cfg.
func (o *scrapeOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("category") {
		cfg.KB.Category = o.category
	}
	if cmd.Flags().Changed("first-page") {
		cfg.KB.FirstPage = o.firstPage
	}
	if cmd.Flags().Changed("last-page") {
		cfg.KB.LastPage = o.lastPage
	}
	if err := cfg.KB.Validate(); err != nil {
		return fmt.Errorf("kb: %w", err)
	}
	return nil
}

func ingestCmd(flags *globalFlags) *cobra.Command {
	var opts ingestOptions
	var scrape *scrapeOptions

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Scrape the KB and build the property graph",
		Long: `Scrape every article listed on the configured category pages, split the
articles into chunks and build the property graph from them, printing how
long graph generation took. With --ask the question batch is answered from
the new graph afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			if err := scrape.apply(cmd, cfg); err != nil {
				return err
			}
			if opts.questions == "" {
				opts.questions = cfg.Questions.File
			}

			ctx := cmd.Context()
			app, err := NewApp(ctx, cfg, logger, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			return runIngest(ctx, app, opts)
		},
	}

	scrape = bindScrapeFlags(cmd)
	cmd.Flags().BoolVar(&opts.ask, "ask", false, "Answer the question batch after building the graph")
	cmd.Flags().StringVarP(&opts.questions, "questions", "q", "", "Question file or glob used with --ask (default from config: "+questions.DefaultFile+")")
	return cmd
}

func runIngest(ctx context.Context, app *App, opts ingestOptions) error {
	app.serveMetrics(ctx)

	docs, err := app.scrape(ctx)
	if err != nil {
		return err
	}

	deps, err := app.deps(ctx)
	if err != nil {
		return err
	}
	defer closeStore(ctx, deps.Store, app.logger)

	ix, elapsed, err := index.FromDocuments(ctx, docs, deps, app.indexOptions()...)
	if err != nil {
		return fmt.Errorf("build property graph: %w", err)
	}

	p := report.New(app.stdout)
	p.GraphBuilt(elapsed)
	if err := p.Err(); err != nil {
		return err
	}
	if !opts.ask {
		return nil
	}

	engine, err := app.queryEngine(ix)
	if err != nil {
		return err
	}
	qs, err := questions.LoadAll(opts.questions)
	if err != nil {
		return err
	}
	return app.answerAll(ctx, engine, qs)
}

// scrape lists, fetches and chunks the configured KB pages.
func (a *App) scrape(ctx context.Context) ([]source.Document, error) {
	client, err := kb.NewClient(a.cfg.KB, append([]kb.ClientOption{kb.WithLogger(a.logger)}, a.kbOptions...)...)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.New(a.cfg.Chunk)
	if err != nil {
		return nil, fmt.Errorf("create chunker: %w", err)
	}
	scraper := kb.NewScraper(client, ch,
		kb.WithRecorder(a.metrics),
		kb.WithScraperLogger(a.logger))
	return scraper.Scrape(ctx)
}
