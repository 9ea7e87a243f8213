package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/c360studio/kbqa/index"
	"github.com/c360studio/kbqa/questions"
)

type askOptions struct {
	questions   string
	topK        int
	includeText bool
	watch       bool
}

func askCmd(flags *globalFlags) *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Answer every question in the question file from the existing graph",
		Long: `Load the property graph built by "kbqa ingest" and answer each line of the
question file, printing the answer, the time taken and the supporting sources.

The command exits with status 1 before answering anything when the graph
cannot be loaded or is empty.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("top-k") {
				cfg.Query.SimilarityTopK = opts.topK
			}
			if cmd.Flags().Changed("include-text") {
				cfg.Query.IncludeText = opts.includeText
			}
			if opts.questions == "" {
				opts.questions = cfg.Questions.File
			}
			if err := cfg.Query.Validate(); err != nil {
				return fmt.Errorf("query: %w", err)
			}

			ctx := cmd.Context()
			app, err := NewApp(ctx, cfg, logger, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			return runAsk(ctx, app, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.questions, "questions", "q", "", "Question file or glob, one question per line (default from config: "+questions.DefaultFile+")")
	cmd.Flags().IntVar(&opts.topK, "top-k", index.DefaultQueryConfig().SimilarityTopK, "Entities taken from vector similarity per question")
	cmd.Flags().BoolVar(&opts.includeText, "include-text", true, "Attach source chunk text to retrieved facts")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Rerun the batch whenever the question file changes")
	return cmd
}

func runAsk(ctx context.Context, app *App, opts askOptions) error {
	app.serveMetrics(ctx)

	deps, err := app.deps(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", index.ErrLoadFailed, err)
	}
	defer closeStore(ctx, deps.Store, app.logger)

	ix, err := index.FromExisting(ctx, deps, app.indexOptions()...)
	if err != nil {
		return err
	}
	engine, err := app.queryEngine(ix)
	if err != nil {
		return err
	}

	batch := func(ctx context.Context) error {
		qs, err := questions.LoadAll(opts.questions)
		if err != nil {
			return err
		}
		app.logger.Info("Answering questions", "count", len(qs), "questions", opts.questions)
		return app.answerAll(ctx, engine, qs)
	}

	if err := batch(ctx); err != nil {
		return err
	}
	if !opts.watch {
		return nil
	}

	paths, err := questions.Resolve(opts.questions)
	if err != nil {
		return err
	}
	w, err := questions.NewWatcher(paths,
		questions.WithDebounce(app.cfg.Questions.Debounce),
		questions.WithLogger(app.logger))
	if err != nil {
		return err
	}
	return w.Run(ctx, batch)
}
