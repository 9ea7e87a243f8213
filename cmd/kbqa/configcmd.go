package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/kbqa/config"
)

const redacted = "********"

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or initialize configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(redact(*cfg))
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default user config if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd.ErrOrStderr(), flags.logLevel)
			path, err := config.NewLoader(logger).EnsureUserConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	return cmd
}

func redact(cfg config.Config) config.Config {
	if cfg.KB.SessionID != "" {
		cfg.KB.SessionID = redacted
	}
	if cfg.Graph.Neo4j.Password != "" {
		cfg.Graph.Neo4j.Password = redacted
	}
	cfg.Cache.RedisURL = redactURL(cfg.Cache.RedisURL)
	return cfg
}

// redactURL hides the password in a URL's userinfo. A URL that does not
// parse is hidden entirely.
func redactURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), redacted)
	}
	return u.String()
}
