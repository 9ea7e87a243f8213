package natskv

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Config selects the NATS server. With Embedded set, an in-process server
// with JetStream persisted under StoreDir is started instead of dialing URL.
type Config struct {
	URL      string `yaml:"url"`
	Embedded bool   `yaml:"embedded"`
	StoreDir string `yaml:"store_dir"`
}

// DefaultConfig returns a config for a local NATS server.
func DefaultConfig() Config {
	return Config{
		URL:      nats.DefaultURL,
		StoreDir: ".kbqa/nats",
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if !c.Embedded && c.URL == "" {
		return fmt.Errorf("nats url is required unless embedded")
	}
	if c.Embedded && c.StoreDir == "" {
		return fmt.Errorf("nats store_dir is required when embedded")
	}
	return nil
}

// Open connects to NATS (starting an embedded server if configured) and
// opens the store. Closing the store closes the connection and server.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var embedded *server.Server
	url := cfg.URL
	if cfg.Embedded {
		ns, err := StartEmbedded(cfg.StoreDir)
		if err != nil {
			return nil, err
		}
		embedded = ns
		url = ns.ClientURL()
		logger.Info("Started embedded NATS server", "url", url, "store_dir", cfg.StoreDir)
	}

	shutdown := func() {
		if embedded != nil {
			embedded.Shutdown()
			embedded.WaitForShutdown()
		}
	}

	conn, err := nats.Connect(url, nats.Name("kbqa"))
	if err != nil {
		shutdown()
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		shutdown()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	store, err := NewStore(ctx, js, logger)
	if err != nil {
		conn.Close()
		shutdown()
		return nil, err
	}
	store.closer = func() {
		_ = conn.Drain()
		conn.Close()
		shutdown()
	}
	return store, nil
}

// StartEmbedded starts an in-process JetStream server on a random port.
func StartEmbedded(storeDir string) (*server.Server, error) {
	ns, err := server.NewServer(&server.Options{
		Port:      -1,
		JetStream: true,
		StoreDir:  storeDir,
		NoLog:     true,
		NoSigs:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server failed to start")
	}
	return ns, nil
}
