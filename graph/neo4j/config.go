package neo4j

import (
	"fmt"
	"net/url"
)

// Config holds the Neo4j connection settings.
type Config struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DefaultConfig returns the settings of a local development instance.
func DefaultConfig() Config {
	return Config{
		URL:      "bolt://localhost:7687",
		Username: "neo4j",
		Password: "password",
		Database: "neo4j",
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("neo4j url: %w", err)
	}
	switch u.Scheme {
	case "bolt", "bolt+s", "bolt+ssc", "neo4j", "neo4j+s", "neo4j+ssc":
	default:
		return fmt.Errorf("neo4j url scheme %q is not a bolt or neo4j scheme", u.Scheme)
	}
	if c.Username == "" {
		return fmt.Errorf("neo4j username is required")
	}
	return nil
}
