package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.tgnotion/config.toml.
type Config struct {
	Telegram Telegram `toml:"telegram"`
	Notion   Notion   `toml:"notion"`
	Extract  Extract  `toml:"extract"`
}

// Telegram holds the MTProto transport credentials.
type Telegram struct {
	APIID   int    `toml:"api_id"`
	APIHash string `toml:"api_hash"`
	Phone   string `toml:"phone"`
}

// Notion holds the sink credentials. ParentPageID is only needed for
// provisioning a new database and may be empty otherwise.
type Notion struct {
	Token        string `toml:"token"`
	DatabaseID   string `toml:"database_id"`
	ParentPageID string `toml:"parent_page_id"`
}

// Extract holds the default extraction options.
type Extract struct {
	MessageLimit    int  `toml:"message_limit"`
	IncludeOutgoing bool `toml:"include_outgoing"`
	IncludeMedia    bool `toml:"include_media"`
	SkipExported    bool `toml:"skip_exported"`
}

// Default returns a config with extraction defaults filled in.
func Default() *Config {
	return &Config{
		Extract: Extract{
			MessageLimit:    100,
			IncludeOutgoing: true,
			IncludeMedia:    true,
			SkipExported:    true,
		},
	}
}

// MissingFieldsError reports required config fields that are absent.
// Extraction never starts with one of these; it is fatal at startup.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required config fields: %s", strings.Join(e.Fields, ", "))
}

// Validate checks that every credential the pipeline needs is present.
func (c *Config) Validate() error {
	var missing []string
	if c.Telegram.APIID == 0 {
		missing = append(missing, "telegram.api_id")
	}
	if c.Telegram.APIHash == "" {
		missing = append(missing, "telegram.api_hash")
	}
	if c.Telegram.Phone == "" {
		missing = append(missing, "telegram.phone")
	}
	if c.Notion.Token == "" {
		missing = append(missing, "notion.token")
	}
	if c.Notion.DatabaseID == "" {
		missing = append(missing, "notion.database_id")
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}

// Load reads config from the given path. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
