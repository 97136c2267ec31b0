package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load overlays a YAML configuration document on top of base. An empty path falls back to
// PROSPERITY_CONFIG; when neither is set base is returned unchanged.
//
// Scalars and nested sections merge field by field. A product entry or a strategy list present
// in the file replaces the corresponding entry of base.
func Load(ctx context.Context, base Settings, path string) (Settings, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("PROSPERITY_CONFIG"))
	}
	if path == "" {
		return base.clone(), nil
	}

	file, err := os.Open(filepath.Clean(path)) // #nosec G304 -- configuration paths are controlled by operators.
	if err != nil {
		return Settings{}, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = file.Close() }()

	cfg, err := Decode(file, base)
	if err != nil {
		return Settings{}, err
	}
	if err := cfg.Validate(ctx); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

// Decode reads one YAML document from r over a copy of base.
func Decode(r io.Reader, base Settings) (Settings, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Settings{}, fmt.Errorf("read config: %w", err)
	}
	cfg := base.clone()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Encode renders the settings as YAML.
func Encode(w io.Writer, cfg Settings) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
