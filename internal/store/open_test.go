package store

import (
	"path/filepath"
	"testing"

	"github.com/stellarlinkco/benchkit/internal/config"
)

func TestOpenMemory(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Type = "memory"

	st, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
}

func TestOpenSQLitePath(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Type = "sqlite"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "runs.db")

	st, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
}

func TestOpenUnsupportedType(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Type = "postgres"

	if _, err := Open(cfg); err == nil {
		t.Fatal("expected error for unsupported storage type")
	}
}

func TestOpenNilConfig(t *testing.T) {
	if _, err := Open(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
