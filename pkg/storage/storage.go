// Package storage persists the upstream session and the dashboard presets.
// Readings are never stored; every query fetches them fresh upstream.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/levenlabs/go-lflag"
	"github.com/solarledger/solarledger/pkg/types"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrPresetNotFound  = errors.New("preset not found")
)

// Database defines the interface for persisting sessions and presets.
type Database interface {
	// Sessions
	GetSession(ctx context.Context, account string) (types.Session, error)
	SetSession(ctx context.Context, session types.Session) error

	// Presets
	ListPresets(ctx context.Context) ([]types.Preset, error)
	GetPreset(ctx context.Context, id string) (types.Preset, error)
	UpsertPreset(ctx context.Context, preset types.Preset) error
	DeletePreset(ctx context.Context, id string) error

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "memory", "Storage provider to use (available: memory, firestore, postgres)")
	encryptionKey := lflag.String("session-encryption-key", "", "32 character key for encrypting the stored upstream session. Empty disables session persistence.")
	presetsFile := lflag.String("presets-file", "", "YAML file of presets to seed on startup")

	var p struct{ Database }

	fs := configuredFirestore()
	pg := configuredPostgres()

	lflag.Do(func() {
		var db Database
		switch *provider {
		case "memory":
			db = NewMemory()
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
			db = fs
		case "postgres":
			if err := pg.Validate(); err != nil {
				panic(fmt.Sprintf("postgres validation failed: %v", err))
			}
			if err := pg.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("postgres init failed: %v", err))
			}
			db = pg
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}

		sealed, err := WithSessionEncryption(db, *encryptionKey)
		if err != nil {
			panic(fmt.Sprintf("invalid session-encryption-key: %v", err))
		}
		p.Database = sealed

		if *presetsFile != "" {
			presets, err := LoadPresetsFile(*presetsFile)
			if err != nil {
				panic(fmt.Sprintf("failed to load presets file: %v", err))
			}
			if err := SeedPresets(context.Background(), sealed, presets); err != nil {
				panic(fmt.Sprintf("failed to seed presets: %v", err))
			}
		}
	})

	return &p
}
