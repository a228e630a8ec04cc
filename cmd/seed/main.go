// Command seed loads dashboard presets into a storage backend, defaulting to
// the local firestore emulator.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/solarledger/solarledger/pkg/log"
	"github.com/solarledger/solarledger/pkg/storage"
	"github.com/solarledger/solarledger/pkg/types"
)

// defaultPresets mirror the ranges the dashboard opens with.
var defaultPresets = []types.Preset{
	{ID: "this-month", Name: "This month by day", Granularity: types.GranularityDay, Periods: 31},
	{ID: "last-12-months", Name: "Last 12 months", Granularity: types.GranularityMonth, Periods: 12},
	{ID: "lifetime", Name: "Lifetime by year", Granularity: types.GranularityYear, Periods: 10},
}

func main() {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	}
	from := lflag.String("seed-file", "", "YAML presets file to seed instead of the built-in defaults")
	s := storage.Configured()
	lflag.Configure()

	ctx := context.Background()
	defer s.Close()

	presets := defaultPresets
	if *from != "" {
		var err error
		presets, err = storage.LoadPresetsFile(*from)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to load seed file", slog.String("path", *from), slog.Any("error", err))
			os.Exit(1)
		}
	}

	now := time.Now().UTC()
	for i := range presets {
		presets[i].UpdatedAt = now
	}
	if err := storage.SeedPresets(ctx, s, presets); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed presets", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "seeded presets", slog.Int("count", len(presets)))
}
