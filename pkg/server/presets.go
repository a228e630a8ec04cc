package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/solarledger/solarledger/pkg/log"
	"github.com/solarledger/solarledger/pkg/storage"
	"github.com/solarledger/solarledger/pkg/types"
)

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	presets, err := s.storage.ListPresets(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list presets", slog.Any("error", err))
		writeJSONError(w, "failed to list presets", http.StatusInternalServerError)
		return
	}
	if presets == nil {
		presets = []types.Preset{}
	}
	writeJSON(w, presets)
}

func (s *Server) handleUpsertPreset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var preset types.Preset
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&preset); err != nil {
		writeJSONError(w, "invalid preset: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := preset.Validate(); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	preset.UpdatedAt = s.now().UTC()

	if err := s.storage.UpsertPreset(ctx, preset); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save preset", slog.String("id", preset.ID), slog.Any("error", err))
		writeJSONError(w, "failed to save preset", http.StatusInternalServerError)
		return
	}
	log.Ctx(ctx).InfoContext(ctx, "preset saved", slog.String("id", preset.ID))
	writeJSON(w, preset)
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if err := s.storage.DeletePreset(ctx, id); err != nil {
		if errors.Is(err, storage.ErrPresetNotFound) {
			writeJSONError(w, "preset not found", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to delete preset", slog.String("id", id), slog.Any("error", err))
		writeJSONError(w, "failed to delete preset", http.StatusInternalServerError)
		return
	}
	log.Ctx(ctx).InfoContext(ctx, "preset deleted", slog.String("id", id))
	w.WriteHeader(http.StatusNoContent)
}
