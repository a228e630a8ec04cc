package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/solarledger/solarledger/pkg/storage"
	"github.com/solarledger/solarledger/pkg/storage/storagemock"
	"github.com/solarledger/solarledger/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPresets(t *testing.T) {
	db := storage.NewMemory()
	handler := newTestServer(&mockInverter{}, db).setupHandler()

	do := func(method, url, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, url, strings.NewReader(body))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	t.Run("Empty List", func(t *testing.T) {
		w := do("GET", "/api/presets", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})

	t.Run("Create", func(t *testing.T) {
		w := do("POST", "/api/presets", `{"id":"last-week","name":"Last week","granularity":"day","periods":7}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var p types.Preset
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
		assert.Equal(t, "last-week", p.ID)
		assert.True(t, fixedNow.Equal(p.UpdatedAt))

		w = do("GET", "/api/presets", "")
		var list []types.Preset
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		require.Len(t, list, 1)
		assert.Equal(t, 7, list[0].Periods)
	})

	t.Run("Invalid", func(t *testing.T) {
		w := do("POST", "/api/presets", `{"id":"x","name":"x","granularity":"week","periods":1}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "unknown granularity")

		w = do("POST", "/api/presets", `{"id":"x","bogus":true}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid preset")

		w = do("POST", "/api/presets", `not json`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Delete", func(t *testing.T) {
		w := do("DELETE", "/api/presets/last-week", "")
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = do("DELETE", "/api/presets/last-week", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPresetsStorageFailure(t *testing.T) {
	db := &storagemock.MockDatabase{}
	db.On("ListPresets", mock.Anything).Return([]types.Preset(nil), errors.New("down"))
	db.On("UpsertPreset", mock.Anything, mock.Anything).Return(errors.New("down"))
	db.On("DeletePreset", mock.Anything, "a").Return(errors.New("down"))
	db.On("GetPreset", mock.Anything, "a").Return(types.Preset{}, errors.New("down"))
	handler := newTestServer(&mockInverter{}, db).setupHandler()

	tests := []struct {
		name   string
		method string
		url    string
		body   string
	}{
		{"List", "GET", "/api/presets", ""},
		{"Upsert", "POST", "/api/presets", `{"id":"a","name":"a","granularity":"day","periods":1}`},
		{"Delete", "DELETE", "/api/presets/a", ""},
		{"Production With Preset", "GET", "/api/production?preset=a", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.url, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, http.StatusInternalServerError, w.Code)
		})
	}
	db.AssertExpectations(t)
}
