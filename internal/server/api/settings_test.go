package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/roshambo/internal/config"
	"github.com/ayusman/roshambo/internal/store"
)

func TestSettingsHandler_List(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Settings().Set("round.countdown", "5"))

	var got settingsResponse
	rec := do(t, NewSettingsHandler(s), http.MethodGet, "/api/settings", nil, &got)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"round.countdown": "5"}, got.Settings)
	assert.Equal(t, config.OverridableKeys, got.Overridable)
}

func TestSettingsHandler_Update(t *testing.T) {
	s := newTestStore(t)
	h := NewSettingsHandler(s)

	var got settingsResponse
	rec := do(t, h, http.MethodPut, "/api/settings", map[string]string{
		"Classifier.Mode":      "margin",
		"stabilizer.threshold": "0.8",
	}, &got)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	all, err := s.Settings().All()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"classifier.mode":      "margin",
		"stabilizer.threshold": "0.8",
	}, all)
	assert.Equal(t, all, got.Settings)

	// Stored overrides load into a valid configuration.
	cfg, err := config.Load("", all)
	require.NoError(t, err)
	assert.Equal(t, "margin", cfg.Classifier.Mode)
	assert.InDelta(t, 0.8, cfg.Stabilizer.Threshold, 1e-9)
}

func TestSettingsHandler_UpdateRejected(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{name: "empty", body: map[string]string{}},
		{name: "not overridable", body: map[string]string{"server.addr": ":9000"}},
		{name: "invalid mode", body: map[string]string{"classifier.mode": "dtw"}},
		{name: "out of range", body: map[string]string{"stabilizer.threshold": "1.5"}},
		{name: "not a number", body: map[string]string{"round.countdown": "three"}},
		{name: "malformed", body: "[1, 2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			rec := do(t, NewSettingsHandler(s), http.MethodPut, "/api/settings", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			all, err := s.Settings().All()
			require.NoError(t, err)
			assert.Empty(t, all, "nothing persisted")
		})
	}
}

func TestSettingsHandler_Delete(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Settings().Set("round.countdown", "5"))
	h := NewSettingsHandler(s)

	rec := do(t, h, http.MethodDelete, "/api/settings/round.countdown", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := s.Settings().Get("round.countdown")
	assert.ErrorIs(t, err, store.ErrNotFound)

	rec = do(t, h, http.MethodDelete, "/api/settings/round.countdown", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/settings/server.addr", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
