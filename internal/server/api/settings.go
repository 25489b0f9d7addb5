package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/roshambo/internal/config"
	"github.com/ayusman/roshambo/internal/store"
)

// SettingsHandler serves the persisted config overrides. Stored values take
// effect on the next start.
type SettingsHandler struct {
	store *store.Store
}

// NewSettingsHandler creates a SettingsHandler backed by s.
func NewSettingsHandler(s *store.Store) *SettingsHandler {
	return &SettingsHandler{store: s}
}

// Register adds the settings routes to mux.
func (h *SettingsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/settings", h.list)
	mux.HandleFunc("PUT /api/settings", h.update)
	mux.HandleFunc("DELETE /api/settings/{key}", h.delete)
}

type settingsResponse struct {
	Settings    map[string]string `json:"settings"`
	Overridable []string          `json:"overridable"`
}

// list handles GET /api/settings.
func (h *SettingsHandler) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.Settings().All()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{Settings: all, Overridable: config.OverridableKeys})
}

// update handles PUT /api/settings. The body is a flat key/value object; the
// merged result must still form a valid configuration.
func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req) == 0 {
		writeError(w, http.StatusBadRequest, "no settings given")
		return
	}

	current, err := h.store.Settings().All()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}

	changes := make(map[string]string, len(req))
	for key, value := range req {
		canonical, ok := canonicalKey(key)
		if !ok {
			writeError(w, http.StatusBadRequest, "setting "+key+" cannot be overridden")
			return
		}
		changes[canonical] = value
		current[canonical] = value
	}

	if _, err := config.Load("", current); err != nil {
		if errors.Is(err, config.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid setting value: "+err.Error())
		return
	}

	if err := h.store.Settings().SetAll(changes); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{Settings: current, Overridable: config.OverridableKeys})
}

// delete handles DELETE /api/settings/{key}.
func (h *SettingsHandler) delete(w http.ResponseWriter, r *http.Request) {
	key, ok := canonicalKey(r.PathValue("key"))
	if !ok {
		writeError(w, http.StatusNotFound, "Setting not found")
		return
	}
	if err := h.store.Settings().Delete(key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Setting not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete setting")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func canonicalKey(key string) (string, bool) {
	for _, k := range config.OverridableKeys {
		if strings.EqualFold(k, key) {
			return k, true
		}
	}
	return "", false
}
