package api

import (
	"errors"
	"net/http"

	"github.com/ayusman/roshambo/internal/detector"
	"github.com/ayusman/roshambo/internal/gesture"
	"github.com/ayusman/roshambo/internal/store"
)

// HandSource provides the last seen hand and the active classifier.
type HandSource interface {
	LastHand() (detector.HandLandmarks, bool)
	Classify(h *detector.HandLandmarks) gesture.Label
}

// SamplesHandler records labelled hand poses and reports how well the
// classifier agrees with them.
type SamplesHandler struct {
	store *store.Store
	hands HandSource
}

// NewSamplesHandler creates a SamplesHandler.
func NewSamplesHandler(s *store.Store, hands HandSource) *SamplesHandler {
	return &SamplesHandler{store: s, hands: hands}
}

// Register adds the sample routes to mux.
func (h *SamplesHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/samples", h.list)
	mux.HandleFunc("POST /api/samples", h.create)
	mux.HandleFunc("GET /api/samples/report", h.report)
	mux.HandleFunc("GET /api/samples/{id}", h.get)
	mux.HandleFunc("DELETE /api/samples/{id}", h.delete)
}

type createSampleRequest struct {
	Label     string             `json:"label"`
	Landmarks []detector.Point3D `json:"landmarks,omitempty"`
}

type listSamplesResponse struct {
	Samples []store.Sample `json:"samples"`
}

type reportResponse struct {
	Labels []store.LabelReport `json:"labels"`
}

// list handles GET /api/samples, optionally filtered by ?label=.
func (h *SamplesHandler) list(w http.ResponseWriter, r *http.Request) {
	label, err := gesture.ParseLabel(r.URL.Query().Get("label"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	samples, err := h.store.Samples().List(label)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list samples")
		return
	}
	writeJSON(w, http.StatusOK, listSamplesResponse{Samples: samples})
}

// create handles POST /api/samples. Without landmarks in the body the last
// hand seen by detection is recorded.
func (h *SamplesHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createSampleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	label, err := gesture.ParseLabel(req.Label)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if label == gesture.None {
		writeError(w, http.StatusBadRequest, "label must be rock, paper or scissors")
		return
	}

	var hand detector.HandLandmarks
	if req.Landmarks != nil {
		hand, err = detector.NewHandLandmarks(req.Landmarks)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		var ok bool
		if hand, ok = h.hands.LastHand(); !ok {
			writeError(w, http.StatusConflict, "no hand seen yet")
			return
		}
	}

	smp := &store.Sample{
		Label:     label,
		Predicted: h.hands.Classify(&hand),
		Landmarks: hand,
	}
	if err := h.store.Samples().Create(smp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save sample")
		return
	}
	writeJSON(w, http.StatusCreated, smp)
}

// get handles GET /api/samples/{id}.
func (h *SamplesHandler) get(w http.ResponseWriter, r *http.Request) {
	smp, err := h.store.Samples().GetByID(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Sample not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get sample")
		return
	}
	writeJSON(w, http.StatusOK, smp)
}

// delete handles DELETE /api/samples/{id}.
func (h *SamplesHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Samples().Delete(r.PathValue("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Sample not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete sample")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// report handles GET /api/samples/report.
func (h *SamplesHandler) report(w http.ResponseWriter, r *http.Request) {
	labels, err := h.store.Samples().Report()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build report")
		return
	}
	if labels == nil {
		labels = []store.LabelReport{}
	}
	writeJSON(w, http.StatusOK, reportResponse{Labels: labels})
}
