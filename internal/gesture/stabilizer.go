package gesture

import "sync"

// StabilizerConfig controls how much agreement the stabilizer needs.
type StabilizerConfig struct {
	// HistorySize is the number of recent raw labels considered.
	HistorySize int
	// Threshold is the fraction of the history that must agree before a
	// locked-on move is replaced, in (0, 1].
	Threshold float64
}

// DefaultStabilizerConfig returns the reference settings: 10 frames, 60%.
func DefaultStabilizerConfig() StabilizerConfig {
	return StabilizerConfig{
		HistorySize: 10,
		Threshold:   0.6,
	}
}

// StableState is the stabilizer's output after a step.
type StableState struct {
	Label Label `json:"label"`
	// Confidence is the share of the history held by the majority label.
	Confidence float64 `json:"confidence"`
	// Samples is the current history length.
	Samples int `json:"samples"`
}

// Stabilizer debounces a stream of raw labels. It keeps the last HistorySize
// labels and emits the majority label once it reaches Threshold, with one
// exception: while the emitted label is None, any majority is adopted at once.
// That asymmetry lets the first gesture lock on quickly and keeps a locked-on
// gesture from flickering.
type Stabilizer struct {
	cfg StabilizerConfig

	mu         sync.Mutex
	history    []Label
	current    Label
	confidence float64
}

// NewStabilizer creates a Stabilizer. Non-positive settings fall back to
// defaults and a threshold above 1 is capped at 1, full agreement.
func NewStabilizer(cfg StabilizerConfig) *Stabilizer {
	def := DefaultStabilizerConfig()
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Threshold > 1 {
		cfg.Threshold = 1
	}
	return &Stabilizer{
		cfg:     cfg,
		history: make([]Label, 0, cfg.HistorySize),
	}
}

// Step records raw and returns the stable label.
func (s *Stabilizer) Step(raw Label) Label {
	s.mu.Lock()
	defer s.mu.Unlock()

	if raw < None || raw > Scissors {
		raw = None
	}
	if len(s.history) == s.cfg.HistorySize {
		copy(s.history, s.history[1:])
		s.history = s.history[:len(s.history)-1]
	}
	s.history = append(s.history, raw)

	var counts [Scissors + 1]int
	for _, l := range s.history {
		counts[l]++
	}

	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}

	// Ties go to the label seen most recently.
	candidate := None
	for i := len(s.history) - 1; i >= 0; i-- {
		if counts[s.history[i]] == maxCount {
			candidate = s.history[i]
			break
		}
	}

	s.confidence = float64(maxCount) / float64(len(s.history))
	if s.confidence >= s.cfg.Threshold || s.current == None {
		s.current = candidate
	}

	return s.current
}

// Current returns the last emitted label without stepping.
func (s *Stabilizer) Current() Label {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// State returns the emitted label with the confidence of the last step.
func (s *Stabilizer) State() StableState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StableState{
		Label:      s.current,
		Confidence: s.confidence,
		Samples:    len(s.history),
	}
}

// Reset clears the history and returns the output to None.
func (s *Stabilizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = s.history[:0]
	s.current = None
	s.confidence = 0
}
