package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/roshambo/internal/detector"
	"github.com/ayusman/roshambo/internal/gesture"
)

// Sample is a hand pose labelled by the player together with what the
// classifier predicted for it.
type Sample struct {
	ID        string                 `json:"id"`
	Label     gesture.Label          `json:"label"`
	Predicted gesture.Label          `json:"predicted"`
	Landmarks detector.HandLandmarks `json:"landmarks"`
	CreatedAt time.Time              `json:"created_at"`
}

// LabelReport summarizes agreement for one labelled move.
type LabelReport struct {
	Label     gesture.Label         `json:"label"`
	Total     int                   `json:"total"`
	Agreed    int                   `json:"agreed"`
	Agreement float64               `json:"agreement"`
	Predicted map[gesture.Label]int `json:"predicted"`
}

// SampleRepository provides CRUD operations for calibration samples.
type SampleRepository struct {
	db *sql.DB
}

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// Create stores smp, assigning an ID and timestamp when missing.
func (r *SampleRepository) Create(smp *Sample) error {
	if smp.ID == "" {
		smp.ID = uuid.NewString()
	}
	if smp.CreatedAt.IsZero() {
		smp.CreatedAt = time.Now()
	}

	data, err := json.Marshal(smp.Landmarks)
	if err != nil {
		return fmt.Errorf("encode landmarks: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO samples (id, label, predicted, landmarks, created_at) VALUES (?, ?, ?, ?, ?)`,
		smp.ID, smp.Label.String(), smp.Predicted.String(), string(data), smp.CreatedAt,
	)
	return err
}

const sampleColumns = `id, label, predicted, landmarks, created_at`

func scanSample(row interface{ Scan(...any) error }) (Sample, error) {
	var (
		smp              Sample
		label, predicted string
		data             string
	)
	if err := row.Scan(&smp.ID, &label, &predicted, &data, &smp.CreatedAt); err != nil {
		return Sample{}, err
	}

	var err error
	if smp.Label, err = gesture.ParseLabel(label); err != nil {
		return Sample{}, err
	}
	if smp.Predicted, err = gesture.ParseLabel(predicted); err != nil {
		return Sample{}, err
	}
	if err := json.Unmarshal([]byte(data), &smp.Landmarks); err != nil {
		return Sample{}, fmt.Errorf("decode landmarks of %s: %w", smp.ID, err)
	}
	return smp, nil
}

// GetByID retrieves a sample or returns ErrNotFound.
func (r *SampleRepository) GetByID(id string) (*Sample, error) {
	smp, err := scanSample(r.db.QueryRow(`SELECT `+sampleColumns+` FROM samples WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &smp, nil
}

// List returns samples, newest first. A label other than None filters by it.
func (r *SampleRepository) List(label gesture.Label) ([]Sample, error) {
	query := `SELECT ` + sampleColumns + ` FROM samples`
	var args []any
	if label != gesture.None {
		query += ` WHERE label = ?`
		args = append(args, label.String())
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := []Sample{}
	for rows.Next() {
		smp, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// Delete removes a sample or returns ErrNotFound.
func (r *SampleRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM samples WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Report counts how often the prediction matched the label, per label.
// Labels without samples are omitted.
func (r *SampleRepository) Report() ([]LabelReport, error) {
	rows, err := r.db.Query(`SELECT label, predicted, COUNT(*) FROM samples GROUP BY label, predicted`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byLabel := make(map[gesture.Label]*LabelReport)
	for rows.Next() {
		var label, predicted string
		var n int
		if err := rows.Scan(&label, &predicted, &n); err != nil {
			return nil, err
		}
		l, err := gesture.ParseLabel(label)
		if err != nil {
			return nil, err
		}
		p, err := gesture.ParseLabel(predicted)
		if err != nil {
			return nil, err
		}

		rep, ok := byLabel[l]
		if !ok {
			rep = &LabelReport{Label: l, Predicted: make(map[gesture.Label]int)}
			byLabel[l] = rep
		}
		rep.Total += n
		rep.Predicted[p] += n
		if p == l {
			rep.Agreed += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reports := []LabelReport{}
	for _, l := range []gesture.Label{gesture.None, gesture.Rock, gesture.Paper, gesture.Scissors} {
		rep, ok := byLabel[l]
		if !ok {
			continue
		}
		rep.Agreement = float64(rep.Agreed) / float64(rep.Total)
		reports = append(reports, *rep)
	}
	return reports, nil
}
