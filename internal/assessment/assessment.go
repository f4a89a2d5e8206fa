// Package assessment ranks a patient against every reference disease and
// decorates the ranking for display.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Skufu/medcheck/internal/metrics"
	"github.com/Skufu/medcheck/internal/profile"
	"github.com/Skufu/medcheck/internal/similarity"
)

const (
	highThreshold     = 70.0
	moderateThreshold = 50.0
	// Profiles with fewer known attributes are flagged as limited data.
	minKnownAttributes = 5
)

var ErrNoRepository = errors.New("profile repository disabled")

// Repository supplies raw patient and reference records.
type Repository interface {
	LatestRecord(ctx context.Context, patientID int64) (profile.Record, error)
	ReferenceRecords(ctx context.Context) ([]profile.Record, error)
}

type Level string

const (
	LevelHigh     Level = "high"
	LevelModerate Level = "moderate"
	LevelLow      Level = "low"
)

func LevelFor(percent float64) Level {
	switch {
	case percent >= highThreshold:
		return LevelHigh
	case percent >= moderateThreshold:
		return LevelModerate
	default:
		return LevelLow
	}
}

type Result struct {
	similarity.Result
	Level Level `json:"level"`
}

type Report struct {
	PatientID       int64           `json:"patient_id,omitempty"`
	Profile         profile.Profile `json:"profile"`
	KnownAttributes int             `json:"known_attributes"`
	LimitedData     bool            `json:"limited_data"`
	Results         []Result        `json:"results"`
	Top             *Result         `json:"top,omitempty"`
	Recommendations []string        `json:"recommendations"`
}

type Service struct {
	repo    Repository
	log     *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// NewService accepts a nil repo; only AssessRecord with explicit
// references works then.
func NewService(repo Repository, log *zap.Logger, m *metrics.Collector) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, log: log, metrics: m, now: time.Now}
}

// Assess scores a stored patient against the stored reference rows.
func (s *Service) Assess(ctx context.Context, patientID int64) (Report, error) {
	if s.repo == nil {
		return Report{}, ErrNoRepository
	}

	rec, err := s.repo.LatestRecord(ctx, patientID)
	if err != nil {
		s.count("error")
		return Report{}, fmt.Errorf("load patient %d: %w", patientID, err)
	}

	report, err := s.AssessRecord(ctx, rec, nil)
	if err != nil {
		return Report{}, err
	}
	report.PatientID = patientID
	return report, nil
}

// AssessRecord scores one raw patient record. When refRecords is empty the
// repository's reference rows are used.
func (s *Service) AssessRecord(ctx context.Context, rec profile.Record, refRecords []profile.Record) (Report, error) {
	p, err := profile.Map(rec, s.now())
	if err != nil {
		s.count("error")
		return Report{}, err
	}

	if len(refRecords) == 0 {
		if s.repo == nil {
			return Report{}, ErrNoRepository
		}
		if refRecords, err = s.repo.ReferenceRecords(ctx); err != nil {
			s.count("error")
			return Report{}, fmt.Errorf("load reference profiles: %w", err)
		}
	}

	refs := make([]profile.Reference, 0, len(refRecords))
	for i, r := range refRecords {
		ref, err := profile.MapReference(r)
		if err != nil {
			s.count("error")
			return Report{}, fmt.Errorf("reference row %d: %w", i, err)
		}
		refs = append(refs, ref)
	}

	report := build(p, similarity.Rank(p, refs))

	outcome := "ok"
	if report.LimitedData {
		outcome = "limited"
	}
	s.count(outcome)
	if s.metrics != nil {
		s.metrics.ReferenceRows.Set(float64(len(refs)))
	}

	fields := []zap.Field{
		zap.Int("known_attributes", report.KnownAttributes),
		zap.Int("reference_rows", len(refs)),
		zap.Int("diseases", len(report.Results)),
		zap.Bool("limited_data", report.LimitedData),
	}
	if report.Top != nil {
		fields = append(fields, zap.String("top_disease", report.Top.Label), zap.Float64("top_percent", report.Top.Percent))
	}
	s.log.Info("similarity assessed", fields...)

	return report, nil
}

func build(p profile.Profile, ranked []similarity.Result) Report {
	report := Report{
		Profile:         p,
		KnownAttributes: p.Known(),
		Results:         make([]Result, 0, len(ranked)),
		Recommendations: recommendations(p),
	}

	contributed := false
	for _, r := range ranked {
		report.Results = append(report.Results, Result{Result: r, Level: LevelFor(r.Percent)})
		if r.ContributingRows > 0 {
			contributed = true
		}
	}
	report.LimitedData = report.KnownAttributes < minKnownAttributes || !contributed

	if len(report.Results) > 0 && report.Results[0].Percent > moderateThreshold {
		top := report.Results[0]
		report.Top = &top
	}
	return report
}

func recommendations(p profile.Profile) []string {
	out := []string{}
	if p.PhysicallyActive == profile.No {
		out = append(out, "Incorporate regular physical activity (150 min/week).")
	}
	if p.Smoker == profile.Yes {
		out = append(out, "Consider a smoking cessation program.")
	}
	if p.FrequentAlcohol == profile.Yes {
		out = append(out, "Moderate alcohol consumption.")
	}
	if p.HighStress == profile.Yes {
		out = append(out, "Practice stress management techniques.")
	}
	if p.HighBloodPressure == profile.Yes {
		out = append(out, "Schedule regular blood pressure checks.")
	}
	if p.HighCholesterol == profile.Yes {
		out = append(out, "Follow a diet low in saturated fat and monitor cholesterol.")
	}
	return out
}

func (s *Service) count(outcome string) {
	if s.metrics != nil {
		s.metrics.AssessmentsTotal.WithLabelValues(outcome).Inc()
	}
}
