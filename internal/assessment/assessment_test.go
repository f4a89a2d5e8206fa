package assessment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Skufu/medcheck/internal/metrics"
	"github.com/Skufu/medcheck/internal/profile"
)

type fakeRepo struct {
	record  profile.Record
	refs    []profile.Record
	recErr  error
	refsErr error
	refHits int
}

func (f *fakeRepo) LatestRecord(ctx context.Context, patientID int64) (profile.Record, error) {
	return f.record, f.recErr
}

func (f *fakeRepo) ReferenceRecords(ctx context.Context) ([]profile.Record, error) {
	f.refHits++
	return f.refs, f.refsErr
}

func newService(repo Repository) (*Service, *metrics.Collector) {
	m := metrics.NewCollector("medcheck_test")
	s := NewService(repo, zap.NewNop(), m)
	s.now = func() time.Time { return time.Date(2026, time.October, 14, 0, 0, 0, 0, time.UTC) }
	return s, m
}

var referenceRows = []profile.Record{
	{"enfermedad": "EPOC", "edad": 66, "fumador": true, "actividad_fisica": false, "alcohol_frecuente": false},
	{"enfermedad": "EPOC", "edad": 71, "fumador": true, "actividad_fisica": false, "alcohol_frecuente": true},
	{"enfermedad": "Diabetes", "edad": 40, "fumador": false, "actividad_fisica": true, "alcohol_frecuente": false},
	{"enfermedad": "Saludable", "edad": 64, "fumador": true, "actividad_fisica": false, "alcohol_frecuente": false},
}

func TestAssess(t *testing.T) {
	repo := &fakeRepo{
		record: profile.Record{
			"fecha_nacimiento":        "1960-01-20",
			"fuma":                    "Sí",
			"hace_ejercicio":          false,
			"alcoholico":              false,
			"estres_alto":             true,
			"antecedentes_familiares": "padre con EPOC",
		},
		refs: referenceRows,
	}
	s, m := newService(repo)

	report, err := s.Assess(context.Background(), 12)
	require.NoError(t, err)

	assert.Equal(t, int64(12), report.PatientID)
	assert.Equal(t, profile.Age(66), report.Profile.Age)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "EPOC", report.Results[0].Label)
	assert.InDelta(t, 87.5, report.Results[0].Percent, 1e-9)
	assert.Equal(t, LevelHigh, report.Results[0].Level)
	assert.Equal(t, "Diabetes", report.Results[1].Label)
	assert.Equal(t, LevelLow, report.Results[1].Level)

	require.NotNil(t, report.Top)
	assert.Equal(t, "EPOC", report.Top.Label)
	assert.False(t, report.LimitedData)
	assert.Contains(t, report.Recommendations, "Consider a smoking cessation program.")
	assert.Contains(t, report.Recommendations, "Practice stress management techniques.")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssessmentsTotal.WithLabelValues("ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ReferenceRows))
}

func TestAssess_NoHistoryIsLimited(t *testing.T) {
	repo := &fakeRepo{record: profile.Record{"fecha_nacimiento": nil, "fumador": nil}, refs: referenceRows}
	s, m := newService(repo)

	report, err := s.Assess(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, report.LimitedData)
	assert.Nil(t, report.Top)
	for _, r := range report.Results {
		assert.Equal(t, 0.0, r.Percent)
		assert.Equal(t, 0, r.ContributingRows)
	}
	assert.Empty(t, report.Recommendations)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssessmentsTotal.WithLabelValues("limited")))
}

func TestAssess_RepositoryErrorPropagates(t *testing.T) {
	boom := errors.New("db down")
	s, m := newService(&fakeRepo{recErr: boom})

	_, err := s.Assess(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssessmentsTotal.WithLabelValues("error")))

	s, _ = newService(&fakeRepo{record: profile.Record{}, refsErr: boom})
	_, err = s.Assess(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
}

func TestAssess_MalformedRecord(t *testing.T) {
	s, _ := newService(&fakeRepo{record: profile.Record{"fuma": "tal vez"}, refs: referenceRows})
	_, err := s.Assess(context.Background(), 1)
	assert.ErrorIs(t, err, profile.ErrMalformedRecord)

	s, _ = newService(&fakeRepo{record: profile.Record{}, refs: []profile.Record{{"edad": 40}}})
	_, err = s.Assess(context.Background(), 1)
	assert.ErrorIs(t, err, profile.ErrMalformedRecord)
}

func TestAssessRecord_SuppliedReferencesSkipRepository(t *testing.T) {
	repo := &fakeRepo{}
	s, _ := newService(repo)

	report, err := s.AssessRecord(context.Background(), profile.Record{"fumador": true}, []profile.Record{
		{"enfermedad": "EPOC", "fumador": true},
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, 100.0, report.Results[0].Percent)
	assert.True(t, report.LimitedData)
	assert.Equal(t, 0, repo.refHits)
}

func TestAssessRecord_NoRepository(t *testing.T) {
	s, _ := newService(nil)
	_, err := s.AssessRecord(context.Background(), profile.Record{}, nil)
	assert.ErrorIs(t, err, ErrNoRepository)

	_, err = s.Assess(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoRepository)
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, LevelHigh, LevelFor(70))
	assert.Equal(t, LevelModerate, LevelFor(69.9))
	assert.Equal(t, LevelModerate, LevelFor(50))
	assert.Equal(t, LevelLow, LevelFor(49.99))
}
