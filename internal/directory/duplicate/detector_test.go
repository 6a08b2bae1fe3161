package duplicate

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifeline/internal/directory/models"
)

type stubReader struct {
	entries []models.EntrySummary
	err     error
	calls   int
}

func (s *stubReader) ListApprovedSummaries(context.Context) ([]models.EntrySummary, error) {
	s.calls++
	return s.entries, s.err
}

var directory = []models.EntrySummary{
	{Name: "Makati Central Fire Station", Phone: "02-8818-5150", Latitude: 14.5547, Longitude: 121.0244},
	{Name: "Philippine General Hospital", Phone: "0285548400", Latitude: 14.5781, Longitude: 120.9856},
}

func TestFindDuplicate(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name       string
		candidate  [2]string
		lat, lng   float64
		wantFound  bool
		wantReason MatchReason
	}{
		{"substring of existing name", [2]string{"central fire", ""}, 10, 125, true, ReasonName},
		{"existing name inside candidate", [2]string{"New PHILIPPINE GENERAL HOSPITAL annex", ""}, 10, 125, true, ReasonName},
		{"phone after normalization", [2]string{"Unrelated", "02 8818 5150"}, 10, 125, true, ReasonPhone},
		{"within threshold on both axes", [2]string{"Unrelated", "09170000000"}, 14.5550, 121.0250, true, ReasonProximity},
		{"just inside threshold", [2]string{"Unrelated", ""}, 14.55375, 121.02345, true, ReasonProximity},
		{"close on one axis only", [2]string{"Unrelated", ""}, 14.5547, 121.0300, false, ReasonNone},
		{"blank name and phone never match", [2]string{"  ", " - "}, 10, 125, false, ReasonNone},
		{"NaN coordinates never match", [2]string{"Unrelated", ""}, math.NaN(), 121.0244, false, ReasonNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := New(&stubReader{entries: directory})
			m, err := d.FindDuplicate(ctx, tc.candidate[0], tc.candidate[1], tc.lat, tc.lng)
			require.NoError(t, err)
			assert.Equal(t, tc.wantFound, m.Found)
			assert.Equal(t, tc.wantReason, m.Reason)
		})
	}
}

func TestFindDuplicate_PriorityOnlyAffectsReason(t *testing.T) {
	// Name, phone and proximity all match different entries; name wins the diagnostic.
	entries := []models.EntrySummary{
		{Name: "Far Away", Phone: "09171234567", Latitude: 20, Longitude: 120},
		{Name: "Nearby", Phone: "", Latitude: 14.5995, Longitude: 120.9842},
		{Name: "City Hospital", Phone: "", Latitude: 5, Longitude: 117},
	}
	m := Evaluate(entries, "City Hospital", "0917-123-4567", 14.5995, 120.9842, DefaultProximityDegrees)
	assert.True(t, m.Found)
	assert.Equal(t, ReasonName, m.Reason)
	assert.Equal(t, "City Hospital", m.EntryName)

	m = Evaluate(entries, "Something Else", "0917-123-4567", 14.5995, 120.9842, DefaultProximityDegrees)
	assert.Equal(t, ReasonPhone, m.Reason)
}

func TestFindDuplicate_EmptyDirectory(t *testing.T) {
	d := New(&stubReader{})
	m, err := d.FindDuplicate(context.Background(), "City Hospital", "09171234567", 14.5995, 120.9842)
	require.NoError(t, err)
	assert.False(t, m.Found)
}

func TestFindDuplicate_ReaderError(t *testing.T) {
	boom := errors.New("connection reset")
	d := New(&stubReader{err: boom})
	_, err := d.FindDuplicate(context.Background(), "x", "", 14, 121)
	assert.ErrorIs(t, err, boom)
}

func TestWithProximityThreshold(t *testing.T) {
	reader := &stubReader{entries: []models.EntrySummary{{Name: "A", Latitude: 14, Longitude: 121}}}
	d := New(reader, WithProximityThreshold(0.01))
	m, err := d.FindDuplicate(context.Background(), "B", "", 14.005, 121.005)
	require.NoError(t, err)
	assert.True(t, m.Found)

	d = New(reader, WithProximityThreshold(-1))
	m, err = d.FindDuplicate(context.Background(), "B", "", 14.005, 121.005)
	require.NoError(t, err)
	assert.False(t, m.Found, "non-positive thresholds keep the default")
}
