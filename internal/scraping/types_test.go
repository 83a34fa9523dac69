package scraping

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	t.Parallel()

	got, err := ParseStatus(" Paused ")
	require.NoError(t, err)
	require.Equal(t, StatusPaused, got)

	_, err = ParseStatus("running")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidStatus))
}

func TestProjectIsDemo(t *testing.T) {
	t.Parallel()

	require.True(t, Project{ID: "demo-taladnudbaan"}.IsDemo())
	require.False(t, Project{ID: "2"}.IsDemo())
}

func TestComputeStats(t *testing.T) {
	t.Parallel()

	projects := []Project{
		{ID: "a", Status: StatusActive, Health: 100, GoogleDriveEnabled: true},
		{ID: "b", Status: StatusActive, Health: 98},
		{ID: "c", Status: StatusFailed, Health: 10},
		{ID: "d", Status: StatusPaused, Health: 150},
	}
	st := ComputeStats(projects)

	require.Equal(t, 4, st.Total)
	require.Equal(t, 2, st.Active)
	require.Equal(t, 1, st.DriveEnabled)
	require.Equal(t, 1, st.ByStatus[StatusFailed])
	require.Equal(t, (100+98+10+100)/4, st.AverageHealth)
	require.Equal(t, [5]int{1, 0, 0, 0, 3}, st.HealthBuckets)
}

func TestComputeStatsEmpty(t *testing.T) {
	t.Parallel()

	st := ComputeStats(nil)
	require.Zero(t, st.Total)
	require.Zero(t, st.AverageHealth)
}

func TestIntentSuggestionEmpty(t *testing.T) {
	t.Parallel()

	require.True(t, IntentSuggestion{}.Empty())
	require.False(t, IntentSuggestion{Fields: []string{"price"}}.Empty())
}
