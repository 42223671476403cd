package summary

import (
	"testing"

	"github.com/snufilmfest/ottcluster/pkg/dataprep"
	"github.com/snufilmfest/ottcluster/pkg/survey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	s := &dataprep.Survey{
		SourceRows: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		Values: map[survey.Role][]string{
			survey.MovieGenre:  {"Action", "Action", "Action", "Drama", "Action", "Romance", "Romance", "Romance", "Horror", "Romance"},
			survey.SeriesGenre: {"Crime", "Crime", "Crime", "Crime", "Crime", "Comedy", "Comedy", "Comedy", "Comedy", "Comedy"},
			survey.OTTPlatform: {"Netflix", "Netflix", "Prime", "Netflix", "Netflix", "Hotstar", "Hotstar", "Hotstar", "Netflix", "Hotstar"},
			survey.ContentLang: {"Hindi", "English", "Hindi", "Hindi", "English", "Tamil", "Tamil", "Tamil", "Tamil", "Tamil"},
		},
	}
	labels := []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}

	got, err := Summarize(s, labels)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, Cluster{
		Count: 5, Pct: 0.5,
		TopMovieGenre: "Action", TopSeriesGenre: "Crime", TopOTT: "Netflix", TopContentLang: "Hindi",
	}, got[0])
	assert.Equal(t, Cluster{
		Count: 5, Pct: 0.5,
		TopMovieGenre: "Romance", TopSeriesGenre: "Comedy", TopOTT: "Hotstar", TopContentLang: "Tamil",
	}, got[1])
	assert.Equal(t, "Hotstar", got[1].Top(survey.OTTPlatform))
	assert.Equal(t, []int{0, 1}, Labels(got))
}

func TestSummarizeTieBreakAndPct(t *testing.T) {
	s := &dataprep.Survey{
		SourceRows: []int{0, 1, 2},
		Values: map[survey.Role][]string{
			survey.MovieGenre:  {"Drama", "Action", "Comedy"},
			survey.SeriesGenre: {"Unknown", "Unknown", "Unknown"},
			survey.OTTPlatform: {"Prime", "Netflix", "Prime"},
			survey.ContentLang: {"Hindi", "Hindi", "Hindi"},
		},
	}
	got, err := Summarize(s, []int{2, 2, 5})
	require.NoError(t, err)

	assert.Equal(t, "Drama", got[2].TopMovieGenre, "first member wins a tie")
	assert.Equal(t, 0.667, got[2].Pct)
	assert.Equal(t, 0.333, got[5].Pct)
	assert.Equal(t, "Unknown", got[5].TopSeriesGenre)

	_, err = Summarize(s, []int{0})
	assert.ErrorIs(t, err, ErrLabelCount)
}
