// Package summary profiles each cluster by its size and the dominant
// category of every survey role among its members.
package summary

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/snufilmfest/ottcluster/pkg/dataprep"
	"github.com/snufilmfest/ottcluster/pkg/stats"
	"github.com/snufilmfest/ottcluster/pkg/survey"
)

var ErrLabelCount = errors.New("label count does not match respondents")

// Cluster is the profile of one cluster label.
type Cluster struct {
	Count          int     `json:"count"`
	Pct            float64 `json:"pct"`
	TopMovieGenre  string  `json:"top_movie_genre"`
	TopSeriesGenre string  `json:"top_series_genre"`
	TopOTT         string  `json:"top_ott"`
	TopContentLang string  `json:"top_content_lang"`
}

// Top returns the dominant value recorded for role.
func (c Cluster) Top(role survey.Role) string {
	switch role {
	case survey.MovieGenre:
		return c.TopMovieGenre
	case survey.SeriesGenre:
		return c.TopSeriesGenre
	case survey.OTTPlatform:
		return c.TopOTT
	case survey.ContentLang:
		return c.TopContentLang
	}
	return ""
}

// Summarize builds one Cluster per distinct label. labels[i] belongs to
// respondent i of s. Pct is the share of all respondents rounded to three
// decimals; ties for the top value go to the member seen first in row order.
func Summarize(s *dataprep.Survey, labels []int) (map[int]Cluster, error) {
	n := s.Len()
	if len(labels) != n {
		return nil, fmt.Errorf("%w: %d labels for %d respondents", ErrLabelCount, len(labels), n)
	}

	members := make(map[int][]int)
	for i, l := range labels {
		members[l] = append(members[l], i)
	}

	out := make(map[int]Cluster, len(members))
	for label, rows := range members {
		top := make(map[survey.Role]string, len(survey.Roles))
		for _, role := range survey.Roles {
			col := s.Column(role)
			vals := make([]string, len(rows))
			for k, i := range rows {
				vals[k] = col[i]
			}
			top[role], _ = stats.ModeString(vals)
		}
		out[label] = Cluster{
			Count:          len(rows),
			Pct:            math.Round(float64(len(rows))/float64(n)*1000) / 1000,
			TopMovieGenre:  top[survey.MovieGenre],
			TopSeriesGenre: top[survey.SeriesGenre],
			TopOTT:         top[survey.OTTPlatform],
			TopContentLang: top[survey.ContentLang],
		}
	}
	return out, nil
}

// Labels returns the keys of m in ascending order.
func Labels(m map[int]Cluster) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
