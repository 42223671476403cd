package survey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	t.Run("maps mixed-case headers to roles", func(t *testing.T) {
		for _, headers := range [][]string{
			{"Fav Movie Genre", "Series Genre", "OTT Platform", "Lang"},
			{"FAV MOVIE GENRE", "series genre", "ott platform", "LANG"},
			{"Lang", "OTT Platform", "Series Genre", "Fav Movie Genre"},
		} {
			s := Resolve(headers, DefaultRules)
			assert.Equal(t, "fav movie genre", NormalizeHeader(s.Column(MovieGenre).Name))
			assert.Equal(t, "series genre", NormalizeHeader(s.Column(SeriesGenre).Name))
			assert.Equal(t, "ott platform", NormalizeHeader(s.Column(OTTPlatform).Name))
			assert.Equal(t, "lang", NormalizeHeader(s.Column(ContentLang).Name))
			assert.Empty(t, s.Fallbacks())
		}
	})

	t.Run("matches original snake case names", func(t *testing.T) {
		headers := []string{"respondent_id", "movie_genre_top1", "series_genre_top1", "ott_top1", "content_lang_top1"}
		s := Resolve(headers, DefaultRules)
		assert.Equal(t, Column{Name: "movie_genre_top1", Index: 1}, s.Column(MovieGenre))
		assert.Equal(t, Column{Name: "series_genre_top1", Index: 2}, s.Column(SeriesGenre))
		assert.Equal(t, Column{Name: "ott_top1", Index: 3}, s.Column(OTTPlatform))
		assert.Equal(t, Column{Name: "content_lang_top1", Index: 4}, s.Column(ContentLang))
	})

	t.Run("first matching header wins", func(t *testing.T) {
		s := Resolve([]string{"Streaming Service", "OTT"}, DefaultRules)
		assert.Equal(t, "OTT", s.Column(OTTPlatform).Name, "higher priority keyword set is tried first")

		s = Resolve([]string{"Language A", "Language B"}, DefaultRules)
		assert.Equal(t, 0, s.Column(ContentLang).Index)
	})

	t.Run("claimed header is not reused", func(t *testing.T) {
		// "Movie Series" matches the movie rule first and must not be
		// claimed again by the series rule.
		s := Resolve([]string{"Movie Series"}, DefaultRules)
		assert.Equal(t, 0, s.Column(MovieGenre).Index)
		assert.True(t, s.Column(SeriesGenre).Fallback)
	})

	t.Run("unmatched roles fall back to Unknown", func(t *testing.T) {
		s := Resolve([]string{"Name", "Movie Genre"}, DefaultRules)
		assert.False(t, s.Column(MovieGenre).Fallback)
		assert.Equal(t, []Role{SeriesGenre, OTTPlatform, ContentLang}, s.Fallbacks())
		assert.Equal(t, Unknown, s.Column(OTTPlatform).Name)
		assert.Equal(t, -1, s.Column(OTTPlatform).Index)
		assert.Equal(t, map[Role]string{MovieGenre: "Movie Genre"}, s.Names())
	})

	t.Run("custom rules", func(t *testing.T) {
		rules := []Rule{{Role: OTTPlatform, Sets: []KeywordSet{{"app"}}}}
		s := Resolve([]string{"Favourite App"}, rules)
		assert.Equal(t, "Favourite App", s.Column(OTTPlatform).Name)
		assert.True(t, s.Column(MovieGenre).Fallback)
	})
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "movie genre top1", NormalizeHeader("  Movie-Genre_top1 "))
	assert.Equal(t, "content lang", NormalizeHeader("Content.Lang"))
	assert.Equal(t, "", NormalizeHeader("   "))
}
