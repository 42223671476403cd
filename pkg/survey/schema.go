// Package survey maps the semantic roles of the media-preference survey onto
// the columns of an uploaded table.
package survey

import (
	"strings"
)

// Role is one of the survey attributes the pipeline clusters on.
type Role string

const (
	MovieGenre  Role = "movie_genre"
	SeriesGenre Role = "series_genre"
	OTTPlatform Role = "ott"
	ContentLang Role = "content_lang"
)

// Roles lists every role in resolution and feature order.
var Roles = []Role{MovieGenre, SeriesGenre, OTTPlatform, ContentLang}

// Unknown is the canonical token for a missing or unmatched value.
const Unknown = "Unknown"

// Column is the table column a role resolved to.
type Column struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
	// Fallback is set when no header matched; the role then reads as Unknown
	// for every row.
	Fallback bool `json:"fallback"`
}

// Schema is the resolved role -> column mapping.
type Schema struct {
	Columns map[Role]Column
}

// Column returns the column for role.
func (s *Schema) Column(role Role) Column {
	if c, ok := s.Columns[role]; ok {
		return c
	}
	return Column{Name: Unknown, Index: -1, Fallback: true}
}

// Fallbacks lists roles that matched no header, in role order.
func (s *Schema) Fallbacks() []Role {
	var out []Role
	for _, r := range Roles {
		if s.Column(r).Fallback {
			out = append(out, r)
		}
	}
	return out
}

// Names returns role -> header name for matched roles.
func (s *Schema) Names() map[Role]string {
	out := make(map[Role]string, len(s.Columns))
	for _, r := range Roles {
		if c := s.Column(r); !c.Fallback {
			out[r] = c.Name
		}
	}
	return out
}

// KeywordSet matches a header containing every keyword as a substring.
type KeywordSet []string

// Rule lists keyword sets for one role, highest priority first.
type Rule struct {
	Role Role
	Sets []KeywordSet
}

// DefaultRules is the ordered rule table used for survey uploads.
var DefaultRules = []Rule{
	{Role: MovieGenre, Sets: []KeywordSet{
		{"movie", "genre"}, {"film", "genre"}, {"movie"}, {"film"},
	}},
	{Role: SeriesGenre, Sets: []KeywordSet{
		{"series", "genre"}, {"show", "genre"}, {"tv", "genre"}, {"series"}, {"show"}, {"tv"},
	}},
	{Role: OTTPlatform, Sets: []KeywordSet{
		{"ott"}, {"platform"}, {"stream"}, {"provider"}, {"service"},
	}},
	{Role: ContentLang, Sets: []KeywordSet{
		{"lang"}, {"tongue"},
	}},
}

// Resolve evaluates rules in order against headers. Within a rule, each
// keyword set is tried against every header in header order; the first
// unclaimed header containing all keywords wins. Roles with no match map to
// a fallback column.
func Resolve(headers []string, rules []Rule) *Schema {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = NormalizeHeader(h)
	}

	s := &Schema{Columns: make(map[Role]Column, len(Roles))}
	claimed := make([]bool, len(headers))

	for _, rule := range rules {
		if _, done := s.Columns[rule.Role]; done {
			continue
		}
	sets:
		for _, set := range rule.Sets {
			for i, h := range normalized {
				if claimed[i] || !set.matches(h) {
					continue
				}
				claimed[i] = true
				s.Columns[rule.Role] = Column{Name: headers[i], Index: i}
				break sets
			}
		}
	}

	for _, r := range Roles {
		if _, ok := s.Columns[r]; !ok {
			s.Columns[r] = Column{Name: Unknown, Index: -1, Fallback: true}
		}
	}
	return s
}

// NormalizeHeader lower-cases h, turns '-', '_' and '.' into spaces and
// collapses runs of whitespace.
func NormalizeHeader(h string) string {
	h = strings.ToLower(h)
	h = strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(h)
	return strings.Join(strings.Fields(h), " ")
}

func (k KeywordSet) matches(header string) bool {
	if len(k) == 0 {
		return false
	}
	for _, kw := range k {
		if !strings.Contains(header, kw) {
			return false
		}
	}
	return true
}
