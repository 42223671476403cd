package dataprep

import (
	"errors"
	"strings"

	"github.com/snufilmfest/ottcluster/pkg/data"
	"github.com/snufilmfest/ottcluster/pkg/survey"
)

// ErrNoUsableRows is returned when every row is empty across all roles.
var ErrNoUsableRows = errors.New("no usable rows after cleaning")

// Survey holds the cleaned categorical value of every role for each retained
// respondent. Row i of every column belongs to table row SourceRows[i].
type Survey struct {
	Values     map[survey.Role][]string
	SourceRows []int
}

// Len returns the number of respondents.
func (s *Survey) Len() int { return len(s.SourceRows) }

// Column returns the cleaned values of role.
func (s *Survey) Column(role survey.Role) []string { return s.Values[role] }

// Clean selects the role columns of t for the given rows (all rows when rows
// is nil), normalises every value and drops rows that are Unknown for every
// role. Row order is preserved.
func Clean(t *data.Table, schema *survey.Schema, rows []int) (*Survey, error) {
	if rows == nil {
		rows = data.Sample(t.Len(), 0, 0)
	}

	cols := make(map[survey.Role][]string, len(survey.Roles))
	for _, role := range survey.Roles {
		col := SelectColumn(t.Rows, rows, schema.Column(role).Index, survey.Unknown)
		cols[role] = CleanValues(col)
	}

	out := &Survey{Values: make(map[survey.Role][]string, len(survey.Roles))}
	for i, src := range rows {
		usable := false
		for _, role := range survey.Roles {
			if cols[role][i] != survey.Unknown {
				usable = true
				break
			}
		}
		if !usable {
			continue
		}
		out.SourceRows = append(out.SourceRows, src)
		for _, role := range survey.Roles {
			out.Values[role] = append(out.Values[role], cols[role][i])
		}
	}

	if out.Len() == 0 {
		return nil, ErrNoUsableRows
	}
	return out, nil
}

// CleanValues normalises one categorical column: whitespace is trimmed and
// collapsed, missing markers become survey.Unknown and case variants of the
// same label collapse onto one spelling. CleanValues(CleanValues(x)) equals
// CleanValues(x).
func CleanValues(col []string) []string {
	out := make([]string, len(col))
	for i, v := range col {
		out[i] = strings.Join(strings.Fields(v), " ")
	}
	ImputeConstant(out, survey.Unknown)
	return CanonicalizeCase(out)
}

// CanonicalizeCase rewrites every case variant of a label to its most
// frequent spelling; ties go to the spelling seen first.
func CanonicalizeCase(col []string) []string {
	type spelling struct {
		text  string
		count int
	}
	groups := make(map[string][]*spelling)
	for _, v := range col {
		key := strings.ToLower(v)
		found := false
		for _, s := range groups[key] {
			if s.text == v {
				s.count++
				found = true
				break
			}
		}
		if !found {
			groups[key] = append(groups[key], &spelling{text: v, count: 1})
		}
	}

	canonical := make(map[string]string, len(groups))
	for key, spellings := range groups {
		best := spellings[0]
		for _, s := range spellings[1:] {
			if s.count > best.count {
				best = s
			}
		}
		canonical[key] = best.text
	}

	out := make([]string, len(col))
	for i, v := range col {
		out[i] = canonical[strings.ToLower(v)]
	}
	return out
}
