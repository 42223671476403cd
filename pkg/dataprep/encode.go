package dataprep

import (
	"errors"
	"fmt"
	"math"

	"github.com/snufilmfest/ottcluster/pkg/stats"
	"github.com/snufilmfest/ottcluster/pkg/survey"
)

// Method selects how categories become numeric features.
type Method string

const (
	// OneHot emits one 0/1 feature per category.
	OneHot Method = "onehot"
	// Ordinal emits one feature holding the category index.
	Ordinal Method = "ordinal"
)

// Scaling selects an optional post-encoding column scaling.
type Scaling string

const (
	ScaleNone     Scaling = "none"
	ScaleStandard Scaling = "standard"
	ScaleMinMax   Scaling = "minmax"
)

var (
	ErrUnknownMethod  = errors.New("unknown encoding method")
	ErrUnknownScaling = errors.New("unknown scaling")
	ErrUnknownRole    = errors.New("role not encoded")
)

// Span locates the features of one role inside an encoded row.
type Span struct {
	Role       survey.Role
	Start      int
	Width      int
	Categories []string // index order; first-seen in the survey
}

// Encoded is the feature matrix of a survey. X has one row per respondent
// in survey order.
type Encoded struct {
	X      [][]float64
	Names  []string
	Spans  []Span
	Method Method
}

// Encode builds the feature matrix for every role of s.
func Encode(s *Survey, method Method) (*Encoded, error) {
	if method == "" {
		method = OneHot
	}
	if method != OneHot && method != Ordinal {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	n := s.Len()
	enc := &Encoded{X: make([][]float64, n), Method: method}
	for i := range enc.X {
		enc.X[i] = []float64{}
	}

	for _, role := range survey.Roles {
		col := s.Column(role)
		span := Span{Role: role, Start: len(enc.Names)}

		switch method {
		case OneHot:
			oh, categories := EncodeCategorical(col)
			for i := 0; i < n; i++ {
				enc.X[i] = append(enc.X[i], oh[i]...)
			}
			for _, c := range categories {
				enc.Names = append(enc.Names, string(role)+"="+c)
			}
			span.Width, span.Categories = len(categories), categories
		case Ordinal:
			labels, categories := LabelEncode(col)
			for i := 0; i < n; i++ {
				enc.X[i] = append(enc.X[i], float64(labels[i]))
			}
			enc.Names = append(enc.Names, string(role))
			span.Width, span.Categories = 1, categories
		}
		enc.Spans = append(enc.Spans, span)
	}
	return enc, nil
}

// Decode maps the features of role in an encoded row back to its label.
func (e *Encoded) Decode(role survey.Role, row []float64) (string, error) {
	for _, sp := range e.Spans {
		if sp.Role != role {
			continue
		}
		block := row[sp.Start : sp.Start+sp.Width]
		idx := -1
		switch e.Method {
		case OneHot:
			best := 0.0
			for j, v := range block {
				if v > best {
					best, idx = v, j
				}
			}
		case Ordinal:
			idx = int(math.Round(block[0]))
		}
		if idx < 0 || idx >= len(sp.Categories) {
			return "", fmt.Errorf("row does not encode a %s category", role)
		}
		return sp.Categories[idx], nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownRole, role)
}

// Features returns X with the requested scaling applied. X itself is left
// untouched so rows still decode.
func (e *Encoded) Features(scale Scaling) ([][]float64, error) {
	switch scale {
	case "", ScaleNone:
		return e.X, nil
	case ScaleStandard:
		return stats.StandardizeData(e.X), nil
	case ScaleMinMax:
		return stats.MinMaxScale(e.X), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScaling, scale)
	}
}

// EncodeCategorical one-hot encodes a slice of string categories. Categories
// are indexed in first-seen order.
func EncodeCategorical(data []string) ([][]float64, []string) {
	idx, categories := LabelEncode(data)
	out := make([][]float64, len(data))
	for i, v := range idx {
		vec := make([]float64, len(categories))
		vec[v] = 1
		out[i] = vec
	}
	return out, categories
}

// LabelEncode encodes categories as integers in first-seen order.
func LabelEncode(data []string) ([]int, []string) {
	unique := map[string]int{}
	var categories []string
	out := make([]int, len(data))
	for i, v := range data {
		if _, ok := unique[v]; !ok {
			unique[v] = len(unique)
			categories = append(categories, v)
		}
		out[i] = unique[v]
	}
	return out, categories
}
