package dataprep

import "strings"

// missingMarkers are compared case-insensitively after trimming.
var missingMarkers = map[string]struct{}{
	"":        {},
	"na":      {},
	"n/a":     {},
	"nan":     {},
	"-nan":    {},
	"null":    {},
	"none":    {},
	"<na>":    {},
	"#n/a":    {},
	"-":       {},
	"missing": {},
	"unknown": {},
}

// IsMissing reports whether v is an empty or null marker.
func IsMissing(v string) bool {
	_, ok := missingMarkers[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// ImputeConstant replaces missing values with a fixed constant (in place).
func ImputeConstant(col []string, constant string) []string {
	for i, v := range col {
		if IsMissing(v) {
			col[i] = constant
		}
	}
	return col
}
