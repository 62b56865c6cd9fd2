// Package dedupe collapses records that describe the same posting.
package dedupe

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/jobscout/internal/model"
)

// keyFields make up the identity key, in order.
var keyFields = []string{
	model.FieldTitle,
	model.FieldOrganization,
	model.FieldLocation,
}

// Stats summarizes one dedupe pass.
type Stats struct {
	Total      int `json:"total"`
	Duplicates int `json:"duplicates"`
	Unique     int `json:"unique"`
}

// IdentityKey returns the normalized title|organization|location key. Two
// records with equal keys describe the same posting. When the organization is
// blank the normalized URL, or failing that the external ID, is appended so
// unrelated postings sharing a title and location stay apart. When all three
// fields are blank the key is the normalized URL, and "" if that is blank too.
func IdentityKey(r model.Record) string {
	fold := cases.Fold()
	parts := make([]string, len(keyFields))
	blank := true
	for i, f := range keyFields {
		parts[i] = normalize(fold, r.Field(f))
		if parts[i] != "" {
			blank = false
		}
	}
	if blank {
		if u := normalize(fold, r.Field(model.FieldURL)); u != "" {
			return "url:" + u
		}
		return ""
	}
	key := strings.Join(parts, "|")
	if parts[1] == "" {
		if u := normalize(fold, r.Field(model.FieldURL)); u != "" {
			return key + "|url:" + u
		}
		if id := normalize(fold, r.Field(model.FieldExternalID)); id != "" {
			return key + "|id:" + id
		}
	}
	return key
}

func normalize(fold cases.Caser, s string) string {
	s = norm.NFKC.String(s)
	s = fold.String(s)
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// Dedupe returns records with later duplicates removed. The first record for
// each key is kept unchanged and input order is preserved.
func Dedupe(records []model.Record) []model.Record {
	out, _ := DedupeWithStats(records)
	return out
}

// DedupeWithStats is Dedupe plus counts of what was removed. Records with an
// empty identity key are always kept.
func DedupeWithStats(records []model.Record) ([]model.Record, Stats) {
	seen := make(map[string]struct{}, len(records))
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		key := IdentityKey(r)
		if key != "" {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, r)
	}
	return out, Stats{
		Total:      len(records),
		Duplicates: len(records) - len(out),
		Unique:     len(out),
	}
}
