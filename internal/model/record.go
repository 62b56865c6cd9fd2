package model

import (
	"fmt"
	"strings"
	"time"
)

// Domain identifies an external platform being queried (a job board or ATS).
type Domain string

// Known domains. Any other value is routed to the universal fallback tier.
const (
	DomainUpwork     Domain = "upwork"
	DomainLinkedIn   Domain = "linkedin"
	DomainIndeed     Domain = "indeed"
	DomainGreenhouse Domain = "greenhouse"
	DomainLever      Domain = "lever"
	DomainRemoteOK   Domain = "remoteok"
)

// ParseDomain normalizes a user-supplied domain name.
func ParseDomain(s string) Domain {
	return Domain(strings.ToLower(strings.TrimSpace(s)))
}

// TierID names one acquisition strategy in a fallback chain.
type TierID string

// Acquisition tiers, roughly ordered from specialist to general purpose.
const (
	TierApify         TierID = "apify"
	TierFirecrawl     TierID = "firecrawl"
	TierJinaSearch    TierID = "jina_search"
	TierPerplexity    TierID = "perplexity"
	TierClaudeExtract TierID = "claude_extract"
	TierDirect        TierID = "direct"

	// TierNone marks a domain whose chain was exhausted.
	TierNone TierID = "none"
)

// Well-known record field keys.
const (
	FieldTitle        = "title"
	FieldOrganization = "organization"
	FieldLocation     = "location"
	FieldURL          = "url"
	FieldPostedAt     = "posted_at"
	FieldDescription  = "description"
	FieldBudget       = "budget"
	FieldJobType      = "job_type"
	FieldSkills       = "skills"
	FieldExternalID   = "external_id"
)

// Provenance identifies which domain and tier produced a record.
type Provenance struct {
	Tier      TierID    `json:"tier"`
	Domain    Domain    `json:"domain"`
	Query     string    `json:"query,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Record is a single semi-structured acquired item (a job posting).
type Record struct {
	Fields     map[string]any `json:"fields"`
	Provenance Provenance     `json:"provenance"`
}

// NewRecord creates a record with a copy of the given fields.
func NewRecord(fields map[string]any) Record {
	cp := make(map[string]any, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Record{Fields: cp}
}

// Field returns the string form of a field, or "" if absent.
func (r Record) Field(key string) string {
	v, ok := r.Fields[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, ", ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}

// WithProvenance returns a shallow copy of r carrying p.
func (r Record) WithProvenance(p Provenance) Record {
	r.Provenance = p
	return r
}
