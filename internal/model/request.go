package model

import (
	"github.com/rotisserie/eris"
)

// AcquisitionRequest asks for up to Count records from one domain.
// Use NewRequest so the filter map is not shared with the caller.
type AcquisitionRequest struct {
	Domain  Domain            `json:"domain"`
	Query   string            `json:"query"`
	Count   int               `json:"count"`
	Filters map[string]string `json:"filters,omitempty"`
}

// NewRequest builds a request, copying filters.
func NewRequest(domain Domain, query string, count int, filters map[string]string) AcquisitionRequest {
	var cp map[string]string
	if len(filters) > 0 {
		cp = make(map[string]string, len(filters))
		for k, v := range filters {
			cp[k] = v
		}
	}
	return AcquisitionRequest{
		Domain:  domain,
		Query:   query,
		Count:   count,
		Filters: cp,
	}
}

// Validate checks the request is usable.
func (r AcquisitionRequest) Validate() error {
	if r.Domain == "" {
		return eris.New("request: domain is required")
	}
	if r.Count < 0 {
		return eris.Errorf("request: count must be >= 0, got %d", r.Count)
	}
	return nil
}
