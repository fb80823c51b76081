package catalog

import "strings"

// DatasetStatus is the lifecycle state of a dataset.
type DatasetStatus string

const (
	StatusActive     DatasetStatus = "active"
	StatusComingSoon DatasetStatus = "coming_soon"
)

// Dataset is a named, whitelisted set of queryable tables.
type Dataset struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Department  string        `json:"department"`
	Description string        `json:"description,omitempty"`
	Status      DatasetStatus `json:"status"`
	AgentID     *string       `json:"agentId,omitempty"`
	Tables      []string      `json:"tables"`
}

// IsActive reports whether the dataset can be queried.
func (d *Dataset) IsActive() bool {
	return d.Status == StatusActive
}

// Table returns the whitelisted spelling of name. Matching is
// case-insensitive; only the returned value may be embedded in SQL.
func (d *Dataset) Table(name string) (string, bool) {
	for _, t := range d.Tables {
		if strings.EqualFold(t, name) {
			return t, true
		}
	}
	return "", false
}

// Agent is a named scope used to bias generation and to grant implicit
// dataset access.
type Agent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ScopeHint string `json:"scopeHint"`
	Enabled   bool   `json:"enabled"`
}
