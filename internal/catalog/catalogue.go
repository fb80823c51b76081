// Package catalog holds the dataset and agent catalogue.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"

	"sigs.k8s.io/yaml"
)

// ErrInvalidCatalogue is returned when a catalogue file fails validation.
var ErrInvalidCatalogue = errors.New("invalid catalogue")

var tableNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Reader provides lookups over the catalogue.
type Reader interface {
	Dataset(id string) (*Dataset, bool)
	Agent(id string) (*Agent, bool)
	Datasets() []Dataset
	Agents() []Agent
}

// Catalogue is an immutable snapshot of datasets and agents.
type Catalogue struct {
	datasets []Dataset
	agents   []Agent
	byID     map[string]int
	agentIdx map[string]int
}

type catalogueFile struct {
	Datasets []Dataset `json:"datasets"`
	Agents   []Agent   `json:"agents"`
}

// New builds a Catalogue after validating ids, statuses, agent links, and
// table identifiers.
func New(datasets []Dataset, agents []Agent) (*Catalogue, error) {
	c := &Catalogue{
		byID:     make(map[string]int, len(datasets)),
		agentIdx: make(map[string]int, len(agents)),
	}

	for i, a := range agents {
		if a.ID == "" {
			return nil, fmt.Errorf("%w: agent %d has no id", ErrInvalidCatalogue, i)
		}
		if _, dup := c.agentIdx[a.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate agent id %q", ErrInvalidCatalogue, a.ID)
		}
		c.agentIdx[a.ID] = len(c.agents)
		c.agents = append(c.agents, a)
	}

	for i, d := range datasets {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: dataset %d has no id", ErrInvalidCatalogue, i)
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate dataset id %q", ErrInvalidCatalogue, d.ID)
		}
		if d.Status == "" {
			d.Status = StatusActive
		}
		if d.Status != StatusActive && d.Status != StatusComingSoon {
			return nil, fmt.Errorf("%w: dataset %q has unknown status %q", ErrInvalidCatalogue, d.ID, d.Status)
		}
		if d.AgentID != nil {
			if _, ok := c.agentIdx[*d.AgentID]; !ok {
				return nil, fmt.Errorf("%w: dataset %q links unknown agent %q", ErrInvalidCatalogue, d.ID, *d.AgentID)
			}
		}
		for _, t := range d.Tables {
			if !tableNameRegex.MatchString(t) {
				return nil, fmt.Errorf("%w: dataset %q has invalid table name %q", ErrInvalidCatalogue, d.ID, t)
			}
		}
		d.Tables = slices.Clone(d.Tables)
		c.byID[d.ID] = len(c.datasets)
		c.datasets = append(c.datasets, d)
	}

	return c, nil
}

// Parse decodes a YAML (or JSON) catalogue document.
func Parse(data []byte) (*Catalogue, error) {
	var f catalogueFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalogue, err)
	}
	return New(f.Datasets, f.Agents)
}

// LoadFile reads and parses the catalogue at path.
func LoadFile(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalogue: %w", err)
	}
	return Parse(data)
}

// Dataset returns the dataset with the given id.
func (c *Catalogue) Dataset(id string) (*Dataset, bool) {
	i, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	d := c.datasets[i]
	return &d, true
}

// Agent returns the agent with the given id.
func (c *Catalogue) Agent(id string) (*Agent, bool) {
	i, ok := c.agentIdx[id]
	if !ok {
		return nil, false
	}
	a := c.agents[i]
	return &a, true
}

// Datasets returns all datasets in file order.
func (c *Catalogue) Datasets() []Dataset {
	return slices.Clone(c.datasets)
}

// Agents returns all agents in file order.
func (c *Catalogue) Agents() []Agent {
	return slices.Clone(c.agents)
}

// Tables returns the distinct tables of every dataset in r, in first-seen
// order.
func Tables(r Reader) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, d := range r.Datasets() {
		for _, t := range d.Tables {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
