package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
)

const (
	CandidateIDField       = "ID"
	CandidateEmployerField = "Employer"
)

type Candidates struct {
	Items []*Candidate
}

func (c *Candidates) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

func (c *Candidates) FindByID(id string) (*Candidate, error) {
	for _, candidate := range c.Items {
		if candidate.ID == id {
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("candidate %q: %w", id, ErrNotFound)
}

func (c *Candidates) IDs() []string {
	ids := make([]string, 0, c.Len())
	for _, candidate := range c.Items {
		ids = append(ids, candidate.ID)
	}
	return ids
}

func (c *Candidate) stringField(name string) string {
	switch name {
	case CandidateIDField:
		return c.ID
	case CandidateEmployerField:
		return c.CurrentEmployer()
	default:
		return ""
	}
}

// Exclude removes every candidate whose field matches one of targets and
// returns the removed ids. Employer comparison ignores case and surrounding
// whitespace; ids are compared exactly. The order of the rest is preserved.
func (c *Candidates) Exclude(field string, targets []string) []string {
	if len(targets) == 0 {
		return nil
	}

	normalize := func(s string) string { return s }
	if field == CandidateEmployerField {
		normalize = func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	}

	set := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		set[normalize(t)] = struct{}{}
	}

	var excluded []string
	kept := c.Items[:0]
	for _, candidate := range c.Items {
		value := normalize(candidate.stringField(field))
		if _, ok := set[value]; ok && value != "" {
			excluded = append(excluded, candidate.ID)
			continue
		}
		kept = append(kept, candidate)
	}

	for i := len(kept); i < len(c.Items); i++ {
		c.Items[i] = nil
	}
	c.Items = kept

	return excluded
}

func (c *Candidates) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "candidates_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c.Items); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// ToExcluded converts the collection into exclude-file entries.
func (c *Candidates) ToExcluded(jobID, reason string) *ExcludedCandidates {
	excluded := &ExcludedCandidates{}
	now := time.Now().UTC()
	for _, candidate := range c.Items {
		excluded.Items = append(excluded.Items, &ExcludedCandidate{
			ID:         candidate.ID,
			Name:       candidate.Name,
			JobID:      jobID,
			Reason:     reason,
			ExcludedAt: now,
		})
	}
	return excluded
}

type ExcludedCandidates struct {
	Items []*ExcludedCandidate `json:"items"`
}

type ExcludedCandidate struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	JobID      string    `json:"job_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	ExcludedAt time.Time `json:"excluded_at"`
}

// LoadExcluded reads the exclude file. A missing or empty file yields an
// empty list.
func LoadExcluded(path string) (*ExcludedCandidates, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &ExcludedCandidates{}, nil
	}
	if err != nil {
		return nil, err
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return &ExcludedCandidates{}, nil
	}

	var excluded ExcludedCandidates
	if err := json.Unmarshal(data, &excluded); err != nil {
		return nil, fmt.Errorf("parsing exclude file %q: %w", path, err)
	}
	return &excluded, nil
}

func (e *ExcludedCandidates) Append(other *ExcludedCandidates) {
	if other == nil {
		return
	}
	e.Items = append(e.Items, other.Items...)
}

func (e *ExcludedCandidates) IDs() []string {
	ids := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

func (e *ExcludedCandidates) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}
