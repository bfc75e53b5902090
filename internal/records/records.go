package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound = errors.New("record not found")

	validate = validator.New()
)

type Coordinates struct {
	Lat float64 `json:"lat" mapstructure:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" mapstructure:"lng" validate:"gte=-180,lte=180"`
}

// Location is either a free-text address or a resolved coordinate pair.
// A zero Location means the record has no location at all.
type Location struct {
	Address     string       `json:"address,omitempty" mapstructure:"address"`
	Coordinates *Coordinates `json:"coordinates,omitempty" mapstructure:"coordinates"`
}

func TextLocation(address string) Location {
	return Location{Address: address}
}

func PointLocation(lat, lng float64) Location {
	return Location{Coordinates: &Coordinates{Lat: lat, Lng: lng}}
}

func (l Location) IsEmpty() bool {
	return l.Coordinates == nil && strings.TrimSpace(l.Address) == ""
}

func (l Location) String() string {
	if l.Coordinates != nil {
		return fmt.Sprintf("%.5f,%.5f", l.Coordinates.Lat, l.Coordinates.Lng)
	}
	return strings.TrimSpace(l.Address)
}

// UnmarshalJSON accepts null, a plain string or a {"lat","lng"} object.
func (l *Location) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*l = Location{}

	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		return json.Unmarshal(data, &l.Address)
	}

	var raw struct {
		Lat         *float64     `json:"lat"`
		Lng         *float64     `json:"lng"`
		Address     string       `json:"address"`
		Coordinates *Coordinates `json:"coordinates"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode location: %w", err)
	}

	l.Address = raw.Address
	l.Coordinates = raw.Coordinates
	if raw.Lat != nil && raw.Lng != nil {
		l.Coordinates = &Coordinates{Lat: *raw.Lat, Lng: *raw.Lng}
	}

	return nil
}

// MarshalJSON writes the location back in the shape it was read from.
func (l Location) MarshalJSON() ([]byte, error) {
	switch {
	case l.Coordinates != nil:
		return json.Marshal(l.Coordinates)
	case strings.TrimSpace(l.Address) != "":
		return json.Marshal(l.Address)
	default:
		return []byte("null"), nil
	}
}

type Education struct {
	Institution string `json:"institution,omitempty" mapstructure:"institution"`
	Degree      string `json:"degree,omitempty" mapstructure:"degree"`
	Year        string `json:"year,omitempty" mapstructure:"year"`
	GPA         string `json:"gpa,omitempty" mapstructure:"gpa"`
}

type WorkExperience struct {
	Title      string   `json:"title,omitempty" mapstructure:"title"`
	Company    string   `json:"company,omitempty" mapstructure:"company"`
	Duration   string   `json:"duration,omitempty" mapstructure:"duration"`
	Highlights []string `json:"highlights,omitempty" mapstructure:"highlights"`
}

// SkillMatch is the result of the external LLM skill evaluation.
type SkillMatch struct {
	Score  float64 `json:"score" mapstructure:"score" validate:"gte=0,lte=100"`
	Reason string  `json:"reason,omitempty" mapstructure:"reason"`
}

type Candidate struct {
	ID   string `json:"id" mapstructure:"id" validate:"required"`
	Name string `json:"name,omitempty" mapstructure:"name"`

	JobTitleTags               []string `json:"job_title_tags,omitempty" mapstructure:"job_title_tags"`
	MandatoryTags              []string `json:"mandatory_tags,omitempty" mapstructure:"mandatory_tags"`
	AlternativeJobTitleTagsEN  []string `json:"alternative_job_title_tags_en,omitempty" mapstructure:"alternative_job_title_tags_en"`
	AlternativeJobTitleTagsHE  []string `json:"alternative_job_title_tags_he,omitempty" mapstructure:"alternative_job_title_tags_he"`
	AlternativeMandatoryTagsEN []string `json:"alternative_mandatory_tags_en,omitempty" mapstructure:"alternative_mandatory_tags_en"`
	AlternativeMandatoryTagsHE []string `json:"alternative_mandatory_tags_he,omitempty" mapstructure:"alternative_mandatory_tags_he"`
	Skills                     []string `json:"skills,omitempty" mapstructure:"skills"`

	Location       Location         `json:"location" mapstructure:"location"`
	Education      []Education      `json:"education,omitempty" mapstructure:"education"`
	WorkExperience []WorkExperience `json:"work_experience,omitempty" mapstructure:"work_experience"`

	SkillMatch *SkillMatch `json:"skill_match,omitempty" mapstructure:"skill_match"`
}

// CurrentEmployer returns the company of the first work experience entry.
func (c *Candidate) CurrentEmployer() string {
	for _, exp := range c.WorkExperience {
		if company := strings.TrimSpace(exp.Company); company != "" {
			return company
		}
	}
	return ""
}

func (c *Candidate) Validate() error {
	if c == nil {
		return errors.New("candidate is nil")
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("candidate %q: %w", c.ID, err)
	}
	return nil
}

type Job struct {
	ID            string   `json:"id" mapstructure:"id" validate:"required"`
	Title         string   `json:"title,omitempty" mapstructure:"title"`
	JobTitleTags  []string `json:"job_title_tags,omitempty" mapstructure:"job_title_tags"`
	MandatoryTags []string `json:"mandatory_tags,omitempty" mapstructure:"mandatory_tags"`
	RequiredTags  []string `json:"required_tags,omitempty" mapstructure:"required_tags" validate:"max=2"`
	Location      Location `json:"location" mapstructure:"location"`
	Industry      string   `json:"industry,omitempty" mapstructure:"industry"`
}

// ScoringTags returns mandatory tags followed by any required tag that is
// not already mandatory. These form the denominator of the tag weight.
func (j *Job) ScoringTags() []string {
	return Dedup(j.MandatoryTags, j.RequiredTags)
}

func (j *Job) Validate() error {
	if j == nil {
		return errors.New("job is nil")
	}
	if err := validate.Struct(j); err != nil {
		return fmt.Errorf("job %q: %w", j.ID, err)
	}
	return nil
}

// Dedup concatenates the lists, keeping the first occurrence of every value.
func Dedup(lists ...[]string) []string {
	size := 0
	for _, list := range lists {
		size += len(list)
	}

	seen := make(map[string]struct{}, size)
	out := make([]string, 0, size)
	for _, list := range lists {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
