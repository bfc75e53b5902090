// Package scoring computes how well a candidate fits a job. Every dimension
// carries a base score on its own scale and a final score rescaled to 0-100.
package scoring

import (
	"math"

	"github.com/mitchellh/mapstructure"

	"github.com/spigell/talent-match/internal/records"
)

const (
	// NeutralDefaultScore is the base score of a location, institution or
	// industry dimension whose filter is switched off.
	NeutralDefaultScore = 10.0

	// MaxTagScore caps the accumulated tag score.
	MaxTagScore = 50.0

	// Constant dimensions not yet driven by candidate data.
	SalaryBaseScore    = 10.0
	WorkSetupBaseScore = 5.0
	WorkShiftBaseScore = 5.0

	tagScale       = 2
	affinityScale  = 10
	locationScale  = 10
	salaryScale    = 10
	workSetupScale = 20
	workShiftScale = 20
)

type TagScore struct {
	BaseScore   float64  `json:"baseScore"`
	CappedScore float64  `json:"cappedScore"`
	FinalScore  int      `json:"finalScore"`
	MatchedTags []string `json:"matchedTags"`
}

type LocationScore struct {
	BaseScore  float64 `json:"baseScore"`
	DistanceKm float64 `json:"distanceKm"`
	FinalScore int     `json:"finalScore"`
}

type InstitutionScore struct {
	BaseScore       float64 `json:"baseScore"`
	InstitutionName string  `json:"institutionName,omitempty"`
	FinalScore      int     `json:"finalScore"`
}

type IndustryScore struct {
	BaseScore    float64 `json:"baseScore"`
	IndustryName string  `json:"industryName,omitempty"`
	FinalScore   int     `json:"finalScore"`
}

type DimensionScore struct {
	BaseScore  float64 `json:"baseScore"`
	FinalScore int     `json:"finalScore"`
}

// MatchScore is the per-dimension breakdown of one candidate/job pair.
type MatchScore struct {
	TagScore         TagScore         `json:"tagScore"`
	LocationScore    LocationScore    `json:"locationScore"`
	InstitutionScore InstitutionScore `json:"institutionScore"`
	IndustryScore    IndustryScore    `json:"industryScore"`
	SalaryScore      DimensionScore   `json:"salaryScore"`
	WorkSetupScore   DimensionScore   `json:"workSetupScore"`
	WorkShiftScore   DimensionScore   `json:"workShiftScore"`
	OverallScore     DimensionScore   `json:"overallScore"`
}

// Filters switches the optional dimensions on. Zero value disables all.
type Filters struct {
	Location    bool `json:"location" mapstructure:"location"`
	Institution bool `json:"institution" mapstructure:"institution"`
	Industry    bool `json:"industry" mapstructure:"industry"`
}

// ParseFilters reads filters from loosely typed data such as a request body
// or a stored document. Missing keys and nil data mean disabled; strings
// and numbers are accepted for booleans.
func ParseFilters(data map[string]any) (Filters, error) {
	var f Filters
	if len(data) == 0 {
		return f, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &f,
	})
	if err != nil {
		return Filters{}, err
	}
	if err := decoder.Decode(data); err != nil {
		return Filters{}, err
	}
	return f, nil
}

// EffectiveScore is the display score used when ranking candidates: the
// higher of the tag score and the rounded skill match score.
func EffectiveScore(score *MatchScore, skill *records.SkillMatch) int {
	tag := 0
	if score != nil {
		tag = score.TagScore.FinalScore
	}
	if skill == nil || math.IsNaN(skill.Score) {
		return tag
	}
	return max(tag, round(skill.Score))
}

// round rounds half up.
func round(x float64) int {
	return int(math.Floor(x + 0.5))
}
