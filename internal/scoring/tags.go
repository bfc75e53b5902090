package scoring

import (
	"github.com/spigell/talent-match/internal/records"
)

// CandidateTags are the candidate fields consulted by MatchTags. Values are
// expected in lowercase already; comparison is exact.
type CandidateTags struct {
	AlternativeJobTitleTagsEN  []string
	AlternativeJobTitleTagsHE  []string
	AlternativeMandatoryTagsEN []string
	AlternativeMandatoryTagsHE []string
	JobTitleTags               []string
	MandatoryTags              []string
	Skills                     []string
}

func TagsOf(c *records.Candidate) CandidateTags {
	if c == nil {
		return CandidateTags{}
	}
	return CandidateTags{
		AlternativeJobTitleTagsEN:  c.AlternativeJobTitleTagsEN,
		AlternativeJobTitleTagsHE:  c.AlternativeJobTitleTagsHE,
		AlternativeMandatoryTagsEN: c.AlternativeMandatoryTagsEN,
		AlternativeMandatoryTagsHE: c.AlternativeMandatoryTagsHE,
		JobTitleTags:               c.JobTitleTags,
		MandatoryTags:              c.MandatoryTags,
		Skills:                     c.Skills,
	}
}

func (t CandidateTags) set() map[string]struct{} {
	lists := [][]string{
		t.AlternativeJobTitleTagsEN,
		t.AlternativeJobTitleTagsHE,
		t.AlternativeMandatoryTagsEN,
		t.AlternativeMandatoryTagsHE,
		t.JobTitleTags,
		t.MandatoryTags,
		t.Skills,
	}

	set := make(map[string]struct{})
	for _, list := range lists {
		for _, tag := range list {
			set[tag] = struct{}{}
		}
	}
	return set
}

// MatchTags scores the overlap between the job's title and scoring tags and
// the candidate's tags. Each matched tag of the union adds 50/len(jobTags);
// title tags count towards the sum but not the denominator. With no job
// tags nothing can score.
func MatchTags(candidate CandidateTags, jobTitleTags, jobTags []string) TagScore {
	score := TagScore{MatchedTags: []string{}}
	if len(jobTags) == 0 {
		return score
	}

	weight := MaxTagScore / float64(len(jobTags))
	have := candidate.set()

	for _, tag := range records.Dedup(jobTitleTags, jobTags) {
		if _, ok := have[tag]; !ok {
			continue
		}
		score.BaseScore += weight
		score.MatchedTags = append(score.MatchedTags, tag)
	}

	score.CappedScore = min(score.BaseScore, MaxTagScore)
	score.FinalScore = round(score.CappedScore * tagScale)

	return score
}
