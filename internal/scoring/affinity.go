package scoring

import (
	"github.com/spigell/talent-match/internal/records"
	"github.com/spigell/talent-match/internal/registry"
)

// ScoreInstitution takes the score of the first education entry found in
// the registry. Later entries are not consulted once one matched. Enabled
// with no match scores 0.
func ScoreInstitution(reg *registry.InstitutionRegistry, education []records.Education, enabled bool) InstitutionScore {
	if !enabled {
		return InstitutionScore{
			BaseScore:  NeutralDefaultScore,
			FinalScore: round(NeutralDefaultScore * affinityScale),
		}
	}

	for _, edu := range education {
		entry, ok := reg.Lookup(edu.Institution)
		if !ok {
			continue
		}
		return InstitutionScore{
			BaseScore:       entry.Score,
			InstitutionName: entry.Name,
			FinalScore:      round(entry.Score * affinityScale),
		}
	}

	return InstitutionScore{}
}

// ScoreIndustry looks the job's sector up and scans education institutions,
// then work experience companies, against the sector's English and Hebrew
// names. The first hit wins. Unknown sectors score 0.
func ScoreIndustry(reg *registry.IndustryRegistry, education []records.Education, experience []records.WorkExperience, jobIndustry string, enabled bool) IndustryScore {
	if !enabled {
		return IndustryScore{
			BaseScore:  NeutralDefaultScore,
			FinalScore: round(NeutralDefaultScore * affinityScale),
		}
	}

	if _, ok := reg.Sector(jobIndustry); !ok {
		return IndustryScore{}
	}

	organizations := make([]string, 0, len(education)+len(experience))
	for _, edu := range education {
		organizations = append(organizations, edu.Institution)
	}
	for _, exp := range experience {
		organizations = append(organizations, exp.Company)
	}

	for _, org := range organizations {
		entry, ok := reg.Match(jobIndustry, org)
		if !ok {
			continue
		}
		name := entry.NameEN
		if name == "" {
			name = entry.NameHE
		}
		return IndustryScore{
			BaseScore:    entry.Score,
			IndustryName: name,
			FinalScore:   round(entry.Score * affinityScale),
		}
	}

	return IndustryScore{}
}
