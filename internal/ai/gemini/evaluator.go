package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/talent-match/internal/ai"
	"github.com/spigell/talent-match/internal/logger"
	"github.com/spigell/talent-match/internal/records"
)

//go:embed prompt.md
var promptTemplate string

const (
	defaultMaxLogLength = 200
	maxNotesRunes       = 500
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}

// PromptOverrides carries recruiter supplied context for the prompt.
type PromptOverrides struct {
	Focus        string
	DealBreakers string
	Notes        string
}

// Evaluator asks Gemini for a skill match score of a candidate against a job.
type Evaluator struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
	overrides PromptOverrides
}

var _ ai.Evaluator = (*Evaluator)(nil)

func NewEvaluator(generator contentGenerator, maxLogLength int, log *zap.Logger) *Evaluator {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Evaluator{
		generator: generator,
		logger:    logger.WithFields(log, logger.ProviderFields("gemini", generator.Model())...),
		maxLogLen: maxLogLength,
	}
}

func (e *Evaluator) SetPromptOverrides(o PromptOverrides) {
	e.overrides = o
}

func (e *Evaluator) Evaluate(ctx context.Context, candidate *records.Candidate, job *records.Job) (*ai.Assessment, error) {
	if candidate == nil {
		return nil, fmt.Errorf("candidate is required")
	}
	if job == nil {
		return nil, fmt.Errorf("job is required")
	}

	message, err := buildMessage(candidate, job)
	if err != nil {
		return nil, err
	}
	system := buildSystemPrompt(e.overrides)

	log := logger.ForMatch(e.logger, "", job.ID, candidate.ID)
	log.Debug("gemini skill match request",
		zap.Int("message_length", utf8.RuneCountInString(message)),
		zap.String("message_preview", logger.TruncateForLog(message, e.maxLogLen)),
	)

	raw, err := e.generator.GenerateContent(ctx, system, message)
	if err != nil {
		return nil, err
	}

	log.Debug("gemini skill match response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.TruncateForLog(raw, e.maxLogLen)),
	)

	assessment, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}
	assessment.Raw = raw

	return assessment, nil
}

// candidateView leaves out fields that say nothing about skills.
type candidateView struct {
	ID             string                   `json:"id"`
	JobTitleTags   []string                 `json:"job_title_tags,omitempty"`
	MandatoryTags  []string                 `json:"mandatory_tags,omitempty"`
	Skills         []string                 `json:"skills,omitempty"`
	Education      []records.Education      `json:"education,omitempty"`
	WorkExperience []records.WorkExperience `json:"work_experience,omitempty"`
}

type jobView struct {
	Title         string   `json:"title,omitempty"`
	JobTitleTags  []string `json:"job_title_tags,omitempty"`
	MandatoryTags []string `json:"mandatory_tags,omitempty"`
	RequiredTags  []string `json:"required_tags,omitempty"`
	Industry      string   `json:"industry,omitempty"`
}

func buildMessage(c *records.Candidate, j *records.Job) (string, error) {
	candidateJSON, err := json.MarshalIndent(candidateView{
		ID:             c.ID,
		JobTitleTags:   c.JobTitleTags,
		MandatoryTags:  c.MandatoryTags,
		Skills:         c.Skills,
		Education:      c.Education,
		WorkExperience: c.WorkExperience,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidate payload: %w", err)
	}

	jobJSON, err := json.MarshalIndent(jobView{
		Title:         j.Title,
		JobTitleTags:  j.JobTitleTags,
		MandatoryTags: j.MandatoryTags,
		RequiredTags:  j.RequiredTags,
		Industry:      j.Industry,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}

	return fmt.Sprintf("[Inputs]\nCandidate:\n%s\n\nJob:\n%s\n", candidateJSON, jobJSON), nil
}

func buildSystemPrompt(o PromptOverrides) string {
	prompt := strings.ReplaceAll(promptTemplate, "{{FOCUS}}", singleLineOrNone(o.Focus))
	prompt = strings.ReplaceAll(prompt, "{{DEAL_BREAKERS}}", singleLineOrNone(o.DealBreakers))
	prompt = strings.ReplaceAll(prompt, "{{NOTES}}", notesBlock(o.Notes))
	return prompt
}

// singleLineOrNone collapses whitespace and neutralizes square brackets so
// recruiter text cannot imitate prompt section headers.
func singleLineOrNone(s string) string {
	s = strings.Join(strings.Fields(neutralize(s)), " ")
	if s == "" {
		return "none"
	}
	return s
}

func notesBlock(s string) string {
	s = strings.TrimSpace(neutralize(s))
	if s == "" {
		return "  - none"
	}

	if runes := []rune(s); len(runes) > maxNotesRunes {
		s = string(runes[:maxNotesRunes])
	}

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		lines = append(lines, "  - "+line)
	}
	return strings.Join(lines, "\n")
}

func neutralize(s string) string {
	return strings.NewReplacer("[", "(", "]", ")", "{{", "(", "}}", ")").Replace(s)
}

func parseResponse(raw string) (*ai.Assessment, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	score := coerceFloat(data["score"])
	if math.IsNaN(score) {
		return nil, fmt.Errorf("gemini response has no numeric score")
	}

	return &ai.Assessment{
		Score:  math.Max(0, math.Min(100, score)),
		Reason: coerceString(data["reason"]),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSuffix(strings.TrimSpace(val), "%")
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
