package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for an external provider
	// name (geocoding or AI).
	FieldProvider = "provider"
	// FieldModel is the structured log field key for the AI model identifier.
	FieldModel = "ai_model"

	FieldJobID       = "job_id"
	FieldCandidateID = "candidate_id"
	FieldRunID       = "run_id"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		value := strings.TrimSpace(field.Value)
		if key == "" || value == "" {
			continue
		}
		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to logger, falling back to a no-op logger when
// logger is nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// ProviderFields describes an external provider and, for AI providers, the
// model in use. Empty values are skipped.
func ProviderFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// MatchFields identifies one candidate/job evaluation inside a run.
func MatchFields(runID, jobID, candidateID string) []zap.Field {
	return StringFields(
		StringField{Key: FieldRunID, Value: runID},
		StringField{Key: FieldJobID, Value: jobID},
		StringField{Key: FieldCandidateID, Value: candidateID},
	)
}

// ForMatch returns logger enriched with MatchFields.
func ForMatch(logger *zap.Logger, runID, jobID, candidateID string) *zap.Logger {
	return WithFields(logger, MatchFields(runID, jobID, candidateID)...)
}
