package logger

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	FieldJobID          = "job_id"
	FieldCandidateID    = "candidate_id"
	FieldConversationID = "conversation_id"
	FieldChatID         = "external_chat_id"
	FieldProvider       = "provider"
	FieldModel          = "ai_model"
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
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields safely attaches the provided fields to the logger.
// A nil logger is replaced with a no-op logger.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// ConversationFields returns the identifiers that locate a conversation.
// Zero ids and empty chat ids are skipped.
func ConversationFields(jobID, candidateID, conversationID int64, chatID string) []zap.Field {
	return StringFields(
		StringField{Key: FieldJobID, Value: formatID(jobID)},
		StringField{Key: FieldCandidateID, Value: formatID(candidateID)},
		StringField{Key: FieldConversationID, Value: formatID(conversationID)},
		StringField{Key: FieldChatID, Value: chatID},
	)
}

// ProviderFields describes an external provider (channel, AI backend) and its model.
func ProviderFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithProvider attaches provider fields to the logger.
func WithProvider(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, ProviderFields(provider, model)...)
}

func formatID(id int64) string {
	if id <= 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
