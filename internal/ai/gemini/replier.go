package gemini

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/spigell/tener-recruiter/internal/ai"
	"github.com/spigell/tener-recruiter/internal/utils"
	"go.uber.org/zap"
)

//go:embed reply_prompt.md
var replyPromptTemplate string

const (
	maxHistoryTurns = 8
	maxReplyRunes   = 700
)

// Replier answers candidate questions that the templates do not cover.
type Replier struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewReplier(generator contentGenerator, logger *zap.Logger, maxLogLength int) *Replier {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replier{generator: generator, logger: logger, maxLogLen: maxLogLength}
}

func (r *Replier) Reply(ctx context.Context, req ai.ReplyRequest) (string, error) {
	if strings.TrimSpace(req.InboundText) == "" {
		return "", errors.New("inbound text is required")
	}

	prompt := buildReplyPrompt(req)
	r.logger.Debug("gemini reply request",
		zap.String("intent", req.Intent),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, r.maxLogLen)),
	)

	raw, err := r.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return "", err
	}

	reply := strings.Trim(strings.TrimSpace(raw), "\"")
	if reply == "" {
		return "", errors.New("gemini returned an empty reply")
	}
	if utf8.RuneCountInString(reply) > maxReplyRunes {
		reply = string([]rune(reply)[:maxReplyRunes])
	}
	return reply, nil
}

func buildReplyPrompt(req ai.ReplyRequest) string {
	history := req.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	lines := make([]string, 0, len(history))
	for _, turn := range history {
		who := "Recruiter"
		if turn.Inbound {
			who = "Candidate"
		}
		lines = append(lines, who+": "+strings.Join(strings.Fields(turn.Content), " "))
	}
	historyBlock := strings.Join(lines, "\n")
	if historyBlock == "" {
		historyBlock = "(none)"
	}

	lang := req.Language
	if lang == "" {
		lang = "en"
	}

	r := strings.NewReplacer(
		"{{JOB_TITLE}}", req.JobTitle,
		"{{LANGUAGE}}", lang,
		"{{JOB_DESCRIPTION}}", strings.TrimSpace(req.JobDescription),
		"{{HISTORY}}", historyBlock,
		"{{CANDIDATE_NAME}}", req.CandidateName,
		"{{INTENT}}", req.Intent,
		"{{INBOUND}}", strings.TrimSpace(req.InboundText),
	)
	return r.Replace(replyPromptTemplate)
}
