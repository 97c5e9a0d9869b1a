package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
	"github.com/kirillkom/filings-rag-assistant/internal/core/ports"
)

// GroundedAnswerGenerator writes the conversational answer from routed evidence.
type GroundedAnswerGenerator struct {
	llm    ports.LanguageModel
	logger *slog.Logger
}

func NewGroundedAnswerGenerator(llm ports.LanguageModel, logger *slog.Logger) *GroundedAnswerGenerator {
	return &GroundedAnswerGenerator{
		llm:    llm,
		logger: loggerOrDiscard(logger),
	}
}

func (g *GroundedAnswerGenerator) Generate(
	ctx context.Context,
	query string,
	outcome domain.RetrievalOutcome,
	sessionID string,
	history []domain.ChatTurn,
) domain.Answer {
	if outcome.Source == domain.SourceGeneralResponse {
		return domain.Answer{Query: query, Source: outcome.Source, Response: outcome.Response, References: []string{}}
	}

	evidenceBlock, references := formatEvidence(outcome.Results)
	if evidenceBlock == "" {
		return clarificationAnswer(query, outcome.Source)
	}

	prompt := buildAnswerPrompt(formatHistory(history), evidenceBlock, query)
	text, err := g.llm.Complete(ctx, []domain.OracleMessage{domain.UserMessage(prompt)})
	if err != nil || strings.TrimSpace(text) == "" {
		g.logger.Warn("answer_generation_failed", "session_id", sessionID, "query", query, "error", err)
		return clarificationAnswer(query, outcome.Source)
	}

	response := text
	if len(references) > 0 {
		response += "\n\n**References:**\n" + strings.Join(references, "\n")
	}

	g.logger.Info("final_response",
		"session_id", sessionID,
		"query", query,
		"source", outcome.Source,
		"response", response,
		"references", references,
	)
	return domain.Answer{Query: query, Source: outcome.Source, Response: response, References: references}
}

func clarificationAnswer(query string, source domain.DataSource) domain.Answer {
	return domain.Answer{Query: query, Source: source, Response: clarificationMessage, References: []string{}}
}

// IsClarification reports whether the answer is the no-evidence fallback.
func IsClarification(answer domain.Answer) bool {
	return answer.Response == clarificationMessage
}
