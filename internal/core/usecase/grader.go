package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
	"github.com/kirillkom/filings-rag-assistant/internal/core/ports"
)

const gradeExcerptLength = 100

// DocumentGrader keeps only candidates the oracle judges relevant.
type DocumentGrader struct {
	llm      ports.LanguageModel
	logger   *slog.Logger
	observer ports.PipelineObserver
}

func NewDocumentGrader(llm ports.LanguageModel, logger *slog.Logger, observer ports.PipelineObserver) *DocumentGrader {
	return &DocumentGrader{
		llm:      llm,
		logger:   loggerOrDiscard(logger),
		observer: observer,
	}
}

// Grade returns an order-preserving subset of candidates. Failed or unparseable
// judgments drop the candidate.
func (g *DocumentGrader) Grade(ctx context.Context, query string, candidates []domain.EvidenceItem) []domain.EvidenceItem {
	relevant := make([]domain.EvidenceItem, 0, len(candidates))
	graded := make([]domain.GradeResult, 0, len(candidates))

	for _, candidate := range candidates {
		if candidate.IsError() {
			continue
		}
		result, ok := g.judge(ctx, query, candidate.Content)
		if !ok {
			continue
		}
		graded = append(graded, result)
		if strings.EqualFold(strings.TrimSpace(result.BinaryScore), "yes") {
			relevant = append(relevant, candidate)
		}
	}

	g.logger.Info("retrieval_grading",
		"query", query,
		"total_documents", len(candidates),
		"relevant_documents", len(relevant),
		"graded_results", graded,
	)
	if g.observer != nil {
		g.observer.RecordGrading(len(candidates), len(relevant))
	}
	return relevant
}

func (g *DocumentGrader) judge(ctx context.Context, query, content string) (domain.GradeResult, bool) {
	raw, err := g.llm.CompleteJSON(ctx, []domain.OracleMessage{
		domain.SystemMessage(graderInstructions),
		domain.UserMessage(buildGradePrompt(query, content)),
	}, gradeSchema)
	if err != nil {
		g.logger.Warn("grade_failed", "error", err)
		return domain.GradeResult{}, false
	}

	var reply gradeReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return domain.GradeResult{}, false
	}
	if reply.BinaryScore == "" {
		reply.BinaryScore = "no"
	}
	return domain.GradeResult{
		ContentExcerpt: excerpt(content, gradeExcerptLength),
		BinaryScore:    reply.BinaryScore,
		RelevanceScore: float64(reply.RelevanceScore),
	}, true
}
