package ports

import (
	"time"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
)

// PipelineObserver receives pipeline measurements for metrics export.
type PipelineObserver interface {
	ObserveStage(stage string, duration time.Duration)
	RecordRoutingOutcome(source domain.DataSource, resultCount int)
	RecordGrading(total, relevant int)
	RecordAnswer(source domain.DataSource, clarification bool)
}
