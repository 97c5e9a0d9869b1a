package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
	"github.com/kirillkom/filings-rag-assistant/internal/core/ports"
)

const (
	agentActionVectorStore = "vectorstore retriever"
	agentActionMetadata    = "metadata lookup"
	agentActionWebSearch   = "web search"
	agentActionSimple      = "generate simple response"
	agentActionFinal       = "final answer"

	agentToolOutputLimit = 2000
)

// AgentUseCase lets the oracle pick tools step by step instead of walking the fixed cascade.
// Runs are not persisted to the session store.
type AgentUseCase struct {
	llm       ports.LanguageModel
	retriever ports.EvidenceRetriever
	grader    ports.DocumentGrader
	metadata  ports.MetadataLookup
	web       ports.WebSearcher
	router    ports.QueryRouter
	generator ports.AnswerGenerator
	sessions  ports.SessionStore
	limits    domain.AgentLimits
	logger    *slog.Logger
	observer  AgentObserver
}

// AgentObserver receives per-run and per-tool outcomes.
type AgentObserver interface {
	RecordAgentRun(status string, iterations int)
	RecordAgentToolCall(tool, status string)
}

type AgentDeps struct {
	LLM       ports.LanguageModel
	Retriever ports.EvidenceRetriever
	Grader    ports.DocumentGrader
	Metadata  ports.MetadataLookup
	Web       ports.WebSearcher
	Router    ports.QueryRouter
	Generator ports.AnswerGenerator
	Sessions  ports.SessionStore
}

func NewAgentUseCase(deps AgentDeps, limits domain.AgentLimits, logger *slog.Logger, observer AgentObserver) *AgentUseCase {
	if limits.MaxIterations <= 0 {
		limits.MaxIterations = 4
	}
	if limits.Timeout <= 0 {
		limits.Timeout = 120 * time.Second
	}
	if limits.PlannerTimeout <= 0 {
		limits.PlannerTimeout = 30 * time.Second
	}
	if limits.ToolTimeout <= 0 {
		limits.ToolTimeout = 60 * time.Second
	}
	return &AgentUseCase{
		llm:       deps.LLM,
		retriever: deps.Retriever,
		grader:    deps.Grader,
		metadata:  deps.Metadata,
		web:       deps.Web,
		router:    deps.Router,
		generator: deps.Generator,
		sessions:  deps.Sessions,
		limits:    limits,
		logger:    loggerOrDiscard(logger),
		observer:  observer,
	}
}

func (uc *AgentUseCase) Run(ctx context.Context, query, sessionID string) (*domain.AgentRunResult, error) {
	query = strings.TrimSpace(query)
	sessionID = strings.TrimSpace(sessionID)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "agent run", fmt.Errorf("query is required"))
	}
	if sessionID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "agent run", fmt.Errorf("session_id is required"))
	}

	history, err := uc.sessions.RecentTurns(ctx, sessionID, domain.DefaultHistoryWindow)
	if err != nil {
		uc.logger.Warn("chat_history_read_failed", "session_id", sessionID, "error", err)
		history = nil
	}

	loopCtx, cancel := context.WithTimeout(ctx, uc.limits.Timeout)
	defer cancel()

	scratchpad := make([]string, 0, uc.limits.MaxIterations)
	toolEvents := make([]domain.AgentToolEvent, 0, uc.limits.MaxIterations)
	var gathered domain.RetrievalOutcome
	finalAnswer := ""
	fallbackReason := ""
	iterations := 0

	for i := 1; i <= uc.limits.MaxIterations; i++ {
		if loopCtx.Err() != nil {
			fallbackReason = "timeout"
			break
		}
		iterations = i

		step, reason := uc.plan(loopCtx, query, history, scratchpad)
		if reason != "" {
			fallbackReason = reason
			break
		}
		uc.logger.Info("agent_routing_decision",
			"session_id", sessionID,
			"query", query,
			"thought", step.Thought,
			"action", step.Action,
			"action_input", step.ActionInput,
		)

		action := normalizeAgentAction(step.Action)
		if action == agentActionSimple || action == agentActionFinal {
			finalAnswer = strings.TrimSpace(step.ActionInput)
			if finalAnswer == "" {
				fallbackReason = "empty_final_answer"
			}
			break
		}

		toolCtx, toolCancel := context.WithTimeout(loopCtx, uc.limits.ToolTimeout)
		outcome, event, execErr := uc.executeTool(toolCtx, action, step.ActionInput, query)
		toolCancel()
		if execErr != nil {
			payload, _ := json.Marshal(map[string]string{"error": execErr.Error()})
			event = domain.AgentToolEvent{Tool: step.Action, Input: step.ActionInput, Status: "error", Output: string(payload)}
		} else if len(domain.UsableEvidence(outcome.Results)) > 0 {
			gathered = outcome
		}
		toolEvents = append(toolEvents, event)
		if uc.observer != nil {
			uc.observer.RecordAgentToolCall(event.Tool, event.Status)
		}
		scratchpad = append(scratchpad, fmt.Sprintf("%s: %s", event.Tool, event.Output))
	}

	if finalAnswer == "" && fallbackReason == "" {
		fallbackReason = "max_iterations"
	}

	result := &domain.AgentRunResult{
		Query:          query,
		Iterations:     iterations,
		ToolEvents:     toolEvents,
		FallbackReason: fallbackReason,
	}
	if finalAnswer != "" {
		result.Response = finalAnswer
		result.Source = domain.SourceGeneralResponse
		if gathered.Source != "" {
			result.Source = gathered.Source
		}
	} else {
		answer := uc.fallbackAnswer(ctx, query, sessionID, history, gathered)
		result.Response = answer.Response
		result.Source = answer.Source
	}

	if uc.observer != nil {
		status := "ok"
		if fallbackReason != "" {
			status = "fallback"
		}
		uc.observer.RecordAgentRun(status, iterations)
	}
	return result, nil
}

// plan asks the oracle for the next step and repairs invalid JSON once.
func (uc *AgentUseCase) plan(ctx context.Context, query string, history []domain.ChatTurn, scratchpad []string) (agentStepReply, string) {
	plannerCtx, cancel := context.WithTimeout(ctx, uc.limits.PlannerTimeout)
	defer cancel()

	raw, err := uc.llm.CompleteJSON(plannerCtx, []domain.OracleMessage{
		domain.UserMessage(buildAgentPrompt(query, history, scratchpad)),
	}, agentStepSchema)
	if err != nil {
		if isAgentTimeoutError(err) {
			return agentStepReply{}, "timeout"
		}
		return agentStepReply{}, "planner_error"
	}

	step, err := parseAgentStep(raw)
	if err == nil {
		return step, ""
	}

	repaired, repairErr := uc.llm.CompleteJSON(plannerCtx, []domain.OracleMessage{
		domain.UserMessage(buildAgentRepairPrompt(raw)),
	}, agentStepSchema)
	if repairErr != nil {
		if isAgentTimeoutError(repairErr) {
			return agentStepReply{}, "timeout"
		}
		return agentStepReply{}, "planner_invalid_json"
	}
	step, err = parseAgentStep(repaired)
	if err != nil {
		return agentStepReply{}, "planner_invalid_json"
	}
	return step, ""
}

func (uc *AgentUseCase) executeTool(ctx context.Context, action, input, fallbackQuery string) (domain.RetrievalOutcome, domain.AgentToolEvent, error) {
	toolQuery := strings.TrimSpace(input)
	if toolQuery == "" {
		toolQuery = fallbackQuery
	}

	var outcome domain.RetrievalOutcome
	var tool string
	switch action {
	case agentActionVectorStore:
		tool = "VectorStore Retriever"
		relevant := uc.grader.Grade(ctx, toolQuery, uc.retriever.Retrieve(ctx, toolQuery))
		annual, proxy := collectReportLinks(relevant)
		outcome = domain.VectorStoreOutcome(toolQuery, relevant, annual, proxy)
	case agentActionMetadata:
		tool = "Metadata Lookup"
		outcome = domain.MetadataOutcome(toolQuery, uc.metadata.Lookup(ctx, toolQuery))
	case agentActionWebSearch:
		tool = "Web Search"
		outcome = domain.WebSearchOutcome(toolQuery, uc.web.Search(ctx, toolQuery))
	default:
		return domain.RetrievalOutcome{}, domain.AgentToolEvent{}, fmt.Errorf("unsupported action: %s", action)
	}
	if err := ctx.Err(); err != nil {
		return domain.RetrievalOutcome{}, domain.AgentToolEvent{}, err
	}

	payload, err := json.Marshal(outcome.Results)
	if err != nil {
		return domain.RetrievalOutcome{}, domain.AgentToolEvent{}, fmt.Errorf("encode tool output: %w", err)
	}
	status := "ok"
	if len(domain.UsableEvidence(outcome.Results)) == 0 {
		status = "empty"
	}
	return outcome, domain.AgentToolEvent{
		Tool:   tool,
		Input:  toolQuery,
		Status: status,
		Output: excerpt(string(payload), agentToolOutputLimit),
	}, nil
}

// fallbackAnswer answers from evidence the tools already gathered, or runs the fixed cascade.
func (uc *AgentUseCase) fallbackAnswer(ctx context.Context, query, sessionID string, history []domain.ChatTurn, gathered domain.RetrievalOutcome) domain.Answer {
	outcome := gathered
	if outcome.Source == "" {
		outcome = uc.router.Route(ctx, query, sessionID, history)
	}
	return uc.generator.Generate(ctx, query, outcome, sessionID, history)
}

func parseAgentStep(raw string) (agentStepReply, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return agentStepReply{}, fmt.Errorf("empty planner response")
	}
	var step agentStepReply
	if err := json.Unmarshal([]byte(raw), &step); err != nil {
		return agentStepReply{}, fmt.Errorf("unmarshal planner json: %w", err)
	}
	if strings.TrimSpace(step.Action) == "" {
		return agentStepReply{}, fmt.Errorf("planner step has no action")
	}
	return step, nil
}

func normalizeAgentAction(raw string) string {
	action := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(action, "vectorstore"), strings.HasPrefix(action, "vector store"):
		return agentActionVectorStore
	case strings.HasPrefix(action, "metadata"):
		return agentActionMetadata
	case strings.HasPrefix(action, "web"):
		return agentActionWebSearch
	case strings.Contains(action, "simple response"):
		return agentActionSimple
	case strings.Contains(action, "final"):
		return agentActionFinal
	default:
		return action
	}
}

func isAgentTimeoutError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
