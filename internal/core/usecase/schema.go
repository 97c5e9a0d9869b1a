package usecase

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
)

type routingReply struct {
	DataSource      string `json:"datasource" jsonschema:"enum=vectorstore,enum=metadata,enum=websearch,enum=general_response"`
	UpdatedQuery    string `json:"updated_query"`
	GeneralResponse string `json:"general_response,omitempty"`
}

type gradeReply struct {
	BinaryScore    string         `json:"binary_score" jsonschema:"enum=yes,enum=no"`
	RelevanceScore relevanceScore `json:"relevance_score"`
}

// relevanceScore accepts a number or a numeric string; anything else reads as 0.
// The score is only logged, so a bad value must not void the judgment.
type relevanceScore float64

func (s *relevanceScore) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*s = relevanceScore(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			f = 0
		}
		*s = relevanceScore(f)
	default:
		*s = 0
	}
	return nil
}

// JSONSchema keeps the advertised format numeric for the oracle.
func (relevanceScore) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "number", Minimum: json.Number("0"), Maximum: json.Number("1")}
}

type selfQueryReply struct {
	Query   string            `json:"query"`
	Filters []selfQueryFilter `json:"filters,omitempty"`
}

type selfQueryFilter struct {
	Attribute  string `json:"attribute"`
	Comparator string `json:"comparator" jsonschema:"enum=eq,enum=gt,enum=gte,enum=lt,enum=lte"`
	Value      any    `json:"value"`
}

type agentStepReply struct {
	Thought     string `json:"Thought"`
	Action      string `json:"Action"`
	ActionInput string `json:"Action Input"`
}

var (
	routingSchema   = reflectSchema(&routingReply{})
	gradeSchema     = reflectSchema(&gradeReply{})
	selfQuerySchema = reflectSchema(&selfQueryReply{})
	agentStepSchema = reflectSchema(&agentStepReply{})
)

// reflectSchema builds an inline JSON schema suitable for Ollama's format field.
func reflectSchema(v any) json.RawMessage {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	raw, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return nil
	}
	return raw
}

func loggerOrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
