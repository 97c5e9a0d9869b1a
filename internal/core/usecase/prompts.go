package usecase

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
)

const clarificationMessage = "Hmm, I couldn't find much on that. Could you clarify or ask differently?"

const routerInstructions = `You route user questions about public companies and refine them for retrieval.

Data sources:
- vectorstore: annual reports, proxy statements, executives, board members, employees, people and sales figures.
- metadata: structured company facts such as names, fiscal years and ticker symbols.
- websearch: anything neither of the above can answer.
- general_response: questions that need no retrieval at all; answer them directly.

Rules:
- Prefer vectorstore for reports, proxy statements, sales and board questions.
- Use metadata only for structured lookups like tickers.
- Use websearch only when the other sources cannot help.
- Rewrite the question using the chat history so it names the company or entity it refers to, and drop filler words.
- For general_response, put a short helpful answer in general_response and do not ask for retrieval.

Return JSON with:
- "datasource": one of "vectorstore", "metadata", "websearch", "general_response"
- "updated_query": the refined question, or the original question when there is no history
- "general_response": the direct answer, only for general_response`

const graderInstructions = "Assess the relevance"

const selfQueryInstructions = `You translate a question about company filings into a search query and metadata filters.

Filterable attributes:
- company (string): company name
- date (string): report date as MM/DD/YYYY
- year (integer): fiscal year of the report
- tic (string): stock ticker symbol
- sale (float): total sales in million dollars
- cik (integer): SEC Central Index Key
- sic (integer): Standard Industrial Classification code
- annual_report_link (string): annual report URL
- proxy_statement_link (string): proxy statement URL

Only add a filter when the question states the value explicitly. Comparators: eq, gt, gte, lt, lte.
Return JSON with "query" (the text to search for, without the filtered parts) and "filters".`

func buildRouterUserPrompt(query string, history []domain.ChatTurn) string {
	return fmt.Sprintf("Chat History: %s\n\nUser Query: %s", serializeHistory(history), query)
}

func buildGradePrompt(query, document string) string {
	return fmt.Sprintf(`You judge whether a retrieved document helps answer a question.

User Question: %s

Retrieved document:
%s

Does the document contain information useful for the question?
Return JSON with:
- "binary_score": "yes" if relevant, "no" otherwise
- "relevance_score": a number from 0 to 1, higher is more relevant`, query, document)
}

func buildAnswerPrompt(history, evidence, question string) string {
	return fmt.Sprintf(`You are a friendly assistant that knows public company filings, chatting with a user.

Chat History:
%s

Retrieved Information:
%s

User Question:
%s

Guidelines:
- Answer conversationally and directly; never say "based on the given context".
- If the information is thin, share what you know and ask the user to clarify.
- Keep continuity with the chat history.
- Pick only the most useful details.
- Use readable markdown.

Response:
`, history, evidence, question)
}

func buildAgentPrompt(query string, history []domain.ChatTurn, scratchpad []string) string {
	notes := "(no tool outputs yet)"
	if len(scratchpad) > 0 {
		notes = strings.Join(scratchpad, "\n")
	}
	return fmt.Sprintf(`Chat history: %s
User Query: %s

Pick the next action:
- "VectorStore Retriever" for annual reports, proxy statements, sales or board members.
- "Metadata Lookup" for structured company data such as tickers.
- "Web Search" when neither of the above helps.
- "Generate Simple Response" when the query lacks context or no retrieval is needed; put the reply in "Action Input".
- "Final Answer" once the tool outputs are enough; put the answer in "Action Input".

Tool outputs so far:
%s

Respond strictly in JSON:
{"Thought": "...", "Action": "VectorStore Retriever | Metadata Lookup | Web Search | Generate Simple Response | Final Answer", "Action Input": "..."}`,
		serializeHistory(history), query, notes)
}

func buildAgentRepairPrompt(raw string) string {
	return fmt.Sprintf(`Convert the following text into a JSON object with the keys "Thought", "Action" and "Action Input".
Return only JSON.
Text:
%s`, raw)
}

func serializeHistory(history []domain.ChatTurn) string {
	if len(history) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

// formatHistory renders turns as alternating User/Assistant lines.
func formatHistory(history []domain.ChatTurn) string {
	lines := make([]string, 0, len(history))
	for _, turn := range history {
		lines = append(lines, fmt.Sprintf("User: %s\nAssistant: %s", turn.User, turn.Assistant))
	}
	return strings.Join(lines, "\n")
}

// formatEvidence numbers usable items into a context block and collects link-like metadata values.
func formatEvidence(items []domain.EvidenceItem) (string, []string) {
	var b strings.Builder
	references := make([]string, 0)
	index := 0
	for _, item := range items {
		if item.IsError() {
			continue
		}
		index++
		content := item.Content
		if strings.TrimSpace(content) == "" {
			content = "No content available"
		}
		metadata := item.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		for _, key := range sortedKeys(metadata) {
			if link, ok := domain.LooksLikeURL(metadata[key]); ok {
				references = append(references, link)
			}
		}
		rendered, err := json.MarshalIndent(metadata, "", "  ")
		if err != nil {
			rendered = []byte("{}")
		}
		fmt.Fprintf(&b, "\n\n[%d] %s\nMetadata: %s", index, content, rendered)
	}
	return strings.TrimSpace(b.String()), references
}

func excerpt(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
