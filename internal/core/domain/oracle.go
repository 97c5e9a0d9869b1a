package domain

type OracleRole string

const (
	RoleSystem    OracleRole = "system"
	RoleUser      OracleRole = "user"
	RoleAssistant OracleRole = "assistant"
)

type OracleMessage struct {
	Role    OracleRole `json:"role"`
	Content string     `json:"content"`
}

func SystemMessage(content string) OracleMessage {
	return OracleMessage{Role: RoleSystem, Content: content}
}

func UserMessage(content string) OracleMessage {
	return OracleMessage{Role: RoleUser, Content: content}
}
