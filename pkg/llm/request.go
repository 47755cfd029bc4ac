package llm

// ParentContext is a snapshot of a parent node's latest output.
type ParentContext struct {
	NodeID       string `json:"node_id"`
	LastResponse string `json:"last_response"`
}

// UnknownParent is used in place of parent entries that could not be resolved.
var UnknownParent = ParentContext{NodeID: "unknown", LastResponse: ""}

// ChatPayload is the request body sent to the node chat endpoint.
// The field set and names are fixed by the server contract.
type ChatPayload struct {
	NodeID              string          `json:"node_id"`
	Backend             string          `json:"backend"`
	Model               string          `json:"model"`
	SystemMessage       string          `json:"system_message"`
	ParentContexts      []ParentContext `json:"parent_contexts"`
	ConversationHistory []Message       `json:"conversation_history"`
	UserInput           string          `json:"user_input"`
	Temperature         float64         `json:"temperature"`
	MaxTokens           int             `json:"max_tokens"`
	Stream              bool            `json:"stream"`
}

// Normalize ensures list fields encode as empty JSON arrays rather than null.
func (p *ChatPayload) Normalize() {
	if p.ParentContexts == nil {
		p.ParentContexts = []ParentContext{}
	}
	if p.ConversationHistory == nil {
		p.ConversationHistory = []Message{}
	}
}

// Defaults applied by the server when a payload omits generation settings.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
)

// BuildUpstreamMessages assembles the message list sent to an upstream model:
// a system message carrying the node prompt and every parent context, the
// prior history, and finally the new user input (skipped when empty).
func BuildUpstreamMessages(systemMessage string, parents []ParentContext, history []Message, userInput string) []Message {
	contextText := ""
	for _, parent := range parents {
		contextText += "Context from parent node " + parent.NodeID + ": " + parent.LastResponse + "\n\n"
	}

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, NewTextMessage(RoleSystem, systemMessage+"\n\n"+contextText))
	messages = append(messages, history...)
	if userInput != "" {
		messages = append(messages, NewTextMessage(RoleUser, userInput))
	}
	return messages
}
