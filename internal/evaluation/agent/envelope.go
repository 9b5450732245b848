package agent

import (
	"encoding/json"

	"github.com/google/uuid"
)

const (
	jsonRPCVersion = "2.0"
	methodSend     = "message/send"
)

// Part is one segment of an agent message.
type Part struct {
	Kind string      `json:"kind"`
	Text string      `json:"text,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// Message is a JSON-RPC "message/send" payload.
type Message struct {
	Kind      string `json:"kind"`
	MessageID string `json:"messageId"`
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
}

type requestParams struct {
	Message Message `json:"message"`
}

// Request is the JSON-RPC envelope sent to the test and analyzer agents.
type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  requestParams `json:"params"`
}

// NewRequest wraps an instruction and its structured payload in a user message.
func NewRequest(instruction string, data interface{}) Request {
	parts := []Part{{Kind: "text", Text: instruction}}
	if data != nil {
		parts = append(parts, Part{Kind: "data", Data: data})
	}
	return Request{
		JSONRPC: jsonRPCVersion,
		ID:      uuid.NewString(),
		Method:  methodSend,
		Params: requestParams{Message: Message{
			Kind:      "message",
			MessageID: uuid.NewString(),
			Role:      "user",
			Parts:     parts,
		}},
	}
}

type responseArtifact struct {
	Parts []Part `json:"parts"`
}

type responseResult struct {
	Artifacts []responseArtifact `json:"artifacts"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is the subset of the agent reply the parser reads.
type Response struct {
	Result *responseResult `json:"result"`
	Error  *responseError  `json:"error"`
}

func (r *Response) unmarshal(body string) error {
	return json.Unmarshal([]byte(body), r)
}
