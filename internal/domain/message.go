package domain

import (
	"encoding/json"
	"errors"
)

// Wire message types.
const (
	MessageAsk    = "ask-ai"
	MessageChunk  = "stream-chunk"
	MessageResult = "result"
)

// MsgInvalidFormat is returned for any inbound message the gateway cannot accept.
const MsgInvalidFormat = "Invalid message format"

// ErrInvalidMessage is returned by DecodeAsk for malformed input.
var ErrInvalidMessage = errors.New("invalid message format")

// AskRequest is the client's request to the gateway.
type AskRequest struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Prompt string `json:"prompt"`
}

// DecodeAsk parses and validates one inbound message. The prompt must be a
// non-empty JSON string; any other shape yields ErrInvalidMessage.
func DecodeAsk(raw []byte) (AskRequest, error) {
	var wire struct {
		Type   string          `json:"type"`
		ID     string          `json:"id"`
		Prompt json.RawMessage `json:"prompt"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return AskRequest{}, ErrInvalidMessage
	}
	if wire.Type != MessageAsk || len(wire.Prompt) == 0 || wire.Prompt[0] != '"' {
		return AskRequest{}, ErrInvalidMessage
	}
	var prompt string
	if err := json.Unmarshal(wire.Prompt, &prompt); err != nil || prompt == "" {
		return AskRequest{}, ErrInvalidMessage
	}
	return AskRequest{Type: MessageAsk, ID: wire.ID, Prompt: prompt}, nil
}

// Frame is any message the gateway pushes to a client.
type Frame interface {
	FrameType() string
	RequestID() string
}

// ChunkEvent carries one piece of response text while a request is in flight.
type ChunkEvent struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Chunk string `json:"chunk"`
}

// NewChunk builds a stream-chunk frame.
func NewChunk(id, chunk string) ChunkEvent {
	return ChunkEvent{Type: MessageChunk, ID: id, Chunk: chunk}
}

func (c ChunkEvent) FrameType() string { return MessageChunk }
func (c ChunkEvent) RequestID() string { return c.ID }

// Response is the single final message for a request.
type Response struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	OK    bool   `json:"ok"`
	Data  string `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func (r Response) FrameType() string { return MessageResult }
func (r Response) RequestID() string { return r.ID }

// Result is the uniform outcome of one dispatch: exactly one of Data or
// Error is meaningful, selected by OK.
type Result struct {
	OK    bool
	Data  string
	Error string
	Err   error `json:"-"`
}

// Success wraps response text.
func Success(text string) Result { return Result{OK: true, Data: text} }

// Failure wraps an error; the message is err.Error() verbatim.
func Failure(err error) Result {
	if err == nil {
		err = errors.New("Unknown error occurred")
	}
	return Result{Error: err.Error(), Err: err}
}

// Response converts the result to its wire form for request id.
func (r Result) Response(id string) Response {
	resp := Response{Type: MessageResult, ID: id, OK: r.OK}
	if r.OK {
		resp.Data = r.Data
	} else {
		resp.Error = r.Error
	}
	return resp
}

// Envelope peeks at the type and id of an outbound frame.
type Envelope struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}
