package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestDecodeAsk(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		want    AskRequest
	}{
		{"valid", `{"type":"ask-ai","id":"r1","prompt":"hi"}`, false, AskRequest{Type: MessageAsk, ID: "r1", Prompt: "hi"}},
		{"no id", `{"type":"ask-ai","prompt":"  spaced  "}`, false, AskRequest{Type: MessageAsk, Prompt: "  spaced  "}},
		{"extra fields", `{"type":"ask-ai","prompt":"x","stream":true}`, false, AskRequest{Type: MessageAsk, Prompt: "x"}},
		{"not json", `hello`, true, AskRequest{}},
		{"wrong type", `{"type":"ping","prompt":"x"}`, true, AskRequest{}},
		{"missing prompt", `{"type":"ask-ai"}`, true, AskRequest{}},
		{"empty prompt", `{"type":"ask-ai","prompt":""}`, true, AskRequest{}},
		{"numeric prompt", `{"type":"ask-ai","prompt":42}`, true, AskRequest{}},
		{"null prompt", `{"type":"ask-ai","prompt":null}`, true, AskRequest{}},
		{"array", `[1,2]`, true, AskRequest{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAsk([]byte(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMessage) {
					t.Fatalf("expected ErrInvalidMessage, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResultResponse(t *testing.T) {
	ok := Success("answer").Response("r1")
	if ok.Type != MessageResult || ok.ID != "r1" || !ok.OK || ok.Data != "answer" || ok.Error != "" {
		t.Errorf("unexpected success response: %+v", ok)
	}

	fail := Failure(NewError(KindUpstreamStatus, ProviderOpenAI, "Invalid API key")).Response("r2")
	if fail.OK || fail.Error != "Invalid API key" || fail.Data != "" {
		t.Errorf("unexpected failure response: %+v", fail)
	}

	if got := Failure(nil).Error; got != "Unknown error occurred" {
		t.Errorf("Failure(nil).Error = %q", got)
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", &Error{Kind: KindUpstreamShape, Message: "bad"})
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{wrapped, KindUpstreamShape},
		{context.DeadlineExceeded, KindTimeout},
		{fmt.Errorf("x: %w", context.Canceled), KindCanceled},
		{errors.New("dial tcp: refused"), KindTransport},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.want {
			t.Errorf("KindOf(%v) = %q, want %q", c.err, got, c.want)
		}
	}
	if !IsKind(wrapped, KindUpstreamShape) || IsKind(wrapped, KindTimeout) {
		t.Error("IsKind mismatch")
	}
}

func TestErrorMessageIsVerbatim(t *testing.T) {
	cause := errors.New("connection reset")
	e := &Error{Kind: KindTransport, Message: "Network error contacting Gemini: connection reset", Cause: cause}
	if e.Error() != "Network error contacting Gemini: connection reset" {
		t.Errorf("Error() = %q", e.Error())
	}
	if !errors.Is(e, cause) {
		t.Error("Unwrap should expose the cause")
	}
}

func TestParseProviderKind(t *testing.T) {
	for in, want := range map[string]ProviderKind{"Gemini": ProviderGemini, " ollama ": ProviderOllama, "OPENAI": ProviderOpenAI} {
		got, err := ParseProviderKind(in)
		if err != nil || got != want {
			t.Errorf("ParseProviderKind(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseProviderKind("claude"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestSettingsCredential(t *testing.T) {
	s := Settings{Provider: ProviderOpenAI, GeminiAPIKey: "g", OpenAIAPIKey: "o"}
	if s.Credential() != "o" {
		t.Errorf("got %q", s.Credential())
	}
	s.Provider = ProviderOllama
	if s.Credential() != "" {
		t.Errorf("ollama has no credential, got %q", s.Credential())
	}
}
