package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"askrelay/internal/domain"
	"askrelay/internal/provider"
)

func tagsServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func doctorOptions() provider.Options {
	return provider.Options{
		Timeout: 2 * time.Second,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestCheckOllamaModel_Installed(t *testing.T) {
	srv := tagsServer(t, `{"models":[{"name":"llama3:latest"}]}`)
	s := domain.Settings{Provider: domain.ProviderOllama, OllamaEndpoint: srv.URL, OllamaModel: "llama3:latest"}
	if err := checkOllamaModel(context.Background(), s, doctorOptions()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckOllamaModel_Missing(t *testing.T) {
	srv := tagsServer(t, `{"models":[{"name":"llama3:latest"}]}`)
	s := domain.Settings{Provider: domain.ProviderOllama, OllamaEndpoint: srv.URL, OllamaModel: "mistral:7b"}
	err := checkOllamaModel(context.Background(), s, doctorOptions())
	if err == nil {
		t.Fatal("expected error for a model that is not installed")
	}
	if !strings.Contains(err.Error(), "Did you pull it? Try: ollama pull mistral:7b") {
		t.Fatalf("missing pull hint: %q", err.Error())
	}
}

func TestCheckOllamaModel_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	s := domain.Settings{Provider: domain.ProviderOllama, OllamaEndpoint: endpoint, OllamaModel: "llama3:latest"}
	if err := checkOllamaModel(context.Background(), s, doctorOptions()); err == nil {
		t.Fatal("expected error when the server is unreachable")
	}
}
