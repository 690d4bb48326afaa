package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.Port != defaultPort {
		t.Errorf("Port = %q, want default %q", cfg.Port, defaultPort)
	}
	if cfg.Greeting != defaultGreeting {
		t.Errorf("Greeting = %q, want default", cfg.Greeting)
	}
	g, ok := cfg.LLM.(*geminiConfig)
	if !ok {
		t.Fatalf("LLM = %T, want *geminiConfig", cfg.LLM)
	}
	if g.Model != defaultGeminiModel {
		t.Errorf("Model = %q, want %q", g.Model, defaultGeminiModel)
	}
}

func TestLoadConfigPartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "port: \"9090\"\n")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.SystemPrompt != defaultSystemPrompt {
		t.Errorf("SystemPrompt = %q, want default", cfg.SystemPrompt)
	}
	if _, ok := cfg.LLM.(*geminiConfig); !ok {
		t.Errorf("LLM = %T, want default *geminiConfig", cfg.LLM)
	}
}

func TestLoadConfigProviders(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantType string
	}{
		{
			name: "Ollama",
			yaml: `llm:
  provider: ollama
  model: llama3
  host: http://localhost:11434
`,
			wantType: "*main.ollamaConfig",
		},
		{
			name: "OpenAI",
			yaml: `llm:
  provider: openai
  model: gpt-4o-mini
`,
			wantType: "*main.openAIConfig",
		},
		{
			name: "Anthropic",
			yaml: `llm:
  provider: anthropic
  model: claude-sonnet-4-5
  maxTokens: 1024
`,
			wantType: "*main.anthropicConfig",
		},
		{
			name: "Gemini",
			yaml: `llm:
  provider: gemini
  model: gemini-2.0-flash
`,
			wantType: "*main.geminiConfig",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(writeConfig(t, tt.yaml))
			if err != nil {
				t.Fatalf("loadConfig() error = %v", err)
			}

			if got := typeName(cfg.LLM); got != tt.wantType {
				t.Errorf("LLM type = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func TestLoadConfigUnknownProvider(t *testing.T) {
	path := writeConfig(t, "llm:\n  provider: mystery\n")

	if _, err := loadConfig(path); err == nil {
		t.Error("loadConfig() with unknown provider should fail")
	}
}

func TestOllamaProviderRequiresModel(t *testing.T) {
	cfg := ollamaConfig{}
	if _, err := cfg.provider("prompt"); err == nil {
		t.Error("provider() without model should fail")
	}

	cfg = ollamaConfig{
		BaseLLMConfig: BaseLLMConfig{Provider: "ollama", Model: "llama3"},
		Host:          "http://localhost:11434",
	}
	provider, err := cfg.provider("prompt")
	if err != nil {
		t.Fatalf("provider() error = %v", err)
	}
	if provider == nil {
		t.Error("provider() returned nil provider")
	}
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
