package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/strayblues/gemchat/internal/chat"
	"github.com/strayblues/gemchat/internal/services"
)

const (
	defaultPort         = "8080"
	defaultGeminiModel  = "gemini-2.0-flash"
	defaultOllamaHost   = "http://localhost:11434"
	defaultMaxTokens    = 4096
	defaultSystemPrompt = "You are a helpful assistant. Keep your answers concise and format them as markdown."
	defaultGreeting     = "Hello! How can I help you today?"
)

type providerConfig interface {
	provider(systemPrompt string) (chat.Provider, error)
}

// BaseLLMConfig contains the common fields for all provider configurations.
type BaseLLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type config struct {
	Port         string         `yaml:"port"`
	SystemPrompt string         `yaml:"systemPrompt"`
	Greeting     string         `yaml:"greeting"`
	LLM          providerConfig `yaml:"llm"`
}

type geminiConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
}

type anthropicConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	MaxTokens     int    `yaml:"maxTokens"`
}

// defaultConfig is used when no config file exists: a Gemini-backed client
// listening on the default port, credentials taken from the environment.
func defaultConfig() config {
	return config{
		Port:         defaultPort,
		SystemPrompt: defaultSystemPrompt,
		Greeting:     defaultGreeting,
		LLM:          &geminiConfig{BaseLLMConfig: BaseLLMConfig{Provider: "gemini", Model: defaultGeminiModel}},
	}
}

// loadConfig reads the YAML config at path. A missing file is not an error;
// the defaults are returned instead.
func loadConfig(path string) (config, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaultConfig(), nil
		}
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	cfg := defaultConfig()
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}
	return cfg, nil
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port         string         `yaml:"port"`
		SystemPrompt string         `yaml:"systemPrompt"`
		Greeting     string         `yaml:"greeting"`
		LLM          map[string]any `yaml:"llm"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	if rawConfig.Port != "" {
		c.Port = rawConfig.Port
	}
	if rawConfig.SystemPrompt != "" {
		c.SystemPrompt = rawConfig.SystemPrompt
	}
	if rawConfig.Greeting != "" {
		c.Greeting = rawConfig.Greeting
	}
	if rawConfig.LLM == nil {
		return nil
	}

	llmProvider, ok := rawConfig.LLM["provider"].(string)
	if !ok {
		return fmt.Errorf("llm provider is required")
	}

	llmRawYAML, err := yaml.Marshal(rawConfig.LLM)
	if err != nil {
		return err
	}

	var llm providerConfig
	switch llmProvider {
	case "gemini":
		llm = &geminiConfig{}
	case "ollama":
		llm = &ollamaConfig{}
	case "openai":
		llm = &openAIConfig{}
	case "anthropic":
		llm = &anthropicConfig{}
	default:
		return fmt.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return err
	}

	c.LLM = llm

	return nil
}

func (g geminiConfig) provider(systemPrompt string) (chat.Provider, error) {
	model := g.Model
	if model == "" {
		model = defaultGeminiModel
	}

	apiKey := envFallback(g.APIKey, "GEMINI_API_KEY")

	return services.NewGemini(apiKey, model, systemPrompt), nil
}

func (o ollamaConfig) provider(systemPrompt string) (chat.Provider, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = defaultOllamaHost
	}
	return services.NewOllama(host, o.Model, systemPrompt)
}

func (o openAIConfig) provider(systemPrompt string) (chat.Provider, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	return services.NewOpenAI(envFallback(o.APIKey, "OPENAI_API_KEY"), o.Model, systemPrompt), nil
}

func (a anthropicConfig) provider(systemPrompt string) (chat.Provider, error) {
	if a.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	maxTokens := a.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	return services.NewAnthropic(envFallback(a.APIKey, "ANTHROPIC_API_KEY"), a.Model, systemPrompt, maxTokens), nil
}

// envFallback resolves a credential from config or environment. A missing
// credential is logged but never blocks startup: the first session creation
// fails instead and is surfaced into the conversation.
func envFallback(configured, envKey string) string {
	if configured != "" {
		return configured
	}
	v := os.Getenv(envKey)
	if v == "" {
		slog.Warn("API key is not configured; session creation will fail until it is provided",
			slog.String("env", envKey))
	}
	return v
}
