package config

import (
	"fmt"
	"strings"
)

// Supported evaluator backends.
const (
	ProviderGroq   = "groq"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

type provider struct {
	credential string
	keyURL     string
	baseURL    string
	model      string
}

var providers = map[string]provider{
	ProviderGroq: {
		credential: "GROQ_API_KEY",
		keyURL:     "https://console.groq.com",
		baseURL:    "https://api.groq.com/openai/v1",
		model:      "llama-3.1-8b-instant",
	},
	ProviderGemini: {
		credential: "GEMINI_API_KEY",
		keyURL:     "https://makersuite.google.com/app/apikey",
		baseURL:    "https://generativelanguage.googleapis.com/v1beta/openai/",
		model:      "gemini-2.0-flash",
	},
	ProviderOpenAI: {
		credential: "OPENAI_API_KEY",
		keyURL:     "https://platform.openai.com/api-keys",
		model:      "gpt-4o-mini",
	},
	ProviderOllama: {
		baseURL: "http://localhost:11434/v1",
		model:   "llama3.1",
	},
}

// Error reports a missing or invalid startup setting together with the steps
// that fix it.
type Error struct {
	Variable    string
	Problem     string
	Remediation []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Variable, e.Problem)
}

// Guide renders the error as text suitable for a terminal.
func (e *Error) Guide() string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	for _, line := range e.Remediation {
		sb.WriteString("\n")
		sb.WriteString(line)
	}
	return sb.String()
}

// Validate checks that the selected provider exists and that its credential is set.
func (l LLM) Validate() error {
	p, ok := providers[l.Provider]
	if !ok {
		return &Error{
			Variable: "LLM_PROVIDER",
			Problem:  fmt.Sprintf("unknown provider %q", l.Provider),
			Remediation: []string{
				"Supported providers: groq, gemini, openai, ollama",
				"Add to .env file:",
				"  LLM_PROVIDER=groq",
			},
		}
	}
	if p.credential == "" || l.APIKey != "" {
		return nil
	}

	return &Error{
		Variable: p.credential,
		Problem:  fmt.Sprintf("missing credential for %s provider", l.Provider),
		Remediation: []string{
			"Get a key at: " + p.keyURL,
			"Add to .env file:",
			"  LLM_PROVIDER=" + l.Provider,
			"  " + p.credential + "=your_" + l.Provider + "_key_here",
		},
	}
}

// RequiresKey reports whether the provider authenticates with an API key.
func (l LLM) RequiresKey() bool {
	return providers[l.Provider].credential != ""
}

// ResolvedModel returns the configured model or the provider default.
func (l LLM) ResolvedModel() string {
	if l.Model != "" {
		return l.Model
	}
	return providers[l.Provider].model
}

// ResolvedBaseURL returns the configured base URL or the provider default.
// An empty result means the client library default endpoint.
func (l LLM) ResolvedBaseURL() string {
	if l.BaseURL != "" {
		return l.BaseURL
	}
	return providers[l.Provider].baseURL
}

func (l LLM) credentialVar() string {
	return providers[l.Provider].credential
}
