package types

// Config represents the uepd runtime configuration: LLM provider wiring
// plus the domain-specific options the core components read at startup.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// Model selection
	Model      string `json:"model,omitempty"`       // "anthropic/claude-sonnet-4"
	SmallModel string `json:"small_model,omitempty"` // Loaded and merged; no component reads it

	// Provider configs
	Provider map[string]ProviderConfig `json:"provider,omitempty"`

	// WorkflowCatalogue is the static set of known workflows the Workflow
	// Validator scores WORK segments against (spec.md §4.6).
	WorkflowCatalogue []WorkflowDefinition `json:"workflowCatalogue,omitempty"`

	// MaxSessionAge is the inactivity timeout, in seconds, after which a
	// session is force-ended with reason "timeout" (spec.md §3; default
	// 86400, tests use 5).
	MaxSessionAge int `json:"maxSessionAge,omitempty"`

	// MischiefEnabled gates the MISCHIEF state transition (spec.md §4.5,
	// §9 Open Question: a config option rather than a source literal).
	MischiefEnabled bool `json:"mischiefEnabled,omitempty"`
}

// WorkflowDefinition is the JSON shape of one workflow catalogue entry.
type WorkflowDefinition struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Keywords       []string `json:"keywords,omitempty"`
	StrongKeywords []string `json:"strongKeywords,omitempty"`
	Mode           string   `json:"mode,omitempty"` // "direct"|"background"
}

// ProviderConfig holds configuration for a specific provider.
// Compatible with TypeScript opencode provider configuration.
type ProviderConfig struct {
	// Direct API key (Go style)
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"` // Changed to match TS (was baseUrl)

	// Model/Endpoint ID (for providers like ARK that require endpoint specification)
	Model string `json:"model,omitempty"`

	// Nested options (TypeScript style)
	Options *ProviderOptions `json:"options,omitempty"`

	// Model filtering
	Whitelist []string `json:"whitelist,omitempty"`
	Blacklist []string `json:"blacklist,omitempty"`

	// Disable provider
	Disable bool `json:"disable,omitempty"`
}

// ProviderOptions holds nested provider options (TypeScript style).
type ProviderOptions struct {
	APIKey        string `json:"apiKey,omitempty"`
	BaseURL       string `json:"baseURL,omitempty"`
	EnterpriseURL string `json:"enterpriseUrl,omitempty"`
	Timeout       *int   `json:"timeout,omitempty"` // ms, nil = default, 0 = disabled
}

// Model represents an LLM model available from a provider.
type Model struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	ProviderID        string       `json:"providerID"`
	ContextLength     int          `json:"contextLength"`
	MaxOutputTokens   int          `json:"maxOutputTokens,omitempty"`
	SupportsTools     bool         `json:"supportsTools"`
	SupportsVision    bool         `json:"supportsVision"`
	SupportsReasoning bool         `json:"supportsReasoning,omitempty"`
	InputPrice        float64      `json:"inputPrice,omitempty"`  // per 1M tokens
	OutputPrice       float64      `json:"outputPrice,omitempty"` // per 1M tokens
	Options           ModelOptions `json:"options,omitempty"`
}

// ModelOptions contains model-specific options.
type ModelOptions struct {
	Temperature    *float64 `json:"temperature,omitempty"`
	TopP           *float64 `json:"topP,omitempty"`
	PromptCaching  bool     `json:"promptCaching,omitempty"`
	ExtendedOutput bool     `json:"extendedOutput,omitempty"`
}
