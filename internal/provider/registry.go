package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"fateloom/internal/logging"
)

// Factory constructs one provider variant from a resolved config.
type Factory func(cfg Config) (Provider, error)

// Preset names a vendor endpoint served by one of the variants.
type Preset struct {
	Name         string   `json:"name"`
	DisplayName  string   `json:"display_name"`
	Variant      string   `json:"variant"`
	BaseURL      string   `json:"base_url,omitempty"`
	DefaultModel string   `json:"default_model"`
	Models       []string `json:"models"`
	KeyPrefix    string   `json:"key_prefix,omitempty"`
}

// Detection is the outcome of credential-shape inspection.
type Detection struct {
	Preset     string
	Credential string // credential to hand to the provider, possibly cleared
	Model      string // model implied by the credential, if any
}

// Rule maps a credential shape to a preset. Rules are evaluated in order
// and the first match wins.
type Rule struct {
	Preset string
	Match  func(credential string) bool
	// Adjust optionally rewrites the detection (e.g. to pull a model out of the credential).
	Adjust func(credential string, d *Detection)
}

// PrefixRule matches credentials starting with prefix.
func PrefixRule(prefix, preset string) Rule {
	return Rule{
		Preset: preset,
		Match:  func(c string) bool { return strings.HasPrefix(c, prefix) },
	}
}

// Overrides are explicit selections that beat credential detection.
type Overrides struct {
	Provider string // "" or "auto" means detect
	Model    string
	BaseURL  string
}

// Registry holds variant factories, vendor presets and detection rules.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	presets   map[string]Preset
	rules     []Rule
	fallback  string
	defaults  Config
}

// DefaultPresets mirrors the vendors fateloom ships with.
func DefaultPresets() []Preset {
	return []Preset{
		{Name: "gemini", DisplayName: "Google Gemini", Variant: "gemini", DefaultModel: "gemini-2.0-flash",
			Models: []string{"gemini-2.0-flash", "gemini-1.5-pro", "gemini-1.5-flash"}, KeyPrefix: "AIza"},
		{Name: "gemini-sdk", DisplayName: "Google Gemini (SDK)", Variant: "gemini-sdk", DefaultModel: "gemini-2.0-flash",
			Models: []string{"gemini-2.0-flash", "gemini-1.5-pro", "gemini-1.5-flash"}, KeyPrefix: "AIza"},
		{Name: "openai", DisplayName: "OpenAI", Variant: "openai", BaseURL: "https://api.openai.com/v1", DefaultModel: "gpt-4o",
			Models: []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo"}, KeyPrefix: "sk-"},
		{Name: "anthropic", DisplayName: "Anthropic Claude", Variant: "anthropic", BaseURL: "https://api.anthropic.com/v1", DefaultModel: "claude-3-5-sonnet-20241022",
			Models: []string{"claude-3-5-sonnet-20241022", "claude-3-opus-20240229", "claude-3-haiku-20240307"}, KeyPrefix: "sk-ant-"},
		{Name: "deepseek", DisplayName: "DeepSeek", Variant: "openai", BaseURL: "https://api.deepseek.com/v1", DefaultModel: "deepseek-chat",
			Models: []string{"deepseek-chat", "deepseek-coder"}, KeyPrefix: "sk-"},
		{Name: "groq", DisplayName: "Groq", Variant: "openai", BaseURL: "https://api.groq.com/openai/v1", DefaultModel: "llama-3.3-70b-versatile",
			Models: []string{"llama-3.3-70b-versatile", "mixtral-8x7b-32768"}, KeyPrefix: "gsk_"},
		{Name: "openrouter", DisplayName: "OpenRouter", Variant: "openai", BaseURL: "https://openrouter.ai/api/v1", DefaultModel: "anthropic/claude-3.5-sonnet",
			Models: []string{"anthropic/claude-3.5-sonnet", "openai/gpt-4o", "google/gemini-pro-1.5"}, KeyPrefix: "sk-or-"},
		{Name: "ollama", DisplayName: "Ollama (local)", Variant: "ollama", BaseURL: "http://localhost:11434", DefaultModel: "llama3.2",
			Models: []string{"llama3.2", "mistral", "codellama"}},
	}
}

// DefaultRules is the ordered credential-shape table. More specific
// prefixes come first because "sk-" also matches "sk-ant-" and "sk-or-".
func DefaultRules() []Rule {
	return []Rule{
		PrefixRule("sk-ant-", "anthropic"),
		PrefixRule("sk-or-", "openrouter"),
		PrefixRule("gsk_", "groq"),
		PrefixRule("sk-", "openai"),
		{
			Preset: "ollama",
			Match:  func(c string) bool { return c == "ollama" || strings.HasPrefix(c, "ollama:") },
			Adjust: func(c string, d *Detection) {
				if _, model, ok := strings.Cut(c, ":"); ok {
					d.Model = model
				}
				d.Credential = ""
			},
		},
	}
}

// NewRegistry returns a registry with every built-in variant, preset and rule.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		presets:   make(map[string]Preset),
		fallback:  "gemini",
	}
	r.Register("gemini", func(cfg Config) (Provider, error) { return NewGemini(cfg), nil })
	r.Register("openai", func(cfg Config) (Provider, error) { return NewOpenAI(cfg), nil })
	r.Register("anthropic", func(cfg Config) (Provider, error) { return NewAnthropic(cfg), nil })
	r.Register("ollama", func(cfg Config) (Provider, error) { return NewOllama(cfg), nil })
	r.Register("gemini-sdk", func(cfg Config) (Provider, error) { return NewGenAI(cfg) })

	for _, p := range DefaultPresets() {
		r.RegisterPreset(p)
	}
	r.rules = DefaultRules()
	return r
}

// Register adds or replaces a variant factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// RegisterPreset adds or replaces a vendor preset.
func (r *Registry) RegisterPreset(p Preset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presets[p.Name] = p
}

// AddRule appends a detection rule after the existing ones.
func (r *Registry) AddRule(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
}

// SetDefaults sets the timeout, sampling defaults and HTTP client applied
// to every provider this registry constructs.
func (r *Registry) SetDefaults(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = cfg
}

// Names returns every selectable provider name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	for name := range r.factories {
		seen[name] = true
	}
	for name := range r.presets {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Presets returns all presets sorted by name.
func (r *Registry) Presets() []Preset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Preset, 0, len(r.presets))
	for _, p := range r.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Preset looks up one preset.
func (r *Registry) Preset(name string) (Preset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.presets[name]
	return p, ok
}

// Detect inspects the credential's literal shape. It never performs I/O.
func (r *Registry) Detect(credential string) Detection {
	credential = strings.TrimSpace(credential)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.rules {
		if !rule.Match(credential) {
			continue
		}
		d := Detection{Preset: rule.Preset, Credential: credential}
		if rule.Adjust != nil {
			rule.Adjust(credential, &d)
		}
		return d
	}
	return Detection{Preset: r.fallback, Credential: credential}
}

// New constructs the named provider (preset or bare variant) with cfg
// layered over the preset and the registry defaults.
func (r *Registry) New(name string, cfg Config) (Provider, error) {
	r.mu.RLock()
	defaults := r.defaults
	preset, hasPreset := r.presets[name]
	variant := name
	if hasPreset {
		variant = preset.Variant
	}
	factory, ok := r.factories[variant]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}

	resolved := defaults
	resolved.Name = name
	resolved.Credential = cfg.Credential
	if hasPreset {
		resolved.DisplayName = preset.DisplayName
		resolved.BaseURL = preset.BaseURL
		resolved.Model = preset.DefaultModel
	}
	if cfg.DisplayName != "" {
		resolved.DisplayName = cfg.DisplayName
	}
	if cfg.BaseURL != "" {
		resolved.BaseURL = cfg.BaseURL
	}
	if cfg.Model != "" {
		resolved.Model = cfg.Model
	}
	if cfg.Timeout > 0 {
		resolved.Timeout = cfg.Timeout
	}
	if cfg.Temperature > 0 {
		resolved.Temperature = cfg.Temperature
	}
	if cfg.MaxOutputTokens > 0 {
		resolved.MaxOutputTokens = cfg.MaxOutputTokens
	}
	if cfg.HTTPClient != nil {
		resolved.HTTPClient = cfg.HTTPClient
	}

	return factory(resolved)
}

// SelectByCredentialShape picks and constructs a provider. An explicit
// provider beats detection; an explicit base URL with no provider means an
// OpenAI-compatible endpoint; explicit model and base URL beat the preset.
func (r *Registry) SelectByCredentialShape(credential string, ov Overrides) (Provider, error) {
	detected := r.Detect(credential)

	name := strings.TrimSpace(ov.Provider)
	switch {
	case name != "" && name != "auto":
		// explicit
	case ov.BaseURL != "":
		name = "openai"
	default:
		name = detected.Preset
	}

	cfg := Config{Credential: strings.TrimSpace(credential), Model: ov.Model, BaseURL: ov.BaseURL}
	if detected.Preset == name {
		cfg.Credential = detected.Credential
		if cfg.Model == "" {
			cfg.Model = detected.Model
		}
	}

	logging.Provider("selected provider %s (detected=%s model_override=%q base_url_override=%q)", name, detected.Preset, ov.Model, ov.BaseURL)
	return r.New(name, cfg)
}
