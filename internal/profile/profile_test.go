package profile

import (
	"os"
	"testing"
)

func TestProfileDefaults(t *testing.T) {
	clearEnvVars()

	profile := &Profile{}
	profile.FromEnv()

	tests := []struct {
		name     string
		expected string
		actual   string
	}{
		{"LLMProvider default", "openai", profile.LLMProvider},
		{"LLMBaseURL default", "https://api.openai.com/v1", profile.LLMBaseURL},
		{"LLMModel default", "gpt-5.2", profile.LLMModel},
		{"LLMAPIKey default", "", profile.LLMAPIKey},
		{"SearchEndpoint default", "", profile.SearchEndpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.actual != tt.expected {
				t.Errorf("%s: expected %q, got %q", tt.name, tt.expected, tt.actual)
			}
		})
	}

	if profile.LLMTimeout != 120 {
		t.Errorf("LLMTimeout: expected 120, got %d", profile.LLMTimeout)
	}
	if profile.InputPrice != 0.0000025 {
		t.Errorf("InputPrice: expected 0.0000025, got %v", profile.InputPrice)
	}
}

func TestProfileFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		envValue string
		field    func(*Profile) string
		expected string
	}{
		{
			name:     "LLM API key",
			envVar:   "PARLEY_LLM_API_KEY",
			envValue: "test-key",
			field:    func(p *Profile) string { return p.LLMAPIKey },
			expected: "test-key",
		},
		{
			name:     "LLM provider is deepseek",
			envVar:   "PARLEY_LLM_PROVIDER",
			envValue: "deepseek",
			field:    func(p *Profile) string { return p.LLMProvider },
			expected: "deepseek",
		},
		{
			name:     "search endpoint",
			envVar:   "PARLEY_SEARCH_ENDPOINT",
			envValue: "https://relay.example.com/search",
			field:    func(p *Profile) string { return p.SearchEndpoint },
			expected: "https://relay.example.com/search",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars()
			os.Setenv(tt.envVar, tt.envValue)
			defer os.Unsetenv(tt.envVar)

			profile := &Profile{}
			profile.FromEnv()

			actual := tt.field(profile)
			if actual != tt.expected {
				t.Errorf("%s: expected %q, got %q", tt.name, tt.expected, actual)
			}
		})
	}
}

func TestProviderDefaults(t *testing.T) {
	clearEnvVars()
	os.Setenv("PARLEY_LLM_PROVIDER", "deepseek")
	defer os.Unsetenv("PARLEY_LLM_PROVIDER")

	profile := &Profile{}
	profile.FromEnv()

	if profile.LLMBaseURL != "https://api.deepseek.com" {
		t.Errorf("LLMBaseURL: expected deepseek default, got %q", profile.LLMBaseURL)
	}
	if profile.LLMModel != "deepseek-chat" {
		t.Errorf("LLMModel: expected deepseek-chat, got %q", profile.LLMModel)
	}
}

func TestUnknownProviderFallsBack(t *testing.T) {
	clearEnvVars()
	os.Setenv("PARLEY_LLM_PROVIDER", "not-a-provider")
	defer os.Unsetenv("PARLEY_LLM_PROVIDER")

	profile := &Profile{}
	profile.FromEnv()

	if profile.LLMProvider != "openai" {
		t.Errorf("LLMProvider: expected fallback to openai, got %q", profile.LLMProvider)
	}
}

// clearEnvVars removes every profile-relevant environment variable.
func clearEnvVars() {
	prefix := "PARLEY_"
	suffixes := []string{
		"LLM_PROVIDER",
		"LLM_API_KEY",
		"LLM_BASE_URL",
		"LLM_MODEL",
		"LLM_TIMEOUT_SECONDS",
		"INPUT_PRICE",
		"OUTPUT_PRICE",
		"SEARCH_ENDPOINT",
		"SEARCH_API_KEY",
		"MEDIA_BASE_URL",
		"MEDIA_API_KEY",
	}

	for _, suffix := range suffixes {
		os.Unsetenv(prefix + suffix)
	}
}
