package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/uep-dev/uepd/pkg/types"
)

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/uepd/)
// 2. Project config (.uepd/)
// 3. Environment variables
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
	}

	// 1. Global config
	globalPath := GetPaths().Config
	loadConfigFile(filepath.Join(globalPath, "uepd.json"), config)
	loadConfigFile(filepath.Join(globalPath, "uepd.jsonc"), config)

	// 2. Project config
	if directory != "" {
		loadConfigFile(filepath.Join(directory, ".uepd", "uepd.json"), config)
		loadConfigFile(filepath.Join(directory, ".uepd", "uepd.jsonc"), config)
	}

	// 3. Environment variables
	applyEnvOverrides(config)

	return config, nil
}

// loadConfigFile loads a single config file.
func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	// Strip JSONC comments if needed
	data = stripJSONComments(data)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// stripJSONComments removes // and /* */ comments from JSONC.
func stripJSONComments(data []byte) []byte {
	// Remove single-line comments
	singleLine := regexp.MustCompile(`//.*$`)
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		lines[i] = singleLine.ReplaceAll(line, nil)
	}
	data = bytes.Join(lines, []byte("\n"))

	// Remove multi-line comments
	multiLine := regexp.MustCompile(`/\*[\s\S]*?\*/`)
	data = multiLine.ReplaceAll(data, nil)

	return data
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.SmallModel != "" {
		target.SmallModel = source.SmallModel
	}

	// Merge providers
	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	// Workflow catalogue entries are replaced wholesale, not merged by name:
	// a project config redefining the catalogue means the whole thing.
	if source.WorkflowCatalogue != nil {
		target.WorkflowCatalogue = source.WorkflowCatalogue
	}

	if source.MaxSessionAge != 0 {
		target.MaxSessionAge = source.MaxSessionAge
	}
	if source.MischiefEnabled {
		target.MischiefEnabled = source.MischiefEnabled
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	// Provider API keys
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"google":    "GOOGLE_API_KEY",
		"bedrock":   "AWS_ACCESS_KEY_ID",
		"ark":       "ARK_API_KEY",
	}

	for provider, envVar := range providerEnvMap {
		if apiKey := os.Getenv(envVar); apiKey != "" {
			if config.Provider == nil {
				config.Provider = make(map[string]types.ProviderConfig)
			}
			p := config.Provider[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				config.Provider[provider] = p
			}
		}
	}

	// Model override
	if model := os.Getenv("UEP_MODEL"); model != "" {
		config.Model = model
	}

	// Small model override
	if smallModel := os.Getenv("UEP_SMALL_MODEL"); smallModel != "" {
		config.SmallModel = smallModel
	}

	// Session inactivity timeout override, in seconds.
	if maxAge := os.Getenv("UEP_MAX_SESSION_AGE"); maxAge != "" {
		if v, err := strconv.Atoi(maxAge); err == nil {
			config.MaxSessionAge = v
		}
	}

	// MISCHIEF state gate.
	if mischief := os.Getenv("UEP_MISCHIEF_ENABLED"); mischief != "" {
		if v, err := strconv.ParseBool(mischief); err == nil {
			config.MischiefEnabled = v
		}
	}

	if config.MaxSessionAge == 0 {
		config.MaxSessionAge = 86400
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
