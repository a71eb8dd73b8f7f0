// Package config provides configuration loading, merging, and path management
// for the orchestrator.
//
// # Configuration Loading
//
// Load merges configuration from multiple sources in priority order:
//
//  1. Global config (~/.config/uepd/uepd.json or uepd.jsonc)
//  2. Project config (<directory>/.uepd/uepd.json or uepd.jsonc)
//  3. Environment variables
//
// # Supported Formats
//
// Both plain JSON and JSONC (JSON with // and /* */ comments) are accepted;
// comments are stripped before unmarshaling.
//
// # Configuration Merging
//
// mergeConfig overwrites scalar fields (model, small_model, maxSessionAge,
// mischiefEnabled) and merges the provider map by key. workflowCatalogue is
// replaced wholesale rather than merged entry-by-entry: a project config
// that sets it means the whole catalogue.
//
// # Path Management
//
// Paths follows the XDG Base Directory Specification:
//   - Data: ~/.local/share/uepd (XDG_DATA_HOME)
//   - Config: ~/.config/uepd (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/uepd (XDG_CACHE_HOME)
//   - State: ~/.local/state/uepd (XDG_STATE_HOME)
//
// On Windows these fall back to APPDATA.
//
// # Environment Variable Overrides
//
//   - UEP_MODEL - override the default model
//   - UEP_SMALL_MODEL - override small_model (loaded and merged; no component reads it)
//   - UEP_MAX_SESSION_AGE - override the session inactivity timeout, in seconds
//   - UEP_MISCHIEF_ENABLED - "true"/"false" to gate the MISCHIEF state
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY, AWS_ACCESS_KEY_ID,
//     ARK_API_KEY - provider credentials, applied only when the provider's
//     config does not already carry an API key
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	paths := config.GetPaths()
//	if err := paths.EnsurePaths(); err != nil {
//	    log.Fatal(err)
//	}
package config
