// Package config provides configuration loading and path management.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/agentserver/agentserver/pkg/types"
)

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/agentserver/)
// 2. Project config (.agentserver/)
// 3. Environment variables
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
		MCP:      make(map[string]types.MCPConfig),
	}

	globalPath := GetPaths().Config
	loadConfigFile(filepath.Join(globalPath, "agentserver.json"), config)
	loadConfigFile(filepath.Join(globalPath, "agentserver.jsonc"), config)

	if directory != "" {
		loadConfigFile(filepath.Join(directory, ".agentserver", "agentserver.json"), config)
		loadConfigFile(filepath.Join(directory, ".agentserver", "agentserver.jsonc"), config)
	}

	applyEnvOverrides(config)

	if config.DataDir == "" {
		config.DataDir = GetPaths().StoragePath()
	}
	if config.ListenAddr == "" {
		config.ListenAddr = "127.0.0.1:4096"
	}

	return config, nil
}

func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	data = stripJSONComments(data)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// stripJSONComments removes // and /* */ comments from JSONC. String
// literals are matched first and kept as-is, so a "//" inside a string
// (such as a URL) is not taken for a comment.
func stripJSONComments(data []byte) []byte {
	tokens := regexp.MustCompile(`"(?:[^"\\]|\\.)*"|//[^\n]*|/\*[\s\S]*?\*/`)
	return tokens.ReplaceAllFunc(data, func(m []byte) []byte {
		if bytes.HasPrefix(m, []byte(`"`)) {
			return m
		}
		return nil
	})
}

func mergeConfig(target, source *types.Config) {
	if source.ListenAddr != "" {
		target.ListenAddr = source.ListenAddr
	}
	if source.DataDir != "" {
		target.DataDir = source.DataDir
	}
	if source.DefaultModel != "" {
		target.DefaultModel = source.DefaultModel
	}
	if source.SmallModel != "" {
		target.SmallModel = source.SmallModel
	}

	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	if source.MCP != nil {
		if target.MCP == nil {
			target.MCP = make(map[string]types.MCPConfig)
		}
		for k, v := range source.MCP {
			target.MCP[k] = v
		}
	}

	if source.Permission != nil {
		target.Permission = source.Permission
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"gemini":    "GOOGLE_API_KEY",
	}

	for provider, envVar := range providerEnvMap {
		if apiKey := os.Getenv(envVar); apiKey != "" {
			if config.Provider == nil {
				config.Provider = make(map[string]types.ProviderConfig)
			}
			p := config.Provider[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				p.Enabled = true
				config.Provider[provider] = p
			}
		}
	}

	if model := os.Getenv("AGENTSERVER_MODEL"); model != "" {
		config.DefaultModel = model
	}
	if smallModel := os.Getenv("AGENTSERVER_SMALL_MODEL"); smallModel != "" {
		config.SmallModel = smallModel
	}
	if addr := os.Getenv("AGENTSERVER_LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if dir := os.Getenv("AGENTSERVER_DATA_DIR"); dir != "" {
		config.DataDir = dir
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
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
