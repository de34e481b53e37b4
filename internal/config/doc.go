// Package config provides configuration loading, merging, and path
// management for the agent server.
//
// Load implements a three-tier priority: global config
// (~/.config/agentserver/agentserver.json[c]), project config
// (<dir>/.agentserver/agentserver.json[c]), then environment variable
// overrides (AGENTSERVER_MODEL, AGENTSERVER_SMALL_MODEL,
// AGENTSERVER_LISTEN_ADDR, AGENTSERVER_DATA_DIR, plus the standard
// provider API key variables ANTHROPIC_API_KEY/OPENAI_API_KEY/
// GOOGLE_API_KEY). JSONC files may use // and /* */ comments, stripped
// before parsing.
//
// GetPaths returns XDG Base Directory Specification paths (Data,
// Config, Cache, State), adapted to APPDATA on Windows.
package config
