package sessiondb

import (
	"context"
	"database/sql"

	"github.com/agentserver/agentserver/internal/apierror"
	"github.com/agentserver/agentserver/pkg/types"
)

// CreateWorkspace registers a workspace with a default system prompt
// applied to sessions created under it.
func (db *DB) CreateWorkspace(ctx context.Context, id, name, defaultSystemPrompt string) error {
	return db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workspaces (id, name, default_system_prompt) VALUES (?, ?, ?)`,
			id, name, defaultSystemPrompt)
		if err != nil {
			return apierror.Wrap(apierror.KindConflict, "create workspace", err)
		}
		return nil
	})
}

// GetWorkspace fetches a workspace by id.
func (db *DB) GetWorkspace(ctx context.Context, id string) (*types.Workspace, error) {
	row := db.read.QueryRowContext(ctx, `SELECT id, name, default_system_prompt FROM workspaces WHERE id = ?`, id)
	var w types.Workspace
	if err := row.Scan(&w.ID, &w.Name, &w.DefaultSystemPrompt); err != nil {
		if isNoRows(err) {
			return nil, apierror.NotFound("workspace %q not found", id)
		}
		return nil, apierror.Wrap(apierror.KindInternal, "query workspace", err)
	}
	return &w, nil
}

// ListWorkspaces returns every registered workspace.
func (db *DB) ListWorkspaces(ctx context.Context) ([]*types.Workspace, error) {
	rows, err := db.read.QueryContext(ctx, `SELECT id, name, default_system_prompt FROM workspaces ORDER BY name`)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "list workspaces", err)
	}
	defer rows.Close()

	var out []*types.Workspace
	for rows.Next() {
		var w types.Workspace
		if err := rows.Scan(&w.ID, &w.Name, &w.DefaultSystemPrompt); err != nil {
			return nil, apierror.Wrap(apierror.KindInternal, "scan workspace", err)
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

// UpsertPrompt stores or replaces a named reusable prompt.
func (db *DB) UpsertPrompt(ctx context.Context, id, name, text string, now int64) error {
	return db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO prompts (id, name, text, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, text = excluded.text, updated_at = excluded.updated_at`,
			id, name, text, now)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "upsert prompt", err)
		}
		return nil
	})
}

// Prompt is a named, reusable system prompt.
type Prompt struct {
	ID        string
	Name      string
	Text      string
	UpdatedAt int64
}

// ListPrompts returns every stored prompt, most recently updated first.
func (db *DB) ListPrompts(ctx context.Context) ([]Prompt, error) {
	rows, err := db.read.QueryContext(ctx, `SELECT id, name, text, updated_at FROM prompts ORDER BY updated_at DESC`)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "list prompts", err)
	}
	defer rows.Close()

	var out []Prompt
	for rows.Next() {
		var p Prompt
		if err := rows.Scan(&p.ID, &p.Name, &p.Text, &p.UpdatedAt); err != nil {
			return nil, apierror.Wrap(apierror.KindInternal, "scan prompt", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertMCPConfig stores or replaces a named MCP server connection
// configuration, serialized as JSON by the caller.
func (db *DB) UpsertMCPConfig(ctx context.Context, name, configJSON string, now int64) error {
	return db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO mcp_configs (name, config_json, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET config_json = excluded.config_json, updated_at = excluded.updated_at`,
			name, configJSON, now)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "upsert mcp config", err)
		}
		return nil
	})
}

// MCPConfigSummary names one stored MCP server configuration without
// its raw JSON payload, for listing.
type MCPConfigSummary struct {
	Name      string
	UpdatedAt int64
}

// ListMCPConfigs returns the name and last-updated time of every
// stored MCP server configuration.
func (db *DB) ListMCPConfigs(ctx context.Context) ([]MCPConfigSummary, error) {
	rows, err := db.read.QueryContext(ctx, `SELECT name, updated_at FROM mcp_configs ORDER BY name`)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "list mcp configs", err)
	}
	defer rows.Close()

	var out []MCPConfigSummary
	for rows.Next() {
		var c MCPConfigSummary
		if err := rows.Scan(&c.Name, &c.UpdatedAt); err != nil {
			return nil, apierror.Wrap(apierror.KindInternal, "scan mcp config", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteMCPConfig removes a named MCP server configuration.
func (db *DB) DeleteMCPConfig(ctx context.Context, name string) error {
	return db.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM mcp_configs WHERE name = ?`, name)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "delete mcp config", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "rows affected", err)
		}
		if n == 0 {
			return apierror.NotFound("mcp config %q not found", name)
		}
		return nil
	})
}

// GetMCPConfig fetches a named MCP configuration's raw JSON.
func (db *DB) GetMCPConfig(ctx context.Context, name string) (string, error) {
	row := db.read.QueryRowContext(ctx, `SELECT config_json FROM mcp_configs WHERE name = ?`, name)
	var configJSON string
	if err := row.Scan(&configJSON); err != nil {
		if isNoRows(err) {
			return "", apierror.NotFound("mcp config %q not found", name)
		}
		return "", apierror.Wrap(apierror.KindInternal, "query mcp config", err)
	}
	return configJSON, nil
}

// UpsertCredential stores or replaces a provider account's credential
// payload (e.g. a Gemini OAuth token set), serialized as JSON by the
// caller.
func (db *DB) UpsertCredential(ctx context.Context, provider, accountID, credentialJSON string, now int64) error {
	return db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO credentials (provider, account_id, credential_json, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(provider) DO UPDATE SET account_id = excluded.account_id, credential_json = excluded.credential_json, updated_at = excluded.updated_at`,
			provider, accountID, credentialJSON, now)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "upsert credential", err)
		}
		return nil
	})
}

// GetCredential fetches a provider's stored credential payload.
func (db *DB) GetCredential(ctx context.Context, provider string) (accountID, credentialJSON string, err error) {
	row := db.read.QueryRowContext(ctx, `SELECT account_id, credential_json FROM credentials WHERE provider = ?`, provider)
	if err := row.Scan(&accountID, &credentialJSON); err != nil {
		if isNoRows(err) {
			return "", "", apierror.NotFound("credential for %q not found", provider)
		}
		return "", "", apierror.Wrap(apierror.KindInternal, "query credential", err)
	}
	return accountID, credentialJSON, nil
}
