package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentserver/agentserver/internal/blobstore"
	"github.com/agentserver/agentserver/internal/config"
	"github.com/agentserver/agentserver/internal/httpapi"
	"github.com/agentserver/agentserver/internal/logging"
	"github.com/agentserver/agentserver/internal/mcp"
	"github.com/agentserver/agentserver/internal/provider"
	"github.com/agentserver/agentserver/internal/sandboxfs"
	"github.com/agentserver/agentserver/internal/sessiondb"
	"github.com/agentserver/agentserver/internal/ssehub"
	"github.com/agentserver/agentserver/internal/tool"
	"github.com/agentserver/agentserver/internal/turn"
	"github.com/agentserver/agentserver/pkg/types"
)

var (
	servePort     int
	serveHostname string
	serveDir      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agentserver HTTP and SSE API",
	Long: `Start agentserver as a headless server exposing a REST and SSE API
for driving conversational turns against the configured LLM providers.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "127.0.0.1", "Hostname shown in the startup log URL (the server listens on all interfaces)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	logging.Info().Str("version", Version).Msg("starting agentserver")
	logging.Info().Str("directory", workDir).Msg("working directory")

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return fmt.Errorf("ensure paths: %w", err)
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if model := GetGlobalModel(); model != "" {
		appConfig.DefaultModel = model
	}

	dataDir := paths.Data
	if appConfig.DataDir != "" {
		dataDir = appConfig.DataDir
	}

	blobs, err := blobstore.New(filepath.Join(dataDir, "blobs"))
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	db, err := sessiondb.Open(filepath.Join(dataDir, "sessions.db"))
	if err != nil {
		return fmt.Errorf("open session database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	providers, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to initialize some providers")
	}

	sandboxRoot := filepath.Join(dataDir, "sandboxes")
	sandboxes := func(sessionID string) (*sandboxfs.FS, error) {
		return sandboxfs.New(filepath.Join(sandboxRoot, sessionID))
	}

	tools := tool.NewRegistry()
	registerBuiltinTools(tools, db, sandboxes)

	mcpClient := connectMCPServers(ctx, appConfig, tools)
	defer mcpClient.Close()

	hub := ssehub.New()
	engine := turn.New(db, blobs, providers, tools, hub)
	if appConfig.SmallModel != "" {
		engine.SetTitleModel(appConfig.SmallModel)
	}

	serverConfig := httpapi.DefaultConfig()
	serverConfig.Port = servePort

	srv, err := httpapi.New(serverConfig, db, blobs, providers, engine, hub)
	if err != nil {
		return fmt.Errorf("build http server: %w", err)
	}

	go func() {
		logging.Info().
			Str("hostname", serveHostname).
			Int("port", servePort).
			Str("url", fmt.Sprintf("http://%s:%d", serveHostname, servePort)).
			Msg("server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	logging.Info().Msg("server stopped")
	return nil
}

// registerBuiltinTools wires every built-in tool.Definition that needs
// no further configuration into the registry. generate_image and
// subagent are deliberately left unregistered: the former needs an
// ImageGenerator backed by a configured image-capable provider, and
// the latter needs a SubagentExecutor the Turn engine doesn't yet
// expose; both are narrower than this server's current provider and
// engine surface covers, so they're left as a follow-up rather than
// wired against a stub that would always fail.
func registerBuiltinTools(tools *tool.Registry, db *sessiondb.DB, sandboxes tool.SandboxProvider) {
	tools.RegisterBuiltin(tool.NewBatchTool(tools))
	tools.RegisterBuiltin(tool.NewListDirectoryTool(sandboxes))
	tools.RegisterBuiltin(tool.NewReadFileTool(sandboxes))
	tools.RegisterBuiltin(tool.NewWriteFileTool(sandboxes))
	tools.RegisterBuiltin(tool.NewGlobTool(sandboxes))
	tools.RegisterBuiltin(tool.NewGrepTool(sandboxes))
	tools.RegisterBuiltin(tool.NewWriteTodoTool())
	tools.RegisterBuiltin(tool.NewReadTodoTool())
	tools.RegisterBuiltin(tool.NewWebFetchTool())

	jobs := tool.NewJobManager()
	tools.RegisterBuiltin(tool.NewRunShellCommandTool(db, jobs, sandboxes))
	tools.RegisterBuiltin(tool.NewPollShellCommandTool(db))
	tools.RegisterBuiltin(tool.NewKillShellCommandTool(db, jobs))
}

// connectMCPServers dials every enabled MCP server named in config and
// harvests its tools into the registry. A server that fails to connect
// is logged and skipped rather than treated as fatal: the rest of the
// built-in tool surface still works without it.
func connectMCPServers(ctx context.Context, appConfig *types.Config, tools *tool.Registry) *mcp.Client {
	client := mcp.NewClient()
	for name, serverConfig := range appConfig.MCP {
		if !serverConfig.Enabled {
			continue
		}
		if err := client.AddServer(ctx, name, mcp.FromConfig(serverConfig)); err != nil {
			logging.Warn().Err(err).Str("server", name).Msg("failed to connect mcp server")
			continue
		}
		if err := mcp.HarvestTools(ctx, client, name, tools); err != nil {
			logging.Warn().Err(err).Str("server", name).Msg("failed to harvest mcp tools")
			continue
		}
		logging.Info().Str("server", name).Int("tools", len(client.Tools())).Msg("connected mcp server")
	}
	return client
}
