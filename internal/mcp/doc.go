// Package mcp implements a Model Context Protocol client over the
// official go-sdk, and the harvest bridge that federates a connected
// server's tools into the tool.Registry (C4) as ordinary Definitions.
//
// A server is added with AddServer, which dials it over whichever
// transport FromConfig infers from the stored MCPConfig (SSE for a
// configured URL, stdio command otherwise) and lists its tools. Once
// connected, HarvestTools converts that tool list into tool.Definitions
// whose handlers call back into the client, and replaces the server's
// prior contribution to the registry via SetMCPTools. Re-running
// HarvestTools for a server is cheap and idempotent: it always reflects
// the most recently listed tools, since MCP connections can be
// enabled or disabled between turns.
package mcp
