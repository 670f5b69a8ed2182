// Package logging provides file-based structured logging with rotation for
// medrank. Logs are JSON lines written to ~/.medrank/logs/ so every rank
// request can be traced across its stages with jq or tail.
//
// In MCP mode stdout and stderr belong to the JSON-RPC stream, so logging
// must go to file only; see SetupMCPMode.
package logging
