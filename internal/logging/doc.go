// Package logging provides structured JSON logging for vana with size-based
// file rotation. Logs go to ~/.vana/logs/ so that stdout stays clean for
// the MCP stdio transport; stderr mirroring is optional for interactive use.
package logging
