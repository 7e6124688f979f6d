// Package server implements the chat server: connection admission, the
// per-client Session lifecycle, the Registry of connected names, routing of
// broadcast and private messages, and coordinated shutdown.
//
// Clients speak a newline-delimited text protocol over TCP, or over the
// optional WebSocket gateway where each text frame carries one line.
package server
