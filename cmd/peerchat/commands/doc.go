// Package commands defines the peerchat CLI.
//
// Commands
//
//   - listen <ADDR:PORT>         Accept chats and announce presence on the LAN
//   - connect <ALIAS|ADDR:PORT>  Start a chat with a saved alias or an address
//   - discover                   Scan the LAN for listeners and pick one
//   - add-peer <ALIAS> <ADDR>    Save an alias
//   - list-peers                 Show saved aliases
//   - transcript list|show       Inspect recorded transcripts
//
// # Configuration
//
// Settings come from flags, PEERCHAT_* environment variables and an optional
// peerchat.yaml, in that order of precedence. The root command resolves them
// and builds the shared logger, peer store and metrics before any subcommand
// runs.
package commands
