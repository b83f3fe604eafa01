// Package commands defines the opns CLI.
//
// Commands
//
//   - check <name>        Show whether a name is available, listed or taken
//   - connect             Connect the wallet and show its addresses
//   - buy <name>          Buy a name by card, wallet payment or marketplace
//   - resume <url>        Finish a hosted checkout from its return URL
//   - serve               Run the checkout return server with a live prompt
//   - disconnect          Disconnect the wallet
//   - migrate <dir>       Apply the postgres schema for the pending store
//
// The root command loads .env and the environment, then builds the app
// (wallet session, resolver, rates, store, orchestrator) before any
// subcommand runs.
package commands
