// Package commands holds the bot's application commands.
//
// Registry is both the interaction handler and the source of the command
// list reconciled after Ready.
package commands
