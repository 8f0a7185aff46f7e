// Package dispatch routes named gateway dispatch events.
//
// MESSAGE_CREATE replies when the bot is the only user mentioned and the
// text after the mention is the trigger word. INTERACTION_CREATE goes to the
// interaction router. Every other event name produces no response.
package dispatch
