// Package dedupe suppresses dispatches the gateway delivers more than once.
//
// A resumed session replays every dispatch after the last acknowledged
// sequence, so a message or interaction can arrive twice. Window remembers
// recently handled ids for a bounded time and count.
package dedupe
