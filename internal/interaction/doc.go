// Package interaction answers user-triggered interactions.
//
// The platform accepts an interaction callback only for a short window. The
// Router runs the command handler and a deadline timer side by side. If the
// handler finishes first its response becomes the callback. If the timer
// fires first a placeholder message is delivered as the callback right away,
// and the handler's message is returned as a webhook follow-up once it is
// ready.
package interaction
