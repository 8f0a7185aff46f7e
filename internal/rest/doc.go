// Package rest is the HTTP side channel of the gateway client.
//
// Everything that is not written to the socket goes through Client: the
// immediate callback for an interaction, webhook follow-ups after the callback
// window closed, plain channel messages, and global command registration.
// Requests carry the bot authorization header, pass through a token bucket,
// and fail with *DeliveryError when the API answers outside 2xx.
package rest
