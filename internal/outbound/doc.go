// Package outbound carries out the instructions that event processing
// produces.
//
// Processing never writes to the network itself. It returns an Instruction:
// a SocketFrame for the gateway socket, a WebhookCall for the REST side
// channel, a CommandReconciliation after Ready, or NoResponse. The Dispatcher
// switches over that closed set. Socket frames go through the transport's
// single writer; webhook calls derive their route from Kind.
package outbound
