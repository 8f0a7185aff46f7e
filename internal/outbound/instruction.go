// ABOUTME: Closed set of outbound instructions produced by event processing
// ABOUTME: Each instruction says whether to write the socket, call REST, reconcile commands, or do nothing

package outbound

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/2389/coven-discord/internal/rest"
	"github.com/2389/coven-discord/internal/wire"
)

// ErrIncompleteRoute indicates a webhook call missing an id its route needs.
var ErrIncompleteRoute = errors.New("webhook call is missing route identifiers")

// Instruction is what a processing unit asks the dispatcher to do. The set
// is closed to the types in this package.
type Instruction interface {
	instruction()
}

// NoResponse means nothing is sent.
type NoResponse struct{}

// SocketFrame is written to the gateway socket.
type SocketFrame struct {
	Frame wire.Frame
}

// Kind selects the REST route of a WebhookCall.
type Kind int

const (
	KindInteractionCallback Kind = iota + 1
	KindFollowUp
	KindChannelMessage
	KindRegisterCommands
)

func (k Kind) String() string {
	switch k {
	case KindInteractionCallback:
		return "interaction_callback"
	case KindFollowUp:
		return "follow_up"
	case KindChannelMessage:
		return "channel_message"
	case KindRegisterCommands:
		return "register_commands"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// WebhookCall is sent over the REST side channel. Which identifiers are
// required depends on Kind.
type WebhookCall struct {
	Kind          Kind
	InteractionID string
	Token         string
	ApplicationID string
	ChannelID     string
	Body          any
}

// CommandReconciliation makes the remote command list match Desired.
type CommandReconciliation struct {
	ApplicationID string
	Desired       []wire.Command
}

func (NoResponse) instruction()            {}
func (SocketFrame) instruction()           {}
func (WebhookCall) instruction()           {}
func (CommandReconciliation) instruction() {}

// Route returns the method and path the call is sent to.
func (w WebhookCall) Route() (method, path string, err error) {
	switch w.Kind {
	case KindInteractionCallback:
		if w.InteractionID == "" || w.Token == "" {
			return "", "", fmt.Errorf("%s: %w", w.Kind, ErrIncompleteRoute)
		}
		return http.MethodPost, rest.InteractionCallbackPath(w.InteractionID, w.Token), nil
	case KindFollowUp:
		if w.ApplicationID == "" || w.Token == "" {
			return "", "", fmt.Errorf("%s: %w", w.Kind, ErrIncompleteRoute)
		}
		return http.MethodPost, rest.FollowUpPath(w.ApplicationID, w.Token), nil
	case KindChannelMessage:
		if w.ChannelID == "" {
			return "", "", fmt.Errorf("%s: %w", w.Kind, ErrIncompleteRoute)
		}
		return http.MethodPost, rest.ChannelMessagesPath(w.ChannelID), nil
	case KindRegisterCommands:
		if w.ApplicationID == "" {
			return "", "", fmt.Errorf("%s: %w", w.Kind, ErrIncompleteRoute)
		}
		return http.MethodPut, rest.CommandsPath(w.ApplicationID), nil
	default:
		return "", "", fmt.Errorf("unknown webhook kind %d", int(w.Kind))
	}
}

// Callback answers an interaction directly.
func Callback(interactionID, token string, resp *wire.InteractionResponse) WebhookCall {
	return WebhookCall{
		Kind:          KindInteractionCallback,
		InteractionID: interactionID,
		Token:         token,
		Body:          resp,
	}
}

// FollowUp posts msg after the interaction's callback was already used.
// Only the message data is sent, not the callback envelope.
func FollowUp(applicationID, token string, msg *wire.InteractionMessage) WebhookCall {
	return WebhookCall{
		Kind:          KindFollowUp,
		ApplicationID: applicationID,
		Token:         token,
		Body:          msg,
	}
}

// ChannelMessage posts msg into a channel.
func ChannelMessage(channelID string, msg *wire.ChannelMessage) WebhookCall {
	return WebhookCall{
		Kind:      KindChannelMessage,
		ChannelID: channelID,
		Body:      msg,
	}
}
