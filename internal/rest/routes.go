// ABOUTME: REST routes for interaction callbacks, follow-ups, channel messages and commands
// ABOUTME: Typed helpers for listing and registering global application commands

package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/2389/coven-discord/internal/wire"
)

// InteractionCallbackPath is where the immediate response to an interaction goes.
func InteractionCallbackPath(interactionID, token string) string {
	return fmt.Sprintf("interactions/%s/%s/callback", url.PathEscape(interactionID), url.PathEscape(token))
}

// FollowUpPath is the webhook that accepts messages after the callback window.
func FollowUpPath(applicationID, token string) string {
	return fmt.Sprintf("webhooks/%s/%s", url.PathEscape(applicationID), url.PathEscape(token))
}

// ChannelMessagesPath posts a message into a channel.
func ChannelMessagesPath(channelID string) string {
	return fmt.Sprintf("channels/%s/messages", url.PathEscape(channelID))
}

// CommandsPath lists or replaces an application's global commands.
func CommandsPath(applicationID string) string {
	return fmt.Sprintf("applications/%s/commands", url.PathEscape(applicationID))
}

// ListCommands returns the commands currently registered for the application.
func (c *Client) ListCommands(ctx context.Context, applicationID string) ([]wire.Command, error) {
	var cmds []wire.Command
	if err := c.Do(ctx, http.MethodGet, CommandsPath(applicationID), nil, &cmds); err != nil {
		return nil, fmt.Errorf("listing commands: %w", err)
	}
	return cmds, nil
}

// RegisterCommands replaces the application's global commands with cmds.
func (c *Client) RegisterCommands(ctx context.Context, applicationID string, cmds []wire.Command) error {
	if cmds == nil {
		cmds = []wire.Command{}
	}
	if err := c.Do(ctx, http.MethodPut, CommandsPath(applicationID), cmds, nil); err != nil {
		return fmt.Errorf("registering commands: %w", err)
	}
	return nil
}

// GatewayBot discovers the socket URL to connect to.
func (c *Client) GatewayBot(ctx context.Context) (*wire.GatewayBot, error) {
	var info wire.GatewayBot
	if err := c.Do(ctx, http.MethodGet, "gateway/bot", nil, &info); err != nil {
		return nil, fmt.Errorf("fetching gateway url: %w", err)
	}
	if info.URL == "" {
		return nil, fmt.Errorf("fetching gateway url: empty url in response")
	}
	return &info, nil
}
