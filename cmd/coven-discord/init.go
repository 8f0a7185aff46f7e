// ABOUTME: Interactive config writer and command list printer for coven-discord
// ABOUTME: init asks for the bot credentials and writes a YAML config with defaults

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/coven-discord/internal/commands"
)

func runInit(in io.Reader, out io.Writer, configPath string) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(out, banner)
	fmt.Fprintln(out, "    Interactive Setup")
	fmt.Fprintln(out, "    -----------------")
	fmt.Fprintln(out)

	reader := bufio.NewReader(in)
	ask := func(prompt string) string {
		green.Fprint(out, "    ▶ ")
		fmt.Fprint(out, prompt)
		answer, _ := reader.ReadString('\n')
		return strings.TrimSpace(answer)
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		yellow.Fprintf(out, "    Config already exists at %s\n", configPath)
		if strings.ToLower(ask("Overwrite? [y/N]: ")) != "y" {
			fmt.Fprintln(out, "    Aborted.")
			return nil
		}
		fmt.Fprintln(out)
	}

	token := ask("Bot token (leave empty to read DISCORD_BOT_TOKEN): ")
	if token == "" {
		token = "${DISCORD_BOT_TOKEN}"
	}
	appID := ask("Application id (optional, taken from Ready when empty): ")
	trigger := ask("Mention trigger [ping]: ")
	if trigger == "" {
		trigger = "ping"
	}
	reply := ask("Mention reply [pong]: ")
	if reply == "" {
		reply = "pong"
	}

	if err := writeConfig(configPath, renderConfig(token, appID, trigger, reply)); err != nil {
		return err
	}

	fmt.Fprintln(out)
	green.Fprintf(out, "    ✓ Config written to %s\n", configPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "    Next steps:")
	fmt.Fprintln(out, "    1. Run: coven-discord")
	fmt.Fprintln(out)
	return nil
}

func renderConfig(token, appID, trigger, reply string) string {
	return fmt.Sprintf(`# coven-discord configuration
# Generated by coven-discord init

discord:
  bot_token: %q
  application_id: %q
  # gateway_url: "wss://gateway.discord.gg/?v=10&encoding=json"

gateway:
  thread_factor: 4
  resume_strategy: "resume"
  missed_ack_limit: 1

interactions:
  deadline: "2200ms"

bot:
  trigger: %q
  reply: %q

logging:
  level: "info"
  format: "text"

metrics:
  enabled: false
  addr: "127.0.0.1:9464"
`, token, appID, trigger, reply)
}

func writeConfig(configPath, content string) error {
	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// printCommands writes the command list registered after Ready.
func printCommands(out io.Writer) error {
	registry := commands.New(commands.HTTPCatConfig{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(registry.Desired()); err != nil {
		return fmt.Errorf("encoding commands: %w", err)
	}
	return nil
}
