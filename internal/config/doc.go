// Package config handles configuration loading for coven-discord.
//
// # Overview
//
// Configuration is loaded from a YAML file, or a TOML file when the path ends
// in .toml, with environment variable expansion. Every optional value has a
// default, so the smallest valid file only sets the bot token.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the --config flag
//  2. Path from COVEN_DISCORD_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/coven/discord.yaml (~/.config/coven/discord.yaml)
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	discord:
//	  bot_token: "${DISCORD_BOT_TOKEN}"
//
// Unset variables expand to an empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	gateway:
//	  write_timeout: "10s"
//	interactions:
//	  deadline: "2200ms"
//
// # Configuration Sections
//
// Discord identity and endpoints:
//
//	discord:
//	  gateway_url: ""                            # discovered via gateway/bot when empty
//	  api_base_url: "https://discord.com/api/v10"
//	  bot_token: "${DISCORD_BOT_TOKEN}"          # required
//	  application_id: "123456789"                # falls back to the id sent with Ready
//	  intents: 33280                             # GuildMessages | MessageContent
//
// Session engine:
//
//	gateway:
//	  thread_factor: 4            # concurrent processing units
//	  resume_strategy: "resume"   # resume, identify
//	  missed_ack_limit: 1         # unacked heartbeats before the socket is zombied
//	  write_timeout: "10s"
//	  close_timeout: "5s"
//	  reconnect_backoff:
//	    initial_delay: "1s"
//	    max_delay: "1m"
//	    multiplier: 2
//	    jitter: 0.2
//
// Interaction deadline race:
//
//	interactions:
//	  deadline: "2200ms"          # must stay below 3s
//	  placeholder: "Give me a second, still thinking..."
//
// Mention trigger:
//
//	bot:
//	  trigger: "ping"
//	  reply: "pong"
//
// REST side channel:
//
//	rest:
//	  timeout: "15s"
//	  requests_per_second: 40
//	  burst: 10
//
// Commands, replay window, logging and metrics:
//
//	addons:
//	  http_cat:
//	    base_url: "https://http.cat/"
//	    suffix: ".jpg"
//	dedupe:
//	  ttl: "10m"
//	  max_size: 10000
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	metrics:
//	  enabled: false
//	  addr: "127.0.0.1:9464"
//	  path: "/metrics"
//
// # Usage
//
//	cfg, err := config.Load("/etc/coven/discord.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
