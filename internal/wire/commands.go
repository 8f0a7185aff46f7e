// ABOUTME: Application command descriptors and their order-insensitive structural equality
// ABOUTME: Used to decide whether the remote command registration needs to be replaced

package wire

import (
	"slices"
	"strings"
)

// OptionType is the type tag of a command option.
type OptionType int

const (
	OptionSubCommand      OptionType = 1
	OptionSubCommandGroup OptionType = 2
	OptionString          OptionType = 3
	OptionInteger         OptionType = 4
	OptionBoolean         OptionType = 5
	OptionUser            OptionType = 6
	OptionChannel         OptionType = 7
	OptionRole            OptionType = 8
	OptionMentionable     OptionType = 9
	OptionNumber          OptionType = 10
	OptionAttachment      OptionType = 11
)

// Command describes one application command as registered remotely.
type Command struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Options     []CommandOption `json:"options,omitempty"`
}

// CommandOption describes one command option, possibly with nested options.
type CommandOption struct {
	Name        string          `json:"name"`
	Type        OptionType      `json:"type"`
	Description string          `json:"description,omitempty"`
	Required    bool            `json:"required,omitempty"`
	Options     []CommandOption `json:"options,omitempty"`
}

// CommandsEqual compares two command lists by name, description and recursive
// option equality. Options also compare their type and required flag. Order
// is ignored at every level; nil and empty option lists are equal.
func CommandsEqual(a, b []Command) bool {
	if len(a) != len(b) {
		return false
	}
	as := sortedCommands(a)
	bs := sortedCommands(b)
	for i := range as {
		if as[i].Name != bs[i].Name || as[i].Description != bs[i].Description {
			return false
		}
		if !optionsEqual(as[i].Options, bs[i].Options) {
			return false
		}
	}
	return true
}

func optionsEqual(a, b []CommandOption) bool {
	if len(a) != len(b) {
		return false
	}
	as := sortedOptions(a)
	bs := sortedOptions(b)
	for i := range as {
		if as[i].Name != bs[i].Name || as[i].Description != bs[i].Description {
			return false
		}
		if as[i].Type != bs[i].Type || as[i].Required != bs[i].Required {
			return false
		}
		if !optionsEqual(as[i].Options, bs[i].Options) {
			return false
		}
	}
	return true
}

func sortedCommands(in []Command) []Command {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(x, y Command) int {
		return strings.Compare(x.Name, y.Name)
	})
	return out
}

func sortedOptions(in []CommandOption) []CommandOption {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(x, y CommandOption) int {
		return strings.Compare(x.Name, y.Name)
	})
	return out
}
