package client

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandKind says what a parsed input line asks for.
type CommandKind int

const (
	CmdChat CommandKind = iota
	CmdHelp
	CmdExit
	CmdRename
	CmdKick
	CmdList
	CmdShutdown
)

// Command is one parsed line of user input. Text, Name and Peer are
// filled depending on the kind.
type Command struct {
	Kind CommandKind
	Text string
	Name string
	Peer uint64
}

// HelpText lists the commands the prompt accepts.
const HelpText = `Available commands:
  !help            show this help
  !ids             list connected peers
  !rename <name>   change your display name
  !kick <id>       kick a peer by its id
  !shutdown        stop the server for everyone
  !exit            leave the room`

// ParseCommand turns one input line into a command. Lines that do not
// start with "!" are chat text.
func ParseCommand(line string) (Command, error) {
	if !strings.HasPrefix(line, "!") {
		return Command{Kind: CmdChat, Text: line}, nil
	}

	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "!help":
		return Command{Kind: CmdHelp}, nil
	case "!exit":
		return Command{Kind: CmdExit}, nil
	case "!ids":
		return Command{Kind: CmdList}, nil
	case "!shutdown":
		return Command{Kind: CmdShutdown}, nil
	case "!rename":
		if arg == "" {
			return Command{}, fmt.Errorf("usage: !rename <name>")
		}
		return Command{Kind: CmdRename, Name: arg}, nil
	case "!kick":
		if arg == "" {
			return Command{}, fmt.Errorf("usage: !kick <id>")
		}
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return Command{}, fmt.Errorf("invalid peer id %q", arg)
		}
		return Command{Kind: CmdKick, Peer: id}, nil
	default:
		return Command{}, fmt.Errorf("unknown command %q, try !help", name)
	}
}
