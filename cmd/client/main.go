package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/typedwire/relay/internal/client"
	"github.com/typedwire/relay/pkg/protocol"
)

func main() {
	var (
		serverAddr    string
		username      string
		transportName string
	)

	rootCmd := &cobra.Command{
		Use:           "relay-client",
		Short:         "Interactive client for the typed message relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(serverAddr, username, transportName)
		},
	}

	rootCmd.Flags().StringVarP(&serverAddr, "server", "s", "localhost:42069", "Server address")
	rootCmd.Flags().StringVarP(&username, "username", "u", "", "Name to join under (asked interactively when empty)")
	rootCmd.Flags().StringVarP(&transportName, "transport", "t", "tcp", "Transport to use: tcp or websocket")

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func run(serverAddr, username, transportName string) error {
	// Route slog output from the client internals through pterm so log
	// lines and rendered messages share one look.
	slog.SetDefault(slog.New(pterm.NewSlogHandler(&pterm.DefaultLogger)))

	tr, err := client.ParseTransport(transportName)
	if err != nil {
		return err
	}

	if username == "" {
		username, _ = pterm.DefaultInteractiveTextInput.WithDefaultText("Enter your username").Show()
		username = strings.TrimSpace(username)
		if username == "" {
			return fmt.Errorf("a username is required")
		}
	}

	c := client.New(serverAddr, username, tr)
	if err := c.Connect(); err != nil {
		return err
	}
	defer c.Disconnect()

	pterm.Success.Printfln("Connected to %s over %s", serverAddr, tr)

	if err := c.Join(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		printMessages(c.Messages())
	}()

	pterm.Info.Println("Type a message and press Enter. !help lists commands.")

	scanner := bufio.NewScanner(os.Stdin)
input:
	for scanner.Scan() {
		select {
		case <-done:
			break input
		default:
		}

		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		cmd, err := client.ParseCommand(line)
		if err != nil {
			pterm.Warning.Println(err)
			continue
		}

		switch cmd.Kind {
		case client.CmdHelp:
			pterm.Println(client.HelpText)
		case client.CmdExit:
			if err := c.Leave(); err != nil {
				pterm.Warning.Printfln("Failed to leave cleanly: %v", err)
			}
			break input
		case client.CmdRename:
			if err := c.Rename(cmd.Name); err != nil {
				pterm.Warning.Printfln("Rename failed: %v", err)
			} else {
				pterm.Info.Printfln("You are now %s", cmd.Name)
			}
		case client.CmdKick:
			if err := c.Kick(cmd.Peer); err != nil {
				pterm.Warning.Printfln("Kick failed: %v", err)
			}
		case client.CmdList:
			if err := c.ListPeers(); err != nil {
				pterm.Warning.Printfln("List failed: %v", err)
			}
		case client.CmdShutdown:
			if err := c.Shutdown(); err != nil {
				pterm.Warning.Printfln("Shutdown failed: %v", err)
			}
		default:
			if err := c.Chat(cmd.Text); err != nil {
				pterm.Warning.Printfln("Send failed: %v", err)
			}
		}
	}

	c.Disconnect()
	<-done

	pterm.Info.Println("Goodbye")
	return scanner.Err()
}

// printMessages renders everything the room pushes until the connection
// closes.
func printMessages(messages <-chan protocol.Message) {
	for msg := range messages {
		switch m := msg.(type) {
		case protocol.Relay:
			if m.Sender == protocol.ServerSender {
				pterm.Info.Println(m.Text)
			} else {
				pterm.Printfln("[%s]: %s", m.Sender, m.Text)
			}
		case protocol.PeerList:
			renderRoster(m)
		case protocol.Kicked:
			pterm.Error.Println("You were kicked from the room")
		case protocol.Shutdown:
			pterm.Warning.Println("The server is shutting down")
		}
	}
	pterm.Info.Println("Connection closed, press Enter to exit")
}

func renderRoster(list protocol.PeerList) {
	data := pterm.TableData{{"ID", "Name"}}
	for _, p := range list.Peers {
		data = append(data, []string{strconv.FormatUint(p.ID, 10), p.Name})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		pterm.Warning.Printfln("Failed to render roster: %v", err)
	}
}
