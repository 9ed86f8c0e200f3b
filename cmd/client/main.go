package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Amila20040220/Real-Time-Chat-Room-Application/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 || os.Args[1] == "--help" || os.Args[1] == "-h" {
		printUsage()
		if len(os.Args) < 2 {
			return fmt.Errorf("display name required")
		}
		return nil
	}
	name := os.Args[1]

	url := os.Getenv("CHAT_SERVER_URL")
	if url == "" {
		url = "ws://localhost:2024/ws"
	}

	model, err := tui.Connect(url, name)
	if err != nil {
		return err
	}

	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

func printUsage() {
	fmt.Println(`usage: client <name>

Connects to the chat relay at CHAT_SERVER_URL (default ws://localhost:2024/ws)
and logs in as <name>.

Commands in the chat prompt:
  /join <room>   join a room (history is replayed)
  /leave [room]  leave the active room, or the named one
  /quit          disconnect and exit

Anything else you type is published to the active room.`)
}
