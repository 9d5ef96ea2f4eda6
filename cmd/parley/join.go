package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/germanamz/parley/cmd/parley/internal/gateway"
	"github.com/germanamz/parley/pkg/chats/role"
	"github.com/germanamz/parley/pkg/chats/turn"
)

var (
	humanStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	agentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

// runJoin connects to a gateway as a line-oriented terminal client: stdin
// lines become chat messages, incoming frames print to stdout.
func runJoin(args []string) error {
	fs := flag.NewFlagSet("join", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: parley join [flags]\n\nConnect to a running gateway as a terminal chat client.\n\nFlags:\n")
		fs.PrintDefaults()
	}

	url := fs.String("url", "ws://localhost:8080/ws", "gateway WebSocket URL")
	chat := fs.String("chat", "lobby", "chat room identifier")
	name := fs.String("name", defaultName(), "display name")
	secret := fs.String("secret", os.Getenv("PARLEY_SECRET"), "room secret (defaults to $PARLEY_SECRET)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *url+"?chat="+*chat, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	if err := wsjson.Write(ctx, conn, gateway.Frame{Type: "start", Secret: *secret}); err != nil {
		return fmt.Errorf("send start: %w", err)
	}

	// Printer: renders incoming frames until the connection drops.
	done := make(chan error, 1)
	go func() {
		for {
			var f gateway.Frame
			if err := wsjson.Read(ctx, conn, &f); err != nil {
				done <- err
				return
			}
			printFrame(f)
		}
	}()

	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			text := strings.TrimSpace(sc.Text())
			if text == "" {
				continue
			}

			if err := wsjson.Write(ctx, conn, gateway.Frame{Type: "message", Name: *name, Text: text}); err != nil {
				done <- err
				return
			}
		}
		done <- sc.Err()
	}()

	if err := <-done; err != nil && ctx.Err() == nil {
		return fmt.Errorf("connection closed: %w", err)
	}
	return nil
}

func printFrame(f gateway.Frame) {
	switch f.Type {
	case "message":
		style := humanStyle
		kind := role.Human
		if f.Role == role.Agent.String() {
			style = agentStyle
			kind = role.Agent
		}
		fmt.Printf("%s %s\n", style.Render(turn.Tag(kind, f.Speaker)+":"), f.Text)
	case "notice":
		fmt.Println(noticeStyle.Render("* " + f.Text))
	}
}

func defaultName() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "Anonymous"
}
