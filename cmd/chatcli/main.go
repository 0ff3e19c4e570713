// Command chatcli is a terminal chat against the Anasify chat proxy.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/peterh/liner"

	"github.com/anasify/dashboard/backend/internal/client"
	"github.com/anasify/dashboard/backend/internal/model/chat"
)

var (
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("141")).Bold(true)
	infoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
)

func main() {
	_ = godotenv.Load()

	defaultURL := os.Getenv("ANASIFY_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}

	baseURL := flag.String("url", defaultURL, "chat proxy base url")
	botID := flag.String("bot", "", "chatbot id; empty uses the generic /api/chat endpoint")
	greeting := flag.String("greeting", "", "greeting shown before the first message")
	timeout := flag.Duration("timeout", 60*time.Second, "client-side limit for one exchange")
	historyPath := flag.String("history", filepath.Join(os.TempDir(), "anasify_chat_history"), "input history file")
	flag.Parse()

	opts := []client.Option{}
	if *botID != "" {
		opts = append(opts, client.WithBot(*botID))
	}
	api := client.New(*baseURL, opts...)
	conv := client.NewConversation(*greeting)

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	if f, err := os.Open(*historyPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.OpenFile(*historyPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
		line.Close()
	}()

	fmt.Println(infoStyle.Render("connected to " + api.Endpoint() + "  (/reset clears, /quit exits)"))
	printAssistant(conv.Messages()[0].Content)

	for {
		input, err := line.Prompt(promptStyle.Render("you> "))
		if err != nil {
			// Ctrl+C (liner.ErrPromptAborted) 或 Ctrl+D (io.EOF) 都直接退出。
			fmt.Println()
			return
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch input {
		case "/quit", "/exit":
			return
		case "/reset":
			if err := conv.Reset(); err != nil {
				fmt.Println(warningStyle.Render(err.Error()))
				continue
			}
			fmt.Println(infoStyle.Render("[conversation reset]"))
			printAssistant(conv.Messages()[0].Content)
			continue
		}

		runExchange(conv, api, input, *timeout)
	}
}

func runExchange(conv *client.Conversation, api client.Streamer, input string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Ctrl+C 在等待回复时只取消当前交换。
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)
	go func() {
		select {
		case <-interrupt:
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Print(assistantStyle.Render("bot> "))
	err := conv.Submit(ctx, printingStreamer{inner: api}, input)
	fmt.Println()

	if err != nil {
		fmt.Println(errorStyle.Render("[" + string(conv.Status()) + "] " + err.Error()))
		return
	}
	if h := conv.Handoff(); h != nil && h.Suggested {
		fmt.Println(warningStyle.Render("[handoff suggested] a human agent can take over this conversation"))
	}
}

// printingStreamer echoes deltas to stdout as they arrive.
type printingStreamer struct {
	inner client.Streamer
}

func (p printingStreamer) Stream(ctx context.Context, messages []chat.Message, onEvent func(chat.Event)) error {
	return p.inner.Stream(ctx, messages, func(ev chat.Event) {
		if ev.Event == chat.EventDelta {
			fmt.Print(ev.Content)
		}
		onEvent(ev)
	})
}

func printAssistant(content string) {
	fmt.Println(assistantStyle.Render("bot> ") + content)
}
