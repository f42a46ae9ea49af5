package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/baronchat/baron/internal/api"
	"github.com/baronchat/baron/internal/app"
	"github.com/baronchat/baron/internal/chat"
	"github.com/baronchat/baron/internal/config"
	"github.com/baronchat/baron/internal/log"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive REPL against the chat engine",
	Long: `Runs the full turn pipeline locally, streaming replies to the
terminal. Each invocation opens a fresh conversation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(parent context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: slog.LevelWarn})

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	key := "cli_" + uuid.NewString()
	fmt.Println("Conversation:", key)
	fmt.Println(`Type a message, "exit" to quit.`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		model := api.NewModelSource(a.Models).Model()
		for ev, err := range a.Engine.Send(ctx, model, key, line) {
			if err != nil {
				fmt.Fprintln(os.Stderr, "\nerror:", err)
				break
			}
			printEvent(ev)
		}
		fmt.Println()
	}
	return scanner.Err()
}

func printEvent(ev chat.Event) {
	switch ev.Kind {
	case chat.EventReply:
		fmt.Print(ev.Text)
	case chat.EventInfo:
		if teasers, ok := ev.Info.Teasers.([]map[string]any); ok && len(teasers) > 0 {
			fmt.Printf("\n[%d articles retrieved]\n", len(teasers))
		}
	case chat.EventAbort:
		fmt.Println("\n[turn aborted:", ev.Reason+"]")
	}
}
