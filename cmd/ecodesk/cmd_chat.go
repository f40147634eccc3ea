package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ecodesk/internal/logging"
	"ecodesk/internal/types"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// chatCmd starts the interactive chat session
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Starts an interactive session with the EcoHarvest assistant.

Each message is triaged and routed to the right responder. Known team
members (by name) get role-aware greetings on their first message.`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted")
		cancel()
	}()

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	sessionID := uuid.New().String()
	reader := bufio.NewReader(os.Stdin)

	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("🌱 %s v%s - EcoHarvest assistant\n", cfg.Name, cfg.Version)
	fmt.Println(strings.Repeat("─", 60))
	if logging.IsDebugMode() {
		fmt.Printf("Debug logs: %s\n", cfg.Logging.Dir)
	}

	fmt.Print("Your name: ")
	name, err := reader.ReadString('\n')
	if err != nil {
		return nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Guest"
	}
	user := types.NewUserContext(name)
	logger.Info("chat session started",
		zap.String("session_id", sessionID),
		zap.String("user", user.UserName),
		zap.String("role", user.Role.String()))

	fmt.Println("\nAsk about products or support, or request a welcome message.")
	fmt.Println("Type 'quit' to exit.")

	var history types.History
	for {
		fmt.Print("\n> ")
		input, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "quit" || input == "exit" || input == "q" {
			fmt.Println("👋 Goodbye!")
			break
		}

		reply, updated, err := rt.dispatcher.HandleMessage(ctx, input, history, user)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error("message handling failed", zap.String("session_id", sessionID), zap.Error(err))
			fmt.Printf("❌ %v\n", err)
			continue
		}
		history = updated

		fmt.Println(reply)
	}

	logger.Info("chat session ended",
		zap.String("session_id", sessionID),
		zap.Int("exchanges", len(history)))
	return nil
}
