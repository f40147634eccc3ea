package main

import (
	"fmt"
	"strings"

	"ecodesk/internal/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var askUser string

// askCmd handles a single message and exits
var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send a single message through the triage pipeline",
	Long: `Sends one message through the full triage pipeline and prints the reply.

Example:
  ecodesk ask "What seeds do you sell?"
  ecodesk ask --user "Alice Johnson" "Send a welcome message to Maria Lopez"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askUser, "user", "u", "Guest", "Name of the requesting user")
}

func runAsk(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	message := strings.Join(args, " ")
	user := types.NewUserContext(askUser)

	reply, _, err := rt.dispatcher.HandleMessage(cmd.Context(), message, nil, user)
	if err != nil {
		return fmt.Errorf("failed to handle message: %w", err)
	}

	logger.Info("message handled",
		zap.String("user", user.UserName),
		zap.Int("message_len", len(message)))

	fmt.Println(reply)
	return nil
}
