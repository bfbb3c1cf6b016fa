package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voxloop-go/voxloop/pkg/core/agent"
	"github.com/voxloop-go/voxloop/pkg/core/llm"
	"github.com/voxloop-go/voxloop/pkg/providers/gemini"
)

// newChatCmd runs a text-only REPL against the same agent the gateway uses,
// which is handy for trying tools and prompts without a websocket client.
func newChatCmd() *cobra.Command {
	var (
		model        string
		systemPrompt string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive text chat on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			client, err := newGeminiClient(cmd.Context(), model, logger)
			if err != nil {
				return err
			}

			agentCfg := agent.DefaultConfig()
			agentCfg.SystemPrompt = systemPrompt
			handler := llm.NewHandler(client, demoToolSet(logger), llm.Config{Model: model}, logger)
			a := agent.New(handler, agentCfg, logger)

			scanner := bufio.NewScanner(os.Stdin)
			fmt.Println("voxloop chat. Type a message, or /reset, or /quit.")
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				switch {
				case line == "":
					continue
				case line == "/quit":
					return nil
				case line == "/reset":
					if err := a.Reset(); err != nil {
						fmt.Fprintln(os.Stderr, err)
					}
					continue
				}

				ch, err := a.SendMessage(cmd.Context(), line)
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					continue
				}
				for chunk := range ch {
					if chunk.TextDelta != "" {
						fmt.Print(chunk.TextDelta)
					}
					if chunk.ToolResultsSummary != "" {
						fmt.Printf("\n[tools]\n%s\n", chunk.ToolResultsSummary)
					}
					if chunk.Error != "" {
						fmt.Fprintf(os.Stderr, "\nturn failed: %s\n", chunk.Error)
					}
				}
				fmt.Println()
			}
		},
	}

	cmd.Flags().StringVar(&model, "model", gemini.DefaultModel, "model identifier")
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", defaultSystemPrompt, "system prompt installed at the head of the conversation")
	return cmd
}
