package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/patternforge/patternforge/internal/config"
	"github.com/patternforge/patternforge/internal/engine"
	"github.com/patternforge/patternforge/pkg/server"
)

var chatCmd = &cobra.Command{
	Use:   "chat <pattern>",
	Short: "Chat against a pattern in a persistent session",
	Long: `Opens (or resumes) a chat session bound to a pattern and reads
messages from stdin. The session history is folded into every
invocation and survives restarts; /quit ends the chat, /close also
closes the session.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, sess, err := server.BuildEngine(config.Load())
		if err != nil {
			return err
		}
		defer sess.Shutdown()

		rawInputs, _ := cmd.Flags().GetStringArray("input")
		inputs, err := parseInputFlags(rawInputs)
		if err != nil {
			return err
		}

		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID == "" {
			session, err := eng.CreateSession(args[0], overrideFromFlags(cmd))
			if err != nil {
				return err
			}
			sessionID = session.ID
			fmt.Fprintf(cmd.OutOrStdout(), "session %s\n", sessionID)
		}

		out := cmd.OutOrStdout()
		scanner := bufio.NewScanner(cmd.InOrStdin())
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

		for {
			fmt.Fprint(out, "> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			message := strings.TrimSpace(scanner.Text())
			switch message {
			case "":
				continue
			case "/quit":
				return nil
			case "/close":
				return eng.CloseSession(sessionID)
			}

			result, err := eng.Run(context.Background(), engine.RunRequest{
				PatternID: args[0],
				Inputs:    inputs,
				SessionID: sessionID,
				Message:   message,
			})
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				continue
			}

			pattern, err := eng.GetPattern(args[0])
			if err != nil {
				return err
			}
			if err := presentOutputs(cmd, pattern, result, false); err != nil {
				return err
			}
		}
	},
}

func init() {
	chatCmd.Flags().StringArrayP("input", "i", nil, "pattern input as name=value (repeatable)")
	chatCmd.Flags().StringP("session", "s", "", "resume an existing session id")
	chatCmd.Flags().StringP("model", "m", "", "override the pattern's model")
	chatCmd.Flags().Float64("temperature", -1, "override the sampling temperature")
}
