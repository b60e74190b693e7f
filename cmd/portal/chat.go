package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eaglesoak/portal"
	"github.com/eaglesoak/portal/core"
)

var propertyTitle string

var chatCmd = &cobra.Command{
	Use:   "chat <property-id> [question]",
	Short: "Ask the assistant about a property",
	Long: `Ask the assistant about a property. With a question the reply is
printed as it streams in; without one, questions are read from stdin line by
line until EOF.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPortal(cmd, func(ctx context.Context, p *portal.Portal) error {
			if _, err := p.Session.CurrentUser(); err != nil {
				return fmt.Errorf("chat needs a session: %w", err)
			}

			title := propertyTitle
			if title == "" {
				if property, err := p.Properties.Get(ctx, core.ID(args[0])); err == nil {
					title = property.Title
				}
			}

			chat := p.Chat.Open(core.ID(args[0]), title)
			defer chat.Close()

			out := cmd.OutOrStdout()
			if len(args) > 1 {
				return ask(ctx, out, chat, strings.Join(args[1:], " "))
			}

			fmt.Fprintln(out, chat.Messages()[0].Text)
			for _, q := range chat.Suggestions() {
				fmt.Fprintf(out, "  - %s\n", q)
			}
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				if strings.TrimSpace(scanner.Text()) == "" {
					continue
				}
				if err := ask(ctx, out, chat, scanner.Text()); err != nil && ctx.Err() != nil {
					return err
				}
			}
		})
	},
}

// ask prints the reply as it streams. A failed reply prints the apology the
// transcript holds.
func ask(ctx context.Context, out io.Writer, chat *portal.ChatSession, question string) error {
	err := chat.SendWithFragments(ctx, question, func(fragment string) {
		fmt.Fprint(out, fragment)
	})
	if err != nil && !errors.Is(err, core.ErrChatClosed) {
		msgs := chat.Messages()
		fmt.Fprint(out, msgs[len(msgs)-1].Text)
		logger.Debug("chat reply failed", zap.Error(err))
	}
	fmt.Fprintln(out)
	return err
}

func init() {
	chatCmd.Flags().StringVar(&propertyTitle, "title", "", "property title for the greeting (looked up when empty)")
}
