package main

import (
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/LeventeLantos/message-relay/internal/model"
)

func messagesCmd() *cobra.Command {
	var (
		limit          int
		offset         int
		conversationID string
	)

	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Print recent messages as a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			var items []model.Message
			if conversationID != "" {
				items, err = store.ListConversationMessages(ctx, conversationID, limit, offset)
			} else {
				items, err = store.ListMessages(ctx, limit, offset)
			}
			if err != nil {
				return err
			}

			renderMessages(cmd.OutOrStdout(), items)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "only messages of this conversation")
	return cmd
}

var messageHeader = []string{"ID", "Conversation", "Type", "Direction", "Status", "Timestamp", "Body", "Last Error"}

func renderMessages(w io.Writer, items []model.Message) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(messageHeader)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.AppendBulk(messageRows(items))
	table.Render()
}

func messageRows(items []model.Message) [][]string {
	return lo.Map(items, func(m model.Message, _ int) []string {
		return []string{
			m.ID,
			m.ConversationID,
			string(m.Type),
			string(m.Direction),
			string(m.Status),
			m.Timestamp.UTC().Format(time.RFC3339),
			truncate(m.Body, 40),
			lo.FromPtrOr(m.LastError, "-"),
		}
	})
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
