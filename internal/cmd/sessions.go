package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/inercia/chatline/internal/chat"
)

var sessionsPage int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List and manage chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		tokens, err := newTokenSource(c)
		if err != nil {
			return err
		}
		defer tokens.Close()

		dir := chat.NewDirectory(newAPIClient(c, tokens), c.Chat.SessionPageSize)
		sessions, err := dir.Fetch(cmd.Context(), sessionsPage)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\n", s.ID, s.Name)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if dir.HasMore() {
			fmt.Fprintf(cmd.OutOrStdout(), "(more: --page %d)\n", dir.Page()+1)
		}
		return nil
	},
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		tokens, err := newTokenSource(c)
		if err != nil {
			return err
		}
		defer tokens.Close()

		sess, err := newAPIClient(c, tokens).CreateSession(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", sess.ID, sess.Name)
		return nil
	},
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename SESSION_ID NAME...",
	Short: "Rename a session",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		id, err := chat.ParseSessionID(args[0])
		if err != nil {
			return err
		}
		name := strings.TrimSpace(strings.Join(args[1:], " "))
		if name == "" {
			return fmt.Errorf("name must not be empty")
		}
		tokens, err := newTokenSource(c)
		if err != nil {
			return err
		}
		defer tokens.Close()

		sess, err := newAPIClient(c, tokens).RenameSession(cmd.Context(), id, name)
		if err != nil {
			return err
		}
		if sess.Name == "" {
			sess.Name = name
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, sess.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsCreateCmd, sessionsRenameCmd)
	sessionsListCmd.Flags().IntVar(&sessionsPage, "page", 1, "Page to list")
}
