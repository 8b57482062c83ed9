package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inercia/chatline/internal/appdir"
	"github.com/inercia/chatline/internal/chat"
	"github.com/inercia/chatline/internal/conversion"
	"github.com/inercia/chatline/internal/fileutil"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export SESSION_ID",
	Short: "Export a session transcript as Markdown, HTML or JSON",
	Long: `Export the full history of a session.

The transcript is written oldest message first. Without --output the file
is placed in the exports folder of the chatline data directory
(session-ID.EXT).`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "md", "Output format: md, html or json")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (\"-\" for stdout)")
}

// renderTranscript renders t in format and returns the bytes and the file
// extension.
func renderTranscript(t conversion.Transcript, format string) ([]byte, string, error) {
	switch strings.ToLower(format) {
	case "md", "markdown":
		return []byte(t.Markdown()), "md", nil
	case "html":
		return []byte(t.HTML(conversion.DefaultConverter())), "html", nil
	case "json":
		data, err := t.JSON()
		return data, "json", err
	default:
		return nil, "", fmt.Errorf("unknown export format %q (want md, html or json)", format)
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	c, err := requireConfig()
	if err != nil {
		return err
	}
	id, err := chat.ParseSessionID(args[0])
	if err != nil {
		return err
	}
	// Fail on a bad format before any request is made.
	if _, _, err := renderTranscript(conversion.Transcript{}, exportFormat); err != nil {
		return err
	}

	tokens, err := newTokenSource(c)
	if err != nil {
		return err
	}
	defer tokens.Close()

	ctx := cmd.Context()
	api := newAPIClient(c, tokens)
	sess, err := api.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if sess.ID == chat.NoSession {
		sess.ID = id
	}
	msgs, err := chat.NewHistoryLoader(api, c.Chat.PageSize).LoadAll(ctx, id)
	if err != nil {
		return err
	}

	data, ext, err := renderTranscript(conversion.Transcript{Session: sess, Messages: msgs}, exportFormat)
	if err != nil {
		return err
	}

	if exportOutput == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	path := exportOutput
	if path == "" {
		dir, err := appdir.ExportsDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create exports directory: %w", err)
		}
		path = filepath.Join(dir, fmt.Sprintf("session-%s.%s", id, ext))
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d messages to %s\n", len(msgs), path)
	return nil
}
