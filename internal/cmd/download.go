package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	downloadDir  string
	downloadName string
)

var downloadCmd = &cobra.Command{
	Use:   "download MESSAGE_ID",
	Short: "Download the file attached to a message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid message id %q", args[0])
		}
		dir := downloadDir
		if dir == "" {
			if dir, err = os.Getwd(); err != nil {
				return err
			}
		}

		tokens, err := newTokenSource(c)
		if err != nil {
			return err
		}
		defer tokens.Close()

		path, err := saveDownload(cmd.Context(), newAPIClient(c, tokens), id, downloadName, dir)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringVarP(&downloadDir, "dir", "d", "", "Directory to save into (default: current directory)")
	downloadCmd.Flags().StringVar(&downloadName, "name", "", "File name to use when the server does not send one")
}
