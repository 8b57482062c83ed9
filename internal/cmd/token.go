package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/inercia/chatline/internal/appdir"
	"github.com/inercia/chatline/internal/secrets"
	"github.com/inercia/chatline/internal/token"
)

var tokenUseFile bool

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the stored access token",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set [TOKEN]",
	Short: "Store an access token (reads stdin when TOKEN is omitted)",
	Long: `Store an access token.

The token goes to the system keychain when one is available, otherwise
(or with --file) to the token file in the chatline data directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw string
		if len(args) == 1 {
			raw = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			raw = line
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return fmt.Errorf("empty token")
		}

		toFile := tokenUseFile || !secrets.IsSupported() || (cfg != nil && !cfg.Auth.Keychain)
		where, err := storeToken(raw, toFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", where)
		if exp, ok, err := token.ExpiresAt(raw); err == nil && ok {
			fmt.Fprintf(cmd.OutOrStdout(), "Expires %s\n", exp.Local().Format(time.RFC1123))
		}
		return nil
	},
}

var tokenShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show where the access token comes from and when it expires",
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

		out := cmd.OutOrStdout()
		raw, err := tokens.AccessToken()
		if errors.Is(err, token.ErrNoToken) {
			fmt.Fprintln(out, "No access token configured.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Token: %s\n", maskToken(raw))
		exp, ok, err := token.ExpiresAt(raw)
		switch {
		case err != nil:
			fmt.Fprintln(out, "Expiry: unknown (not a JWT)")
		case !ok:
			fmt.Fprintln(out, "Expiry: none")
		case exp.Before(time.Now()):
			fmt.Fprintf(out, "Expiry: %s (expired)\n", exp.Local().Format(time.RFC1123))
		default:
			fmt.Fprintf(out, "Expiry: %s\n", exp.Local().Format(time.RFC1123))
		}
		return nil
	},
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if secrets.IsSupported() {
			if err := secrets.DeleteAccessToken(secrets.Default()); err != nil && !errors.Is(err, secrets.ErrNotFound) {
				return err
			}
		}
		path, err := appdir.TokenPath()
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove token file: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Token cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenSetCmd, tokenShowCmd, tokenClearCmd)
	tokenSetCmd.Flags().BoolVar(&tokenUseFile, "file", false, "Store in the token file even if a keychain is available")
}

// storeToken saves raw in the keychain or the token file and says where.
func storeToken(raw string, toFile bool) (string, error) {
	if !toFile {
		if err := secrets.SetAccessToken(secrets.Default(), raw); err != nil {
			return "", fmt.Errorf("failed to store token in keychain: %w", err)
		}
		return "keychain", nil
	}
	path, err := appdir.TokenPath()
	if err != nil {
		return "", err
	}
	if err := token.Save(path, raw); err != nil {
		return "", err
	}
	return path, nil
}

// maskToken keeps the first and last four characters.
func maskToken(raw string) string {
	if len(raw) <= 12 {
		return strings.Repeat("*", len(raw))
	}
	return raw[:4] + strings.Repeat("*", 8) + raw[len(raw)-4:]
}
