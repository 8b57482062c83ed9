package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/inercia/chatline/internal/logging"
	"github.com/inercia/chatline/internal/mockserver"
	"github.com/inercia/chatline/internal/shutdown"
)

var (
	mockAddr       string
	mockSecret     string
	mockUser       string
	mockReplyDelay time.Duration
	mockSeed       bool
)

var mockServerCmd = &cobra.Command{
	Use:   "mock-server",
	Short: "Run an in-memory chat backend for local development",
	Long: `Run a chat backend that speaks the same REST and WebSocket protocol as
the production service, keeping everything in memory.

With --secret set, requests need an HS256 token; one is printed at
startup for --user.`,
	Args: cobra.NoArgs,
	RunE: runMockServer,
}

func init() {
	rootCmd.AddCommand(mockServerCmd)
	mockServerCmd.Flags().StringVar(&mockAddr, "addr", "127.0.0.1:8000", "Listen address")
	mockServerCmd.Flags().StringVar(&mockSecret, "secret", "", "HS256 signing secret; empty disables authentication")
	mockServerCmd.Flags().StringVar(&mockUser, "user", "demo", "User to issue a token for and seed sessions as")
	mockServerCmd.Flags().DurationVar(&mockReplyDelay, "reply-delay", mockserver.DefaultReplyDelay, "Delay before the assistant replies")
	mockServerCmd.Flags().BoolVar(&mockSeed, "seed", true, "Create a sample session at startup")
}

func runMockServer(cmd *cobra.Command, args []string) error {
	logger := logging.Mock()
	srv := mockserver.New(mockserver.Options{
		Secret:     mockSecret,
		ReplyDelay: mockReplyDelay,
	})

	user := mockserver.AnonymousUser
	if mockSecret != "" {
		user = mockUser
		tok, err := srv.Authenticator().IssueToken(mockUser, 24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Token for %s (24h):\n%s\n", mockUser, tok)
	}
	if mockSeed {
		id := srv.SeedSession(user, "Welcome", "Hi there", "Hello! Ask me anything. Try \"/file notes.txt\" for an attachment.")
		logger.Info("Seeded session", "session_id", id, "user", user)
	}

	httpSrv := &http.Server{Addr: mockAddr, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}

	sm := shutdown.New()
	sm.AddCleanup(func(string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Close()
		_ = httpSrv.Shutdown(ctx)
	})
	sm.Start()

	fmt.Fprintf(cmd.OutOrStdout(), "Mock chat server listening on http://%s\n", mockAddr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		sm.Shutdown("listen failed")
		return fmt.Errorf("mock server: %w", err)
	}
	<-sm.Done()
	return nil
}
