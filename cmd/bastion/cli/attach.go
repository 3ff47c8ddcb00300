package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/majorcontext/bastion/internal/store"
	"github.com/majorcontext/bastion/internal/terminal"
)

var attachUser string

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach an interactive terminal to a user's sandbox",
	Long: `Open an interactive shell on the user's sandbox. The local terminal is
put into raw mode and its dimensions are propagated to the remote shell.
Detach with Ctrl-D or by ending the remote shell.`,
	RunE: runAttach,
}

func init() {
	rootCmd.AddCommand(attachCmd)
	attachCmd.Flags().StringVar(&attachUser, "user", "", "user id")
	attachCmd.MarkFlagRequired("user")
}

func runAttach(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	rec, err := a.records.Get(ctx, attachUser)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no sandbox for user %s, run `bastion setup` first", attachUser)
	}
	if err != nil {
		return err
	}
	if rec.SandboxID == "" {
		return fmt.Errorf("sandbox not created yet")
	}

	manager := terminal.NewManager(terminal.NewWebSocketDialer(a.cfg.VMAPI.URL, a.cfg.VMAPI.APIKey))
	defer manager.Shutdown()

	sessionID, err := manager.Open(ctx, attachUser, rec.SandboxID)
	if err != nil {
		return err
	}
	defer manager.Close(sessionID)

	if err := terminal.AuthorizeSessionID(attachUser, sessionID); err != nil {
		return err
	}

	session := manager.Get(sessionID)
	if session == nil {
		return fmt.Errorf("session vanished")
	}
	transport := session.Transport()

	stdin := int(os.Stdin.Fd())
	if term.IsTerminal(stdin) {
		oldState, err := term.MakeRaw(stdin)
		if err != nil {
			return fmt.Errorf("entering raw mode: %w", err)
		}
		defer term.Restore(stdin, oldState)

		if cols, rows, err := term.GetSize(stdin); err == nil {
			manager.Resize(sessionID, cols, rows)
		}
	}

	done := make(chan error, 2)
	go func() {
		_, err := io.Copy(transport, os.Stdin)
		done <- err
	}()
	go func() {
		_, err := io.Copy(os.Stdout, transport)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("terminal stream: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
