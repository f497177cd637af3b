// ABOUTME: Sign-in prompt and command context helpers
// ABOUTME: Shows the consent URL and opens a browser when attached to a terminal
package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"golang.org/x/term"
)

// BrowserPrompt shows the Google consent URL. When stdout is a terminal it also
// tries to open the default browser.
func BrowserPrompt(authURL string) error {
	fmt.Println("Opening browser for Google sign-in...")
	fmt.Printf("\nIf browser doesn't open, visit this URL:\n%s\n\n", authURL)

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return nil
	}

	// Try to open browser
	_ = openBrowser(authURL)
	return nil
}

// MCPPrompt is used when stdout carries the MCP protocol; the URL goes to stderr.
func MCPPrompt(authURL string) error {
	_, _ = fmt.Fprintf(os.Stderr, "Sign in to Google Calendar: %s\n", authURL)
	return openBrowser(authURL)
}

// commandContext is cancelled on Ctrl-C so a pending sign-in counts as cancelled.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openBrowser attempts to open URL in default browser
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		cmd = "xdg-open"
		args = []string{url}
	}

	command := exec.Command(cmd, args...)
	return command.Start()
}
