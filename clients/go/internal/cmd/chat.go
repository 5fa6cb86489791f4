package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eldtechnologies/chatrelay/clients/go/chat"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join the room and chat from the terminal",
	Long: `Joins the shared room. Lines typed are sent as text messages.

  /image <path>        upload an image and send it
  /to <user-id> <text> send text tagged for one participant
  /quit                leave`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	creds, err := requireCredentials()
	if err != nil {
		return err
	}

	client := newAPIClient()
	wsURL, err := client.WebSocketURL()
	if err != nil {
		return err
	}

	session := chat.NewSession(chat.Config{
		URL:               wsURL,
		Token:             creds.Token,
		Identity:          creds.User,
		ReconnectInterval: viper.GetDuration("reconnect_interval"),
		Renderer:          chat.NewTextRenderer(cmd.OutOrStdout(), client.BaseURL),
		Logger:            logger,
		OnState: func(s chat.State) {
			logger.Debug().Str("state", s.String()).Msg("connection state")
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		session.Run(ctx)
		close(done)
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			<-done
			return nil
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				stop()
				<-done
				return nil
			}
			if err := handleLine(session, client, line); err != nil {
				if errors.Is(err, chat.ErrNotConnected) {
					fmt.Fprintln(cmd.ErrOrStderr(), "not connected, message not sent")
					continue
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
			}
		}
	}
}

// messageSender is the part of a chat session the input loop drives.
type messageSender interface {
	SendText(text, targetID string) error
	SendImage(url, targetID string) error
}

// imageUploader stores a local image and returns its URL.
type imageUploader interface {
	Upload(path string) (string, error)
}

var (
	errImageUsage = errors.New("usage: /image <path>")
	errToUsage    = errors.New("usage: /to <user-id> <text>")
)

// handleLine turns one line of input into a send. Lines that are not a
// known command are sent as text, slashes included.
func handleLine(sender messageSender, uploader imageUploader, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	command, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch command {
	case "/image":
		if rest == "" {
			return errImageUsage
		}
		url, err := uploader.Upload(rest)
		if err != nil {
			return err
		}
		return sender.SendImage(url, "")

	case "/to":
		target, text, _ := strings.Cut(rest, " ")
		text = strings.TrimSpace(text)
		if target == "" || text == "" {
			return errToUsage
		}
		return sender.SendText(text, target)

	default:
		return sender.SendText(line, "")
	}
}
