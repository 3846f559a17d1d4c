package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/openrufus/rufus/internal/chatapi"
	"github.com/openrufus/rufus/internal/config"
	"github.com/openrufus/rufus/internal/logger"
	"github.com/openrufus/rufus/internal/transcript"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const helpText = `commands:
  /clear    forget the conversation
  /min      minimize or restore the transcript
  /dismiss  close the error message
  /quit     exit
Ctrl-C cancels a reply in progress.`

type options struct {
	apiURL  string
	timeout time.Duration
	ws      bool
}

func newRootCommand() *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:          "rufus",
		Short:        "Chat with the Rufus shopping assistant",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.apiURL, "api-url", config.GetChatAPIURL(), "base URL of the chat backend")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", config.GetFirstByteTimeout(), "how long to wait for the first streamed byte")
	cmd.Flags().BoolVar(&opts.ws, "ws", config.GetChatTransport() == config.TransportWebSocket, "stream over a WebSocket instead of HTTP")

	return cmd
}

func newTransport(opts options) transcript.Transport {
	if opts.ws {
		return chatapi.NewWSTransport(opts.apiURL)
	}
	return chatapi.NewClient(opts.apiURL)
}

func run(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	store := transcript.NewStore(newTransport(opts),
		transcript.WithTimeout(opts.timeout),
		transcript.WithCancelHook(func(cause error) {
			log.Debug().Err(cause).Msg("Reply aborted")
		}),
	)
	view := &renderer{out: out}

	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	prompt := func() {
		if interactive {
			fmt.Fprint(out, "> ")
		}
	}

	if interactive {
		fmt.Fprintln(out, helpText)
	}

	scanner := bufio.NewScanner(in)
	prompt()
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprintln(out, helpText)
		case "/clear":
			store.ClearMessages()
			view.reset()
			fmt.Fprintln(out, "(conversation cleared)")
		case "/min":
			store.ToggleMinimize()
			if !store.IsMinimized() {
				view.reset()
			}
			view.render(store.Snapshot())
		case "/dismiss":
			store.DismissError()
		default:
			send(ctx, store, line)
			snap := store.Snapshot()
			view.render(snap)
			if snap.State == transcript.StateCancelled {
				fmt.Fprintln(out, "(reply cancelled)")
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		prompt()
	}
	return scanner.Err()
}

// send runs one turn. Ctrl-C while it runs cancels only this turn.
func send(ctx context.Context, store *transcript.Store, text string) {
	sendCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if err := store.SendMessage(sendCtx, text); err != nil {
		log.Warn().Err(err).Msg("Message not sent")
	}
}

func main() {
	logger.Setup(config.GetEnvOrDefault("LOG_LEVEL", "warn"), config.GetEnvironment())

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
