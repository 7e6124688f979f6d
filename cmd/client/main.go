// The client command is the interactive chat client. It asks for the server
// address and a display name, then relays typed lines until the user quits.
// If the connection drops it offers to reconnect.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Tyrowin/linechat/internal/client"
	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/protocol"
)

func main() {
	if err := app().Run(os.Args); err != nil {
		fmt.Printf("chat-client error: %v\n", err)
		os.Exit(1)
	}
}

func app() *cli.App {
	app := cli.NewApp()
	app.Name = "chat-client"
	app.Usage = "connect to a line-oriented chat server"
	app.Flags = []cli.Flag{
		&cli.IntFlag{
			Name:    "retries",
			Usage:   "Reconnect attempts after the connection drops",
			EnvVars: []string{"CHAT_CLIENT_RETRIES"},
			Value:   client.DefaultMaxAttempts,
		},
		&cli.DurationFlag{
			Name:    "retry-delay",
			Usage:   "Wait between reconnect attempts",
			EnvVars: []string{"CHAT_CLIENT_RETRY_DELAY"},
			Value:   client.DefaultRetryDelay,
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Diagnostic log level (debug, info, warn, error)",
			EnvVars: []string{"CHAT_CLIENT_LOG_LEVEL"},
			Value:   "error",
		},
	}
	app.Action = run
	return app
}

func run(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logCfg := config.Default()
	logCfg.Logging.Level = c.String("log-level")
	logger, err := config.NewLogger(logCfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	out := client.NewConsole(os.Stdout)
	in := client.NewInput(os.Stdin)
	prompter := client.NewPrompter(in, out, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(os.Getpid()))))

	out.Banner("Welcome to the Chat App")

	var name string
	for {
		host, err := prompter.Host(ctx, protocol.DefaultHost)
		if err != nil {
			return exitOnInput(out, err)
		}
		port, err := prompter.Port(ctx, protocol.DefaultPort)
		if err != nil {
			return exitOnInput(out, err)
		}
		if name == "" {
			if name, err = prompter.Name(ctx); err != nil {
				return exitOnInput(out, err)
			}
		}

		out.Warn("Connecting to the chat server...")
		cl := client.New(client.Config{
			Addr:        net.JoinHostPort(host, strconv.Itoa(port)),
			Name:        name,
			MaxAttempts: c.Int("retries"),
			RetryDelay:  c.Duration("retry-delay"),
		}, &net.Dialer{}, in.Lines(), out, logger)

		err = cl.Run(ctx)
		switch {
		case errors.Is(err, client.ErrConnect):
			out.Error(err.Error())
			continue
		case err == nil,
			errors.Is(err, client.ErrGivenUp),
			errors.Is(err, client.ErrRejected),
			errors.Is(err, context.Canceled):
			logger.Debugw("client finished", "state", cl.State(), "error", err)
			out.Info("Exiting the Chat App. Goodbye!")
			return nil
		default:
			return err
		}
	}
}

// exitOnInput ends quietly when the user closes input or interrupts a prompt.
func exitOnInput(out *client.Console, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		out.Info("Exiting the Chat App. Goodbye!")
		return nil
	}
	return err
}
