// The server command runs the chat server. It loads chat.properties from the
// config directory, optionally takes the listening port as its only argument,
// and runs until \q is typed on the console or the process is interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/protocol"
	"github.com/Tyrowin/linechat/internal/server"
)

func main() {
	if err := app().Run(os.Args); err != nil {
		fmt.Printf("chat-server error: %v\n", err)
		os.Exit(1)
	}
}

func app() *cli.App {
	app := cli.NewApp()
	app.Name = "chat-server"
	app.Usage = "line-oriented multi-user chat server"
	app.ArgsUsage = "[PORT]"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the directory containing chat.properties",
			EnvVars: []string{"CHAT_CONFIG"},
			Value:   "./",
		},
	}
	app.Action = run
	return app
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		fmt.Printf("error loading configuration, using defaults: %v\n", err)
		cfg = config.Default()
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Source != "" {
		logger.Infof("configuration loaded from %s", cfg.Source)
	} else {
		logger.Warn("no chat.properties found, using defaults")
	}

	if c.NArg() > 0 {
		if err := cfg.OverridePort(c.Args().First()); err != nil {
			logger.Errorf("%v; using port %d", err, cfg.Port)
		}
	}

	srv := server.New(cfg, logger)
	if err := srv.Start(); err != nil {
		return err
	}
	logger.Infof("type %s and press enter to stop the server", protocol.QuitSentinel)

	go srv.RunConsole(os.Stdin)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case sig := <-signals:
		logger.Infof("received %s, shutting down", sig)
		if err := srv.Shutdown(cfg.ShutdownTimeout); err != nil {
			logger.Errorf("error while shutting down the server: %v", err)
		}
	case <-srv.Done():
	}

	logger.Info("shut down")
	return nil
}
