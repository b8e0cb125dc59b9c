// Package cmd ...
package cmd

import (
	"context"
	"fmt"

	"github.com/common-nighthawk/go-figure"
	"github.com/urfave/cli/v3"

	"github.com/arnvik/lanchat/client"
	"github.com/arnvik/lanchat/config"
	"github.com/arnvik/lanchat/logger"
)

func New() *cli.Command {
	return &cli.Command{
		Name:    "lanchat",
		Usage:   "serverless chat and file transfer for the local network",
		Version: client.Version,
		Flags:   defaultFlags(),
		Action:  runAction,
	}
}

func defaultFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "nick",
			Aliases: []string{"n"},
			Usage:   "nickname to log on with",
		},
		&cli.StringFlag{
			Name:    "group",
			Aliases: []string{"g"},
			Usage:   "multicast group address",
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "multicast port",
		},
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"d"},
			Usage:   "downloads directory",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "config directory",
		},
		&cli.BoolFlag{
			Name:  "auto-accept",
			Usage: "accept incoming file offers without asking",
		},
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	if nick := cmd.String("nick"); nick != "" {
		cfg.Nick = nick
	}
	if group := cmd.String("group"); group != "" {
		cfg.MulticastGroup = group
	}
	if port := cmd.Int("port"); port != 0 {
		cfg.Port = int(port)
	}
	if dir := cmd.String("dir"); dir != "" {
		cfg.DownloadsDir = dir
	}
	if cmd.Bool("auto-accept") {
		cfg.AutoAccept = true
	}

	logPath, err := logger.LogPath("logs")
	if err != nil {
		return err
	}
	log := logger.New()
	log.Init(logPath)

	banner := figure.NewFigure("lanchat", "", true)
	banner.Print()
	fmt.Println()

	c := client.New(cfg, log)
	console := newConsole(c, cfg)

	return console.run(ctx)
}
