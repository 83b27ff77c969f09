// Command server runs the authority: it loads the trained tree, hands each
// level-site its level and answers client setup.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/api"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/authority"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/config"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/engine"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/model"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/monitor"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/network"
	"go.dedis.ch/onet/v3/log"
	"gopkg.in/urfave/cli.v1"
)

func main() {
	cliApp := cli.NewApp()
	cliApp.Name = "server"
	cliApp.Usage = "train the level-sites and answer client setup"
	cliApp.Version = "0.1"
	cliApp.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "debug, d",
			Value: 1,
			Usage: "debug-level: 1 for terse, 5 for maximal",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to the YAML configuration",
		},
		cli.StringFlag{
			Name:  "model, m",
			Usage: "trained tree, overrides server.model",
		},
		cli.StringFlag{
			Name:  "addr, a",
			Usage: "listen address, overrides server.addr",
		},
	}
	cliApp.Before = func(c *cli.Context) error {
		log.SetDebugVisible(c.Int("debug"))
		return nil
	}
	cliApp.Action = run
	log.ErrFatal(cliApp.Run(os.Args))
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return err
	}
	if m := c.String("model"); m != "" {
		cfg.Server.Model = m
	}
	if a := c.String("addr"); a != "" {
		cfg.Server.Addr = a
	}
	if err := cfg.Validate(config.RoleServer); err != nil {
		return err
	}

	root, err := model.Load(cfg.Server.Model)
	if err != nil {
		return err
	}
	policy, err := engine.ParsePolicy(cfg.Server.Policy)
	if err != nil {
		return err
	}
	serverTLS, err := network.ServerTLS(cfg.TLS)
	if err != nil {
		return err
	}
	clientTLS, err := network.ClientTLS(cfg.TLS)
	if err != nil {
		return err
	}

	stats := monitor.NewSiteStats()
	auth, err := authority.New(root, authority.Options{
		LevelSites:  cfg.Server.LevelSites,
		Policy:      policy,
		Stats:       stats,
		TLS:         clientTLS,
		DialTimeout: cfg.Client.DialTimeout,
		TrainSecret: []byte(cfg.Server.TrainSecret),
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := network.NewTCPServer("authority", auth, serverTLS)
	if err := srv.Listen(cfg.Server.Addr); err != nil {
		return err
	}
	defer srv.Close()
	go srv.Serve()

	if cfg.Server.StatusAddr != "" {
		status := api.NewServer(stats, auth.Info)
		go func() {
			if err := status.Start(cfg.Server.StatusAddr); err != nil {
				log.Error("status endpoint:", err)
			}
		}()
	}

	if err := auth.Train(ctx); err != nil {
		return err
	}
	log.Info("authority ready with", len(auth.Levels()), "levels and", len(auth.Classes()), "classes")

	<-ctx.Done()
	log.Lvl1("shutting down")
	return nil
}
