// Command levelsite serves one level of a distributed decision tree. The
// level arrives from the authority and is kept in a bbolt file under the
// data directory.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/api"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/config"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/engine"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/levelsite"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/monitor"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/network"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/storage"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
	"gopkg.in/urfave/cli.v1"
)

func main() {
	cliApp := cli.NewApp()
	cliApp.Name = "levelsite"
	cliApp.Usage = "serve one level of a private decision tree"
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
			Name:  "addr, a",
			Usage: "listen address, overrides level_site.addr",
		},
		cli.StringFlag{
			Name:  "status",
			Usage: "HTTP status address, overrides level_site.status_addr",
		},
		cli.StringFlag{
			Name:  "data",
			Usage: "data directory, overrides level_site.data_dir",
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
	if a := c.String("addr"); a != "" {
		cfg.LevelSite.Addr = a
	}
	if s := c.String("status"); s != "" {
		cfg.LevelSite.StatusAddr = s
	}
	if d := c.String("data"); d != "" {
		cfg.LevelSite.DataDir = d
	}
	if err := cfg.Validate(config.RoleLevelSite); err != nil {
		return err
	}

	policy, err := engine.ParsePolicy(cfg.LevelSite.Policy)
	if err != nil {
		return err
	}
	serverTLS, err := network.ServerTLS(cfg.TLS)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.LevelSite.DataDir, 0700); err != nil {
		return xerrors.Errorf("creating data directory: %v", err)
	}
	store, err := storage.OpenLevelStore(filepath.Join(cfg.LevelSite.DataDir, "level.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	stats := monitor.NewSiteStats()
	site, err := levelsite.New(store, policy, stats)
	if err != nil {
		return err
	}
	site.RequireTrainSecret([]byte(cfg.LevelSite.TrainSecret))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := network.NewTCPServer("level-site", site, serverTLS)
	if err := srv.Listen(cfg.LevelSite.Addr); err != nil {
		return err
	}
	defer srv.Close()
	go srv.Serve()

	if cfg.LevelSite.StatusAddr != "" {
		status := api.NewServer(stats, site.Info)
		go func() {
			if err := status.Start(cfg.LevelSite.StatusAddr); err != nil {
				log.Error("status endpoint:", err)
			}
		}()
	}

	<-ctx.Done()
	log.Lvl1("shutting down")
	return nil
}
