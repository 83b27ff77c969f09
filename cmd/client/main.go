// Command client classifies a feature file against a running deployment
// without revealing the features or learning the tree.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/client"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/config"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/storage"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
	"gopkg.in/urfave/cli.v1"
)

var cmds = cli.Commands{
	{
		Name:      "classify",
		Usage:     "classify one or more feature files",
		Aliases:   []string{"c"},
		ArgsUsage: "features.txt...",
		Action:    classify,
	},
	{
		Name:   "setup",
		Usage:  "generate keys and fetch the class list",
		Action: setup,
	},
	{
		Name:   "reset",
		Usage:  "forget stored keys and classes",
		Action: reset,
	},
}

func main() {
	cliApp := cli.NewApp()
	cliApp.Name = "client"
	cliApp.Usage = "privately classify feature vectors"
	cliApp.Version = "0.1"
	cliApp.Commands = cmds
	cliApp.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "debug, d",
			Value: 0,
			Usage: "debug-level: 1 for terse, 5 for maximal",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to the YAML configuration",
		},
		cli.StringFlag{
			Name:  "server, s",
			Usage: "authority address, overrides client.server",
		},
		cli.StringFlag{
			Name:  "level-sites, l",
			Usage: "comma separated level-site addresses in depth order",
		},
		cli.BoolFlag{
			Name:  "ephemeral",
			Usage: "do not keep keys between runs",
		},
	}
	cliApp.Before = func(c *cli.Context) error {
		log.SetDebugVisible(c.Int("debug"))
		return nil
	}
	log.ErrFatal(cliApp.Run(os.Args))
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if s := c.GlobalString("server"); s != "" {
		cfg.Client.Server = s
	}
	if l := c.GlobalString("level-sites"); l != "" {
		cfg.Client.LevelSites = strings.Split(l, ",")
	}
	return cfg, nil
}

func openStore(c *cli.Context, cfg *config.Config) (*storage.KeyStore, error) {
	if c.GlobalBool("ephemeral") {
		return nil, nil
	}
	if err := os.MkdirAll(cfg.Client.DataDir, 0700); err != nil {
		return nil, xerrors.Errorf("creating data directory: %v", err)
	}
	return storage.OpenKeyStore(filepath.Join(cfg.Client.DataDir, "client.db"))
}

// session opens the key store and creates a session. The returned closer
// releases the store.
func session(c *cli.Context) (*client.Session, func(), error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(c, cfg)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if store != nil {
			store.Close()
		}
	}
	s, err := client.New(cfg, store)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return s, closer, nil
}

func classify(c *cli.Context) error {
	if c.NArg() == 0 {
		return xerrors.New("need at least one features file")
	}
	s, closer, err := session(c)
	if err != nil {
		return err
	}
	defer closer()

	ctx := context.Background()
	for _, path := range c.Args() {
		res, err := s.Classify(ctx, path)
		if err != nil {
			return xerrors.Errorf("%s: %v", path, err)
		}
		log.Lvlf1("%s: %d rounds, %d comparisons, %v", path, res.Rounds, res.Comparisons, res.Elapsed)
		fmt.Printf("%s\t%s\n", path, res.Label)
	}
	return nil
}

func setup(c *cli.Context) error {
	s, closer, err := session(c)
	if err != nil {
		return err
	}
	defer closer()
	if err := s.Setup(context.Background()); err != nil {
		return err
	}
	fmt.Println("setup complete")
	return nil
}

func reset(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := storage.OpenKeyStore(filepath.Join(cfg.Client.DataDir, "client.db"))
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Truncate()
}
