// Command benchmark times repeated classifications against a running
// deployment and reports per-backend comparison counts.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/client"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/config"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/features"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
	"gopkg.in/urfave/cli.v1"
)

func main() {
	cliApp := cli.NewApp()
	cliApp.Name = "benchmark"
	cliApp.Usage = "time private classifications"
	cliApp.ArgsUsage = "features.txt"
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
			Name:  "level-sites, l",
			Usage: "comma separated level-site addresses in depth order",
		},
		cli.IntFlag{
			Name:  "n",
			Value: 20,
			Usage: "number of classifications",
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
	if c.NArg() != 1 {
		return xerrors.New("need exactly one features file")
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return err
	}
	if l := c.String("level-sites"); l != "" {
		cfg.Client.LevelSites = strings.Split(l, ",")
	}

	s, err := client.New(cfg, nil)
	if err != nil {
		return err
	}
	ctx := context.Background()
	start := time.Now()
	if err := s.Setup(ctx); err != nil {
		return err
	}
	fmt.Printf("setup (%d bit keys): %v\n", cfg.Client.KeySize, time.Since(start))

	n := c.Int("n")
	if n <= 0 {
		return xerrors.New("-n must be positive")
	}
	var (
		encrypt, classify time.Duration
		rounds, cmps      int
		label             string
	)
	for i := 0; i < n; i++ {
		t := time.Now()
		vec, err := features.EncodeFile(c.Args().First(), cfg.Client.Precision, s.PublicKeys(), rand.Reader)
		if err != nil {
			return err
		}
		encrypt += time.Since(t)

		res, err := s.ClassifyVector(ctx, vec)
		if err != nil {
			return err
		}
		classify += res.Elapsed
		rounds += res.Rounds
		cmps += res.Comparisons
		label = res.Label
	}
	fmt.Printf("label: %s\n", label)
	fmt.Printf("encrypt:  %v per run\n", encrypt/time.Duration(n))
	fmt.Printf("classify: %v per run, %.1f rounds, %.1f comparisons\n",
		classify/time.Duration(n), float64(rounds)/float64(n), float64(cmps)/float64(n))
	return nil
}
