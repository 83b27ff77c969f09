// Command example runs a whole deployment in one process: an authority,
// one level-site per tree level and a client classifying a few flowers.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/authority"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/client"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/config"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/engine"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/features"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/levelsite"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/model"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/network"
	"go.dedis.ch/onet/v3/log"
)

const iris = `
variable: petal_length
branches:
  - condition: ">= 2.5"
    variable: petal_width
    branches:
      - condition: ">= 1.75"
        label: virginica
      - condition: "< 1.75"
        label: versicolor
  - condition: "< 2.5"
    label: setosa
`

var samples = []map[string]string{
	{"petal_length": "1.4", "petal_width": "0.2"},
	{"petal_length": "4.5", "petal_width": "1.3"},
	{"petal_length": "5.8", "petal_width": "2.1"},
}

func serve(name string, h network.Handler) *network.TCPServer {
	srv := network.NewTCPServer(name, h, nil)
	log.ErrFatal(srv.Listen("127.0.0.1:0"))
	go srv.Serve()
	return srv
}

func main() {
	log.SetDebugVisible(1)
	root, err := model.Parse([]byte(iris))
	log.ErrFatal(err)

	var sites []string
	for i := 0; i < model.Depth(root); i++ {
		site, err := levelsite.New(nil, engine.PolicyAlternate, nil)
		log.ErrFatal(err)
		srv := serve("level-site", site)
		defer srv.Close()
		sites = append(sites, srv.Addr().String())
	}

	auth, err := authority.New(root, authority.Options{LevelSites: sites})
	log.ErrFatal(err)
	authSrv := serve("authority", auth)
	defer authSrv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	log.ErrFatal(auth.Train(ctx))

	cfg := config.Default()
	cfg.Client.Server = authSrv.Addr().String()
	cfg.Client.LevelSites = sites
	cfg.Client.KeySize = 1024
	s, err := client.New(cfg, nil)
	log.ErrFatal(err)
	log.ErrFatal(s.Setup(ctx))

	for _, raw := range samples {
		pub := s.PublicKeys()
		vec, err := features.Encrypt(raw, cfg.Client.Precision, pub, rand.Reader)
		log.ErrFatal(err)
		res, err := s.ClassifyVector(ctx, vec)
		log.ErrFatal(err)
		want, err := model.Evaluate(root, raw, cfg.Client.Precision)
		log.ErrFatal(err)
		fmt.Fprintf(os.Stdout, "%v -> %s (plaintext %s) after %d rounds, %d comparisons, %v\n",
			raw, res.Label, want, res.Rounds, res.Comparisons, res.Elapsed)
	}
}
