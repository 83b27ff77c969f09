// Package authority implements the server-site: it owns the trained tree,
// distributes its levels to the level-sites and answers client setup.
package authority

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/api"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/decompose"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/engine"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/model"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/monitor"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/network"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/protocol"
	"go.dedis.ch/onet/v3/log"
)

type Options struct {
	// LevelSites in depth order. Empty makes the authority a combined
	// responder.
	LevelSites  []string
	Policy      engine.Policy
	Stats       *monitor.SiteStats
	TLS         *tls.Config
	DialTimeout time.Duration
	// TrainSecret signs the Train messages; level-sites check it.
	TrainSecret []byte
}

type Authority struct {
	opts     Options
	levels   []common.LevelSite
	classes  []string
	combined *engine.ResponderConfig

	readyOnce sync.Once
	ready     chan struct{}
}

// New decomposes root and prepares the authority. Nothing is sent until
// Train; a combined authority can evaluate right away.
func New(root model.Node, opts Options) (*Authority, error) {
	levels, err := decompose.Decompose(root)
	if err != nil {
		return nil, err
	}
	if len(opts.LevelSites) > 0 && len(levels) > len(opts.LevelSites) {
		return nil, common.ConfigError(fmt.Sprintf("tree has %d levels but only %d level-sites are configured",
			len(levels), len(opts.LevelSites)), nil)
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	a := &Authority{
		opts:    opts,
		levels:  levels,
		classes: model.Classes(root),
		ready:   make(chan struct{}),
	}
	if a.Combined() {
		if a.combined, err = engine.NewCombinedConfig(levels, opts.Policy, opts.Stats); err != nil {
			return nil, err
		}
	}
	log.Lvl2("decomposed tree:\n" + decompose.Dump(levels))
	return a, nil
}

func (a *Authority) Levels() []common.LevelSite {
	return a.levels
}

func (a *Authority) Classes() []string {
	return a.classes
}

// Combined reports whether clients run their rounds against the authority.
func (a *Authority) Combined() bool {
	return len(a.opts.LevelSites) == 0
}

// Train hands every level-site its level and waits for each
// acknowledgment. Sites beyond the tree depth get an empty level. Once all
// acknowledged, pending setups are told the deployment is ready.
func (a *Authority) Train(ctx context.Context) error {
	if a.Combined() {
		log.Lvl1("serving", len(a.levels), "levels as a combined responder")
		a.markReady()
		return nil
	}

	master := make([]byte, common.PointerKeySize)
	if _, err := rand.Read(master); err != nil {
		return common.ConfigError("generating pointer secret", err)
	}
	for i, addr := range a.opts.LevelSites {
		ls := common.LevelSite{Depth: i}
		if i < len(a.levels) {
			ls = a.levels[i]
		}
		in, out, err := common.LevelKeys(master, i, len(a.levels))
		if err != nil {
			return common.ConfigError("deriving pointer keys", err)
		}
		if err := a.trainSite(ctx, addr, &ls, in, out); err != nil {
			return common.At(err, i, 0)
		}
		log.Lvl1("level-site", i, "at", addr, "trained")
	}
	a.markReady()
	return nil
}

func (a *Authority) trainSite(ctx context.Context, addr string, ls *common.LevelSite, in, out []byte) error {
	level, err := protocol.FromLevelSite(ls)
	if err != nil {
		return err
	}
	conn, err := network.Dial(ctx, addr, a.opts.DialTimeout, a.opts.TLS)
	if err != nil {
		return err
	}
	defer conn.Close()

	pc := protocol.NewConn(conn)
	msg := &protocol.Train{Level: *level, InboundKey: in, OutboundKey: out}
	if len(a.opts.TrainSecret) > 0 {
		msg.Sign(a.opts.TrainSecret)
	}
	if err := pc.Send(protocol.OpTrain, msg); err != nil {
		return err
	}
	var ack protocol.Ack
	if err := pc.Receive(protocol.OpAck, &ack); err != nil {
		return err
	}
	if !ack.OK {
		return common.ProtocolError("level-site rejected its level: "+ack.Message, nil)
	}
	return nil
}

func (a *Authority) markReady() {
	a.readyOnce.Do(func() { close(a.ready) })
}

// Info reports the deployment for the status endpoint.
func (a *Authority) Info() api.Info {
	nodes := 0
	for i := range a.levels {
		nodes += len(a.levels[i].Spans)
	}
	return api.Info{Role: "authority", Depth: len(a.levels), Nodes: nodes}
}

// ServeConn answers Setup, and Evaluate in combined mode.
func (a *Authority) ServeConn(ctx context.Context, conn net.Conn) {
	pc := protocol.NewConn(conn)
	pkt, err := pc.Next()
	if err != nil {
		log.Lvl2("reading request:", err)
		return
	}

	switch pkt.Op {
	case protocol.OpSetup:
		if err := a.setup(ctx, pc, pkt); err != nil {
			log.Lvl2("setup failed:", err)
		}
	case protocol.OpEvaluate:
		if a.combined == nil {
			pc.SendError(common.ProtocolError("authority does not evaluate: contact the level-sites", nil))
			return
		}
		msg := &protocol.Evaluate{}
		if err := protocol.Unmarshal(pkt, protocol.OpEvaluate, msg); err != nil {
			pc.SendError(err)
			return
		}
		if err := engine.NewResponder(pc, a.combined, msg).Run(ctx); err != nil {
			log.Lvl2(msg.Session, "combined round failed:", err)
		}
	default:
		pc.SendError(common.ProtocolError("unexpected "+protocol.OpName(pkt.Op), nil))
	}
}

// setup checks the client's keys, returns the class list and signals
// readiness once every level-site acknowledged its data.
func (a *Authority) setup(ctx context.Context, pc *protocol.Conn, pkt *protocol.Packet) error {
	msg := &protocol.Setup{}
	if err := protocol.Unmarshal(pkt, protocol.OpSetup, msg); err != nil {
		pc.SendError(err)
		return err
	}
	if _, err := msg.Keys(); err != nil {
		pc.SendError(err)
		return err
	}
	if err := pc.Send(protocol.OpClasses, &protocol.Classes{Labels: a.classes}); err != nil {
		return err
	}
	select {
	case <-a.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	return pc.Send(protocol.OpReady, &protocol.Ready{OK: true})
}
