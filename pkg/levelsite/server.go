// Package levelsite hosts one level of the distributed tree.
package levelsite

import (
	"context"
	"net"
	"sync"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/api"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/engine"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/monitor"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/protocol"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/storage"
	"go.dedis.ch/onet/v3/log"
)

// Server answers Train from the authority and Evaluate from clients. Each
// connection carries exactly one of them.
type Server struct {
	mu     sync.RWMutex
	cfg    *engine.ResponderConfig
	depth  int
	nodes  int
	store  *storage.LevelStore
	policy engine.Policy
	stats  *monitor.SiteStats
	secret []byte
}

// New creates a level-site and reloads the level persisted in store, if any.
// store may be nil for a memory-only site.
func New(store *storage.LevelStore, policy engine.Policy, stats *monitor.SiteStats) (*Server, error) {
	s := &Server{
		store:  store,
		policy: policy,
		stats:  stats,
		depth:  -1,
		cfg:    &engine.ResponderConfig{Policy: policy, Stats: stats},
	}
	if store == nil {
		return s, nil
	}
	records, err := store.Load()
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		cfg, ls, err := s.build(records[0])
		if err != nil {
			return nil, err
		}
		s.swap(cfg, ls)
		log.Lvl1("reloaded level", s.depth, "with", s.nodes, "nodes")
	}
	return s, nil
}

// RequireTrainSecret makes the site reject Train messages not signed with
// secret. Call it before serving.
func (s *Server) RequireTrainSecret(secret []byte) {
	s.secret = append([]byte(nil), secret...)
}

func (s *Server) build(t *protocol.Train) (*engine.ResponderConfig, *common.LevelSite, error) {
	ls, err := t.Level.LevelSite()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := engine.NewLevelSiteConfig(ls, t.InboundKey, t.OutboundKey, s.policy, s.stats)
	if err != nil {
		return nil, nil, err
	}
	return cfg, ls, nil
}

// swap installs new level data. Rounds already running keep the
// configuration they started with.
func (s *Server) swap(cfg *engine.ResponderConfig, ls *common.LevelSite) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.depth = ls.Depth
	s.nodes = len(ls.Spans)
}

func (s *Server) current() *engine.ResponderConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Info reports the served level for the status endpoint.
func (s *Server) Info() api.Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return api.Info{Role: "level-site", Depth: s.depth, Nodes: s.nodes}
}

func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	pc := protocol.NewConn(conn)
	pkt, err := pc.Next()
	if err != nil {
		log.Lvl2("reading request:", err)
		return
	}

	switch pkt.Op {
	case protocol.OpTrain:
		s.train(pc, pkt)
	case protocol.OpEvaluate:
		msg := &protocol.Evaluate{}
		if err := protocol.Unmarshal(pkt, protocol.OpEvaluate, msg); err != nil {
			pc.SendError(err)
			return
		}
		if err := engine.NewResponder(pc, s.current(), msg).Run(ctx); err != nil {
			log.Lvl2(msg.Session, "round failed:", err)
		}
	default:
		pc.SendError(common.ProtocolError("unexpected "+protocol.OpName(pkt.Op), nil))
	}
}

// train replaces the level wholesale and persists it before acknowledging.
func (s *Server) train(pc *protocol.Conn, pkt *protocol.Packet) {
	var (
		cfg *engine.ResponderConfig
		ls  *common.LevelSite
	)
	msg := &protocol.Train{}
	err := protocol.Unmarshal(pkt, protocol.OpTrain, msg)
	if err == nil {
		if err = msg.Verify(s.secret); err != nil {
			log.Warn("rejected training data:", err)
		}
	}
	if err == nil {
		cfg, ls, err = s.build(msg)
	}
	if err == nil && s.store != nil {
		err = s.store.Replace(msg)
	}
	if err == nil {
		s.swap(cfg, ls)
	}
	ack := &protocol.Ack{OK: err == nil}
	if err != nil {
		log.Error("training failed:", err)
		ack.Message = err.Error()
	} else {
		if s.stats != nil {
			s.stats.RecordTrain()
		}
		log.Lvl1("trained level", msg.Level.Depth, "with", len(msg.Level.Spans), "nodes")
	}
	if err := pc.Send(protocol.OpAck, ack); err != nil {
		log.Lvl2("sending ack:", err)
	}
}
