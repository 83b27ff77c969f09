// Package client runs classification sessions: it holds the client's keys,
// encrypts its features and walks the level-sites in depth order.
package client

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/config"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/engine"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/features"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/network"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/oracle"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/protocol"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/storage"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// Result of one classification.
type Result struct {
	Label string
	// Rounds is the number of level-sites contacted.
	Rounds      int
	Comparisons int
	Sites       []string
	Elapsed     time.Duration
}

// Session owns the client's key pairs and class table. It contacts one
// responder at a time.
type Session struct {
	cfg     config.ClientConfig
	tls     *tls.Config
	store   *storage.KeyStore
	random  io.Reader
	keys    *oracle.KeyPair
	classes *ClassTable
}

// New creates a session. store may be nil, in which case nothing survives
// the process.
func New(cfg *config.Config, store *storage.KeyStore) (*Session, error) {
	if err := cfg.Validate(config.RoleClient); err != nil {
		return nil, err
	}
	tlsConfig, err := network.ClientTLS(cfg.TLS)
	if err != nil {
		return nil, err
	}
	return &Session{cfg: cfg.Client, tls: tlsConfig, store: store, random: rand.Reader}, nil
}

// Setup makes sure the session has keys and a class table. Persisted keys
// are reused; any failure to read them counts as having none.
func (s *Session) Setup(ctx context.Context) error {
	if s.keys != nil && s.classes != nil {
		return nil
	}
	keys, labels := s.loadState()
	if keys != nil && len(labels) > 0 {
		log.Lvl2("reusing stored keys and", len(labels), "classes")
		s.keys, s.classes = keys, NewClassTable(labels)
		return nil
	}

	if keys == nil {
		log.Lvl1("generating", s.cfg.KeySize, "bit keys")
		var err error
		if keys, err = oracle.GenerateKeys(s.random, s.cfg.KeySize); err != nil {
			return common.ConfigError("generating keys", err)
		}
	}
	labels, err := s.exchange(ctx, keys)
	if err != nil {
		return err
	}
	s.keys, s.classes = keys, NewClassTable(labels)

	if s.store != nil {
		if err := s.store.SaveKeys(keys); err != nil {
			log.Warn("could not persist keys:", err)
		} else if err := s.store.SaveClasses(labels); err != nil {
			log.Warn("could not persist classes:", err)
		}
	}
	return nil
}

// PublicKeys returns the session's encryption keys. Setup must have
// succeeded.
func (s *Session) PublicKeys() oracle.PublicKeys {
	return s.keys.Public()
}

func (s *Session) loadState() (*oracle.KeyPair, []string) {
	if s.store == nil {
		return nil, nil
	}
	keys, err := s.store.LoadKeys()
	if err != nil {
		if err != storage.ErrNoKeys {
			log.Warn("ignoring unreadable keys:", err)
		}
		return nil, nil
	}
	labels, err := s.store.LoadClasses()
	if err != nil {
		log.Warn("ignoring unreadable classes:", err)
		return keys, nil
	}
	return keys, labels
}

// exchange sends the public keys to the authority and waits for the class
// list and the readiness acknowledgment.
func (s *Session) exchange(ctx context.Context, keys *oracle.KeyPair) ([]string, error) {
	msg, err := protocol.NewSetup(keys.Public())
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RoundTimeout)
	defer cancel()
	conn, err := network.Dial(ctx, s.cfg.Server, s.cfg.DialTimeout, s.tls)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	pc := protocol.NewConn(conn)
	if err := pc.Send(protocol.OpSetup, msg); err != nil {
		return nil, err
	}
	var classes protocol.Classes
	if err := pc.Receive(protocol.OpClasses, &classes); err != nil {
		return nil, err
	}
	var ready protocol.Ready
	if err := pc.Receive(protocol.OpReady, &ready); err != nil {
		return nil, err
	}
	if !ready.OK {
		return nil, common.ProtocolError("authority reported the deployment not ready", nil)
	}
	if len(classes.Labels) == 0 {
		return nil, common.ProtocolError("authority sent no classes", nil)
	}
	log.Lvl2("setup done,", len(classes.Labels), "classes")
	return classes.Labels, nil
}

// Classify encrypts the feature file at featuresPath and resolves its
// label.
func (s *Session) Classify(ctx context.Context, featuresPath string) (*Result, error) {
	if err := s.Setup(ctx); err != nil {
		return nil, err
	}
	vec, err := features.EncodeFile(featuresPath, s.cfg.Precision, s.keys.Public(), s.random)
	if err != nil {
		return nil, err
	}
	return s.ClassifyVector(ctx, vec)
}

// ClassifyVector runs the rounds for already encrypted features.
func (s *Session) ClassifyVector(ctx context.Context, vec features.Vector) (*Result, error) {
	if err := s.Setup(ctx); err != nil {
		return nil, err
	}
	id := uuid.New().String()
	start := time.Now()

	msg, err := protocol.NewEvaluate(id, s.keys.Public(), s.cfg.Precision, vec, nil)
	if err != nil {
		return nil, err
	}

	sites := s.cfg.LevelSites
	if len(sites) == 0 {
		sites = []string{s.cfg.Server}
	}
	res := &Result{}
	var ptr *common.Pointer
	for i, addr := range sites {
		msg.Pointer = protocol.FromPointer(ptr)
		out, err := s.round(ctx, addr, msg)
		res.Rounds++
		res.Sites = append(res.Sites, addr)
		if xerrors.Is(err, common.ErrNoData) {
			return nil, xerrors.Errorf("site %d (%s): %w", i, addr, err)
		}
		if err != nil {
			return nil, common.At(err, i, i)
		}
		res.Comparisons += out.Comparisons

		switch out.State {
		case engine.Terminal:
			label, ok := s.classes.Lookup(out.LabelHash)
			if !ok {
				return nil, common.At(common.ProtocolError("result label is not a known class", nil), i, i)
			}
			res.Label = label
			res.Elapsed = time.Since(start)
			log.Lvlf2("%s: classified after %d rounds in %v", id, res.Rounds, res.Elapsed)
			return res, nil
		case engine.Continue:
			ptr = out.Pointer
		}
	}
	err = common.ProtocolError(fmt.Sprintf("visited all %d level-sites without a classification", len(sites)), nil)
	return nil, common.At(err, len(sites)-1, len(sites)-1)
}

// round runs one initiator round on a fresh connection.
func (s *Session) round(ctx context.Context, addr string, msg *protocol.Evaluate) (*engine.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RoundTimeout)
	defer cancel()
	conn, err := network.Dial(ctx, addr, s.cfg.DialTimeout, s.tls)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	log.Lvl3(msg.Session, "round at", addr)
	return engine.NewInitiator(protocol.NewConn(conn), s.keys, msg).Run(ctx)
}
