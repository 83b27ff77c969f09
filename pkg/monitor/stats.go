// Package monitor counts protocol activity on a responder.
package monitor

import (
	"sync/atomic"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/oracle"
)

type SiteStats struct {
	Rounds              uint64
	PaillierComparisons uint64
	ElGamalComparisons  uint64
	TerminalCount       uint64
	ContinueCount       uint64
	NoDataCount         uint64
	FailureCount        uint64
	TrainCount          uint64
}

func NewSiteStats() *SiteStats {
	return &SiteStats{}
}

func (s *SiteStats) RecordRound() {
	atomic.AddUint64(&s.Rounds, 1)
}

func (s *SiteStats) RecordComparison(b oracle.Backend) {
	switch b {
	case oracle.BackendPaillier:
		atomic.AddUint64(&s.PaillierComparisons, 1)
	case oracle.BackendElGamal:
		atomic.AddUint64(&s.ElGamalComparisons, 1)
	}
}

func (s *SiteStats) RecordTerminal() {
	atomic.AddUint64(&s.TerminalCount, 1)
}

func (s *SiteStats) RecordContinue() {
	atomic.AddUint64(&s.ContinueCount, 1)
}

func (s *SiteStats) RecordNoData() {
	atomic.AddUint64(&s.NoDataCount, 1)
}

func (s *SiteStats) RecordFailure() {
	atomic.AddUint64(&s.FailureCount, 1)
}

func (s *SiteStats) RecordTrain() {
	atomic.AddUint64(&s.TrainCount, 1)
}

// Snapshot is a consistent-enough copy for reporting.
type Snapshot struct {
	Rounds              uint64  `json:"rounds"`
	PaillierComparisons uint64  `json:"paillier_comparisons"`
	ElGamalComparisons  uint64  `json:"elgamal_comparisons"`
	Terminal            uint64  `json:"terminal"`
	Continue            uint64  `json:"continue"`
	NoData              uint64  `json:"no_data"`
	Failures            uint64  `json:"failures"`
	Trainings           uint64  `json:"trainings"`
	ComparisonsPerRound float64 `json:"comparisons_per_round"`
}

func (s *SiteStats) Snapshot() Snapshot {
	snap := Snapshot{
		Rounds:              atomic.LoadUint64(&s.Rounds),
		PaillierComparisons: atomic.LoadUint64(&s.PaillierComparisons),
		ElGamalComparisons:  atomic.LoadUint64(&s.ElGamalComparisons),
		Terminal:            atomic.LoadUint64(&s.TerminalCount),
		Continue:            atomic.LoadUint64(&s.ContinueCount),
		NoData:              atomic.LoadUint64(&s.NoDataCount),
		Failures:            atomic.LoadUint64(&s.FailureCount),
		Trainings:           atomic.LoadUint64(&s.TrainCount),
	}
	if snap.Rounds > 0 {
		snap.ComparisonsPerRound = float64(snap.PaillierComparisons+snap.ElGamalComparisons) / float64(snap.Rounds)
	}
	return snap
}
