package pipeline

import "strings"

// PredictorKind selects the branch prediction scheme.
type PredictorKind uint8

// Predictor kinds.
const (
	PredictorStatic PredictorKind = iota
	PredictorBimodal
	PredictorGshare
	PredictorTAGE
)

// ParsePredictorKind maps a configuration string to a PredictorKind.
// Unknown names fall back to bimodal.
func ParsePredictorKind(name string) PredictorKind {
	switch strings.ToLower(name) {
	case "static":
		return PredictorStatic
	case "gshare":
		return PredictorGshare
	case "tage":
		return PredictorTAGE
	default:
		return PredictorBimodal
	}
}

// PredictorConfig holds branch predictor configuration.
type PredictorConfig struct {
	Kind PredictorKind

	// TableSize is the number of direction counters (bimodal/gshare).
	// Must be a power of two.
	TableSize uint32

	// BTBSize is the number of branch target buffer entries. Must be a
	// power of two.
	BTBSize uint32

	// HistoryBits is the global history length for gshare.
	HistoryBits uint32

	// TAGE holds the TAGE-specific parameters.
	TAGE TAGEConfig
}

// DefaultPredictorConfig returns a bimodal predictor configuration.
func DefaultPredictorConfig() PredictorConfig {
	return PredictorConfig{
		Kind:        PredictorBimodal,
		TableSize:   1024,
		BTBSize:     256,
		HistoryBits: 12,
		TAGE:        DefaultTAGEConfig(),
	}
}

// Prediction is a branch prediction result.
type Prediction struct {
	// Taken indicates whether the branch is predicted taken.
	Taken bool
	// Target is the predicted target address, if known from the BTB.
	Target uint64
	// TargetKnown indicates whether Target is valid.
	TargetKnown bool
}

// PredictorStats holds prediction statistics.
type PredictorStats struct {
	Predictions    uint64
	Correct        uint64
	Mispredictions uint64
	BTBHits        uint64
	BTBMisses      uint64
}

// Accuracy returns the direction prediction accuracy as a fraction.
func (s PredictorStats) Accuracy() float64 {
	if s.Predictions == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Predictions)
}

// Predictor is the branch prediction interface consumed by the fetch
// stage. The set of implementations is finite and chosen at
// construction time.
type Predictor interface {
	// Predict produces a prediction for the branch at pc.
	Predict(pc uint64) Prediction

	// Update trains the predictor with the resolved outcome.
	Update(pc uint64, taken bool, target uint64, mispredict bool)

	// Stats returns prediction statistics.
	Stats() PredictorStats
}

// NewPredictor constructs the predictor selected by config.
func NewPredictor(config PredictorConfig) Predictor {
	if config.TableSize == 0 {
		config.TableSize = 1024
	}
	if config.BTBSize == 0 {
		config.BTBSize = 256
	}
	if config.HistoryBits == 0 || config.HistoryBits > 30 {
		config.HistoryBits = 12
	}

	btb := newBTB(config.BTBSize)
	switch config.Kind {
	case PredictorStatic:
		return &staticPredictor{btb: btb}
	case PredictorGshare:
		return &gsharePredictor{
			btb:      btb,
			counters: newCounterTable(config.TableSize),
			histMask: uint64(1)<<config.HistoryBits - 1,
		}
	case PredictorTAGE:
		return newTAGEPredictor(config.TAGE, btb)
	default:
		return &bimodalPredictor{
			btb:      btb,
			counters: newCounterTable(config.TableSize),
		}
	}
}

// btb is a direct-mapped, tag-compared branch target buffer.
type btb struct {
	entries []btbEntry
	mask    uint64
}

type btbEntry struct {
	valid  bool
	pc     uint64
	target uint64
}

func newBTB(size uint32) *btb {
	return &btb{entries: make([]btbEntry, size), mask: uint64(size) - 1}
}

func (b *btb) lookup(pc uint64) (uint64, bool) {
	e := &b.entries[pc>>1&b.mask]
	if e.valid && e.pc == pc {
		return e.target, true
	}
	return 0, false
}

func (b *btb) insert(pc, target uint64) {
	b.entries[pc>>1&b.mask] = btbEntry{valid: true, pc: pc, target: target}
}

// counterTable is a table of 2-bit saturating counters initialized to
// weakly taken.
type counterTable struct {
	counters []uint8
	mask     uint64
}

func newCounterTable(size uint32) *counterTable {
	t := &counterTable{counters: make([]uint8, size), mask: uint64(size) - 1}
	for i := range t.counters {
		t.counters[i] = 2
	}
	return t
}

func (t *counterTable) taken(idx uint64) bool {
	return t.counters[idx&t.mask] >= 2
}

func (t *counterTable) update(idx uint64, taken bool) {
	c := &t.counters[idx&t.mask]
	if taken {
		if *c < 3 {
			*c++
		}
	} else {
		if *c > 0 {
			*c--
		}
	}
}

// staticPredictor predicts backward branches taken and forward branches
// not taken. Direction is judged from the BTB target; an unseen branch
// predicts not taken.
type staticPredictor struct {
	btb   *btb
	stats PredictorStats
}

func (p *staticPredictor) Predict(pc uint64) Prediction {
	p.stats.Predictions++
	target, known := p.btb.lookup(pc)
	if known {
		p.stats.BTBHits++
	} else {
		p.stats.BTBMisses++
	}
	return Prediction{
		Taken:       known && target <= pc,
		Target:      target,
		TargetKnown: known,
	}
}

func (p *staticPredictor) Update(pc uint64, taken bool, target uint64, mispredict bool) {
	if mispredict {
		p.stats.Mispredictions++
	} else {
		p.stats.Correct++
	}
	if taken {
		p.btb.insert(pc, target)
	}
}

func (p *staticPredictor) Stats() PredictorStats { return p.stats }

// bimodalPredictor indexes 2-bit counters by PC bits.
type bimodalPredictor struct {
	btb      *btb
	counters *counterTable
	stats    PredictorStats
}

func (p *bimodalPredictor) Predict(pc uint64) Prediction {
	p.stats.Predictions++
	target, known := p.btb.lookup(pc)
	if known {
		p.stats.BTBHits++
	} else {
		p.stats.BTBMisses++
	}
	return Prediction{
		Taken:       p.counters.taken(pc >> 1),
		Target:      target,
		TargetKnown: known,
	}
}

func (p *bimodalPredictor) Update(pc uint64, taken bool, target uint64, mispredict bool) {
	if mispredict {
		p.stats.Mispredictions++
	} else {
		p.stats.Correct++
	}
	p.counters.update(pc>>1, taken)
	if taken {
		p.btb.insert(pc, target)
	}
}

func (p *bimodalPredictor) Stats() PredictorStats { return p.stats }

// gsharePredictor indexes counters by PC XOR global history.
type gsharePredictor struct {
	btb      *btb
	counters *counterTable
	history  uint64
	histMask uint64
	stats    PredictorStats
}

func (p *gsharePredictor) index(pc uint64) uint64 {
	return (pc >> 1) ^ (p.history & p.histMask)
}

func (p *gsharePredictor) Predict(pc uint64) Prediction {
	p.stats.Predictions++
	target, known := p.btb.lookup(pc)
	if known {
		p.stats.BTBHits++
	} else {
		p.stats.BTBMisses++
	}
	return Prediction{
		Taken:       p.counters.taken(p.index(pc)),
		Target:      target,
		TargetKnown: known,
	}
}

func (p *gsharePredictor) Update(pc uint64, taken bool, target uint64, mispredict bool) {
	if mispredict {
		p.stats.Mispredictions++
	} else {
		p.stats.Correct++
	}
	p.counters.update(p.index(pc), taken)

	p.history <<= 1
	if taken {
		p.history |= 1
	}

	if taken {
		p.btb.insert(pc, target)
	}
}

func (p *gsharePredictor) Stats() PredictorStats { return p.stats }
