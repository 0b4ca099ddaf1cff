package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/timing/pipeline"
)

var _ = Describe("Predictors", func() {
	config := func(kind pipeline.PredictorKind) pipeline.PredictorConfig {
		cfg := pipeline.DefaultPredictorConfig()
		cfg.Kind = kind
		return cfg
	}

	Describe("kind parsing", func() {
		It("should map configuration names", func() {
			Expect(pipeline.ParsePredictorKind("static")).To(Equal(pipeline.PredictorStatic))
			Expect(pipeline.ParsePredictorKind("bimodal")).To(Equal(pipeline.PredictorBimodal))
			Expect(pipeline.ParsePredictorKind("gshare")).To(Equal(pipeline.PredictorGshare))
			Expect(pipeline.ParsePredictorKind("TAGE")).To(Equal(pipeline.PredictorTAGE))
			Expect(pipeline.ParsePredictorKind("bogus")).To(Equal(pipeline.PredictorBimodal))
		})
	})

	Describe("BTB behavior (all kinds)", func() {
		It("should learn targets for taken branches", func() {
			p := pipeline.NewPredictor(config(pipeline.PredictorBimodal))

			pred := p.Predict(0x1000)
			Expect(pred.TargetKnown).To(BeFalse())

			p.Update(0x1000, true, 0x2000, true)
			pred = p.Predict(0x1000)
			Expect(pred.TargetKnown).To(BeTrue())
			Expect(pred.Target).To(Equal(uint64(0x2000)))
		})
	})

	Describe("static", func() {
		It("should predict backward branches taken once the target is known", func() {
			p := pipeline.NewPredictor(config(pipeline.PredictorStatic))

			// Unseen: not taken.
			Expect(p.Predict(0x1000).Taken).To(BeFalse())

			p.Update(0x1000, true, 0x800, true) // backward
			Expect(p.Predict(0x1000).Taken).To(BeTrue())

			p.Update(0x2000, true, 0x3000, true) // forward
			Expect(p.Predict(0x2000).Taken).To(BeFalse())
		})
	})

	Describe("bimodal", func() {
		It("should saturate toward the observed direction", func() {
			p := pipeline.NewPredictor(config(pipeline.PredictorBimodal))

			for i := 0; i < 4; i++ {
				p.Update(0x1000, false, 0, false)
			}
			Expect(p.Predict(0x1000).Taken).To(BeFalse())

			// One taken outcome is not enough to flip a saturated
			// counter.
			p.Update(0x1000, true, 0x2000, true)
			Expect(p.Predict(0x1000).Taken).To(BeFalse())
			p.Update(0x1000, true, 0x2000, true)
			Expect(p.Predict(0x1000).Taken).To(BeTrue())
		})
	})

	Describe("gshare", func() {
		It("should learn history-correlated patterns", func() {
			p := pipeline.NewPredictor(config(pipeline.PredictorGshare))

			// Alternating taken/not-taken at one PC: train enough
			// rounds and the history-indexed counters separate.
			outcome := false
			for i := 0; i < 64; i++ {
				pred := p.Predict(0x1000)
				p.Update(0x1000, outcome, 0x2000, pred.Taken != outcome)
				outcome = !outcome
			}

			correctRun := 0
			for i := 0; i < 16; i++ {
				pred := p.Predict(0x1000)
				if pred.Taken == outcome {
					correctRun++
				}
				p.Update(0x1000, outcome, 0x2000, pred.Taken != outcome)
				outcome = !outcome
			}
			Expect(correctRun).To(BeNumerically(">=", 14))
		})
	})

	Describe("TAGE", func() {
		It("should track a biased branch", func() {
			p := pipeline.NewPredictor(config(pipeline.PredictorTAGE))

			for i := 0; i < 8; i++ {
				pred := p.Predict(0x1000)
				p.Update(0x1000, true, 0x2000, !pred.Taken)
			}
			Expect(p.Predict(0x1000).Taken).To(BeTrue())
		})

		It("should learn history-dependent behavior via tagged tables", func() {
			p := pipeline.NewPredictor(config(pipeline.PredictorTAGE))

			// Period-2 pattern: after warmup the tagged entries keyed
			// by history dominate the bimodal base.
			outcome := false
			for i := 0; i < 256; i++ {
				pred := p.Predict(0x4000)
				p.Update(0x4000, outcome, 0x5000, pred.Taken != outcome)
				outcome = !outcome
			}

			correct := 0
			for i := 0; i < 32; i++ {
				pred := p.Predict(0x4000)
				if pred.Taken == outcome {
					correct++
				}
				p.Update(0x4000, outcome, 0x5000, pred.Taken != outcome)
				outcome = !outcome
			}
			Expect(correct).To(BeNumerically(">=", 28))
		})

		It("should keep statistics", func() {
			p := pipeline.NewPredictor(config(pipeline.PredictorTAGE))
			p.Predict(0x1000)
			p.Update(0x1000, true, 0x2000, false)
			Expect(p.Stats().Predictions).To(Equal(uint64(1)))
			Expect(p.Stats().Correct).To(Equal(uint64(1)))
		})
	})
})

var _ = Describe("HazardUnit", func() {
	var h *pipeline.HazardUnit

	BeforeEach(func() {
		h = pipeline.NewHazardUnit()
	})

	It("should stall IF/ID and bubble EX on a load-use hazard", func() {
		res := h.ComputeStalls(true, false, false)
		Expect(res.StallIF).To(BeTrue())
		Expect(res.StallID).To(BeTrue())
		Expect(res.InsertBubbleEX).To(BeTrue())
		Expect(res.FlushIF).To(BeFalse())
	})

	It("should flush IF/ID on a redirect", func() {
		res := h.ComputeStalls(false, false, true)
		Expect(res.FlushIF).To(BeTrue())
		Expect(res.FlushID).To(BeTrue())
		Expect(res.StallIF).To(BeFalse())
	})
})
