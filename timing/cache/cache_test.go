package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/timing/cache"
)

// sliceBacking is a byte-exact reference memory model.
type sliceBacking struct {
	data []byte
}

func newSliceBacking(size int) *sliceBacking {
	return &sliceBacking{data: make([]byte, size)}
}

func (b *sliceBacking) Read(addr uint64, size int) []byte {
	out := make([]byte, size)
	copy(out, b.data[addr:])
	return out
}

func (b *sliceBacking) Write(addr uint64, data []byte) {
	copy(b.data[addr:], data)
}

func smallConfig(policy cache.Policy) cache.Config {
	return cache.Config{
		Size:          1024,
		Associativity: 2,
		BlockSize:     64,
		Policy:        policy,
		HitLatency:    1,
		MissLatency:   10,
	}
}

var _ = Describe("Cache", func() {
	var (
		backing *sliceBacking
		c       *cache.Cache
	)

	BeforeEach(func() {
		backing = newSliceBacking(64 * 1024)
		c = cache.New(smallConfig(cache.PolicyLRU), backing)
	})

	It("should read through on a miss and hit afterwards", func() {
		backing.data[0x100] = 0x42

		res := c.Read(0x100, 1)
		Expect(res.Hit).To(BeFalse())
		Expect(res.Latency).To(Equal(uint64(10)))
		Expect(res.Data).To(Equal(uint64(0x42)))

		res = c.Read(0x100, 1)
		Expect(res.Hit).To(BeTrue())
		Expect(res.Latency).To(Equal(uint64(1)))
	})

	It("should hold written data dirty until eviction", func() {
		c.Write(0x200, 8, 0x1122334455667788)

		// The backing store is stale until writeback.
		Expect(backing.data[0x200]).To(Equal(byte(0)))

		res := c.Read(0x200, 8)
		Expect(res.Hit).To(BeTrue())
		Expect(res.Data).To(Equal(uint64(0x1122334455667788)))
	})

	It("should write back dirty victims", func() {
		// 1KiB, 2-way, 64B lines: 8 sets, so addresses 64*8*k alias.
		setStride := uint64(64 * 8)

		c.Write(0, 8, 0xdead)
		c.Read(setStride, 8)
		c.Read(2*setStride, 8) // evicts the dirty line at 0

		Expect(c.Stats().Writebacks).To(Equal(uint64(1)))
		Expect(backing.Read(0, 8)[0]).To(Equal(byte(0xad)))
	})

	It("should flush all dirty lines", func() {
		c.Write(0, 8, 0x11)
		c.Write(4096, 8, 0x22)
		c.Flush()

		Expect(backing.data[0]).To(Equal(byte(0x11)))
		Expect(backing.data[4096]).To(Equal(byte(0x22)))

		// Everything is invalid afterwards.
		res := c.Read(0, 8)
		Expect(res.Hit).To(BeFalse())
		Expect(res.Data).To(Equal(uint64(0x11)))
	})

	It("should drop lines on InvalidateAll without writeback", func() {
		backing.data[0] = 0x7
		c.Read(0, 1)
		c.InvalidateAll()

		res := c.Read(0, 1)
		Expect(res.Hit).To(BeFalse())
	})

	Describe("consistency against a reference model", func() {
		// A deterministic xorshift drives the address/value sequence.
		run := func(policy cache.Policy) {
			ref := newSliceBacking(64 * 1024)
			backing := newSliceBacking(64 * 1024)
			c := cache.New(smallConfig(policy), backing)

			state := uint64(0x2545f4914f6cdd1d)
			next := func() uint64 {
				state ^= state << 13
				state ^= state >> 7
				state ^= state << 17
				return state
			}

			sizes := []int{1, 2, 4, 8}
			for i := 0; i < 20000; i++ {
				r := next()
				size := sizes[r%4]
				addr := (r >> 8) % (64*1024 - 8)
				addr -= addr % uint64(size)

				if r&0x10 != 0 {
					value := next()
					c.Write(addr, size, value)
					for b := 0; b < size; b++ {
						ref.data[addr+uint64(b)] = byte(value >> (8 * b))
					}
				} else {
					got := c.Read(addr, size)
					var want uint64
					for b := 0; b < size; b++ {
						want |= uint64(ref.data[addr+uint64(b)]) << (8 * b)
					}
					Expect(got.Data).To(Equal(want),
						"mismatch at %#x size %d after %d ops", addr, size, i)
				}
			}

			// After a flush, the backing store matches the reference.
			c.Flush()
			Expect(backing.data).To(Equal(ref.data))
		}

		It("should match with LRU replacement", func() {
			run(cache.PolicyLRU)
		})

		It("should match with PLRU replacement", func() {
			run(cache.PolicyPLRU)
		})

		It("should match with random replacement", func() {
			run(cache.PolicyRandom)
		})
	})

	It("should parse policy names", func() {
		Expect(cache.ParsePolicy("lru")).To(Equal(cache.PolicyLRU))
		Expect(cache.ParsePolicy("PLRU")).To(Equal(cache.PolicyPLRU))
		Expect(cache.ParsePolicy("random")).To(Equal(cache.PolicyRandom))
		Expect(cache.ParsePolicy("")).To(Equal(cache.PolicyLRU))
	})

	It("should report the hit rate", func() {
		c.Read(0, 8)
		c.Read(0, 8)
		c.Read(0, 8)
		c.Read(0, 8)
		Expect(c.Stats().HitRate()).To(BeNumerically("~", 0.75, 0.001))
	})
})
