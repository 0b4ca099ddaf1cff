package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// plruVictimFinder is a tree pseudo-LRU victim finder pluggable into the
// Akita directory. One bit tree per set; Touch flips the path away from
// the visited way, FindVictim follows the pointed-to path.
type plruVictimFinder struct {
	ways int
	tree map[int]uint64
}

func newPLRUVictimFinder(ways int) *plruVictimFinder {
	return &plruVictimFinder{ways: ways, tree: make(map[int]uint64)}
}

// isPow2 reports whether v is a power of two.
func isPow2(v int) bool { return v > 0 && v&(v-1) == 0 }

// Touch marks the way of block as most recently used.
func (p *plruVictimFinder) Touch(block *akitacache.Block) {
	if !isPow2(p.ways) || p.ways < 2 {
		return
	}
	bits := p.tree[block.SetID]

	// Walk from the root, flipping each node to point away from the
	// visited leaf.
	node := 0
	lo, hi := 0, p.ways
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if block.WayID < mid {
			bits |= 1 << node // point right
			node = 2*node + 1
			hi = mid
		} else {
			bits &^= 1 << node // point left
			node = 2*node + 2
			lo = mid
		}
	}
	p.tree[block.SetID] = bits
}

// FindVictim implements the Akita VictimFinder interface. Invalid ways
// win outright; otherwise the PLRU tree selects the victim.
func (p *plruVictimFinder) FindVictim(set *akitacache.Set) *akitacache.Block {
	for _, block := range set.Blocks {
		if !block.IsValid {
			return block
		}
	}
	if len(set.Blocks) == 0 {
		return nil
	}
	if !isPow2(p.ways) || p.ways < 2 {
		return set.Blocks[0]
	}

	bits := p.tree[set.Blocks[0].SetID]
	node := 0
	lo, hi := 0, p.ways
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if bits&(1<<node) != 0 { // points right
			node = 2*node + 2
			lo = mid
		} else {
			node = 2*node + 1
			hi = mid
		}
	}
	return set.Blocks[lo]
}

// randomVictimFinder picks a pseudo-random valid way. A fixed-seed
// xorshift keeps runs reproducible.
type randomVictimFinder struct {
	state uint64
}

func newRandomVictimFinder() *randomVictimFinder {
	return &randomVictimFinder{state: 0x9e3779b97f4a7c15}
}

func (r *randomVictimFinder) next() uint64 {
	r.state ^= r.state << 13
	r.state ^= r.state >> 7
	r.state ^= r.state << 17
	return r.state
}

// FindVictim implements the Akita VictimFinder interface.
func (r *randomVictimFinder) FindVictim(set *akitacache.Set) *akitacache.Block {
	for _, block := range set.Blocks {
		if !block.IsValid {
			return block
		}
	}
	if len(set.Blocks) == 0 {
		return nil
	}
	return set.Blocks[r.next()%uint64(len(set.Blocks))]
}
