package filter

// BloomChain is an ordered sequence of bloom layers implementing a scaling
// bloom filter: capacity grows geometrically (growth) and each new layer's
// error rate tightens by a multiplier (tightening), bounding the chain's
// aggregate false-positive rate to error0/(1-tightening).
type BloomChain struct {
	layers     []*BloomLayer
	size       uint64
	growth     float64
	tightening float64
}

const (
	DefaultGrowth     = 2.0
	DefaultTightening = 0.5
)

// NewBloomChain creates an empty chain. The first layer is allocated lazily
// on the first Add, sized from (initialEntries, initialError); see spec
// §3 BloomChain lifecycle ("created empty on first insert under a key").
func NewBloomChain(growth, tightening float64) *BloomChain {
	if growth <= 1 {
		growth = DefaultGrowth
	}
	if tightening <= 0 || tightening >= 1 {
		tightening = DefaultTightening
	}
	return &BloomChain{growth: growth, tightening: tightening}
}

// Check returns true iff any layer reports the item present.
func (c *BloomChain) Check(item []byte) bool {
	for _, l := range c.layers {
		if l.Check(item) {
			return true
		}
	}
	return false
}

// Add inserts item into the newest non-saturated layer, growing the chain
// if every existing layer is saturated. The bool return mirrors BloomLayer.Add
// for the layer actually written to (spec §4.C step 2-3).
func (c *BloomChain) Add(item []byte, initialEntries uint64, initialError float64) bool {
	if len(c.layers) == 0 {
		c.layers = append(c.layers, NewBloomLayer(initialEntries, initialError))
	} else if last := c.layers[len(c.layers)-1]; last.Saturated() {
		nextEntries := uint64(float64(last.entries) * c.growth)
		nextError := last.error * c.tightening
		c.layers = append(c.layers, NewBloomLayer(nextEntries, nextError))
	}

	newest := c.layers[len(c.layers)-1]
	result := newest.Add(item)
	c.size++
	return result
}

func (c *BloomChain) Layers() []*BloomLayer { return c.layers }
func (c *BloomChain) Size() uint64          { return c.size }
func (c *BloomChain) Growth() float64       { return c.growth }
func (c *BloomChain) Tightening() float64   { return c.tightening }

// NumFilters reports how many layers the chain currently holds.
func (c *BloomChain) NumFilters() int { return len(c.layers) }

// EstimatedMemoryUsage sums struct overhead and bit-vector payload bytes
// across every layer, per spec §5's MemUsage contract.
func (c *BloomChain) EstimatedMemoryUsage() uint64 {
	var total uint64
	for _, l := range c.layers {
		total += l.vec.Bytes()
		total += 64 // approximate per-layer struct overhead
	}
	return total + 64
}
