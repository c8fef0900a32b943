package filterstore

import "fmt"

// DebugBloom returns one line per layer: bytes, bits, hashes, size — the
// field set rebloom.c's debug string builder reports (spec §12).
func (ks *Keyspace) DebugBloom(key string) ([]string, error) {
	e, err := ks.bloomEntry(key, "bf.debug")
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	layers := e.bloom.Layers()
	lines := make([]string, 0, len(layers))
	for i, l := range layers {
		lines = append(lines, fmt.Sprintf(
			"layer %d: bytes=%d bits=%d hashes=%d size=%d",
			i, (l.Bits()+7)/8, l.Bits(), l.Hashes(), l.Size(),
		))
	}
	return lines, nil
}

// DebugCuckoo returns one line per sub-filter reporting occupied slot count
// against total capacity (spec §12).
func (ks *Keyspace) DebugCuckoo(key string) ([]string, error) {
	e, err := ks.cuckooEntry(key, "cf.debug")
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	subFilters := e.cuckoo.SubFilters()
	lines := make([]string, 0, len(subFilters))
	for i, sf := range subFilters {
		raw := sf.RawBytes()
		occupied := 0
		for _, b := range raw {
			if b != 0 {
				occupied++
			}
		}
		lines = append(lines, fmt.Sprintf(
			"subfilter %d: occupied=%d capacity=%d",
			i, occupied, len(raw),
		))
	}
	return lines, nil
}

// Present implements the "filter present" check CFInfo/CF.DEBUG need: true
// iff key exists and holds a cuckoo filter. This replaces rebloom.c's
// CFInfo status-token comparison bug (spec §9, §12) with a direct,
// unambiguous existence check.
func (ks *Keyspace) Present(key string, kind Kind) bool {
	k, ok := ks.KindOf(key)
	return ok && k == kind
}
