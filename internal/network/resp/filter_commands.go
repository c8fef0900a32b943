package resp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hypercache/internal/cluster"
	"hypercache/internal/filter"
	"hypercache/internal/filterstore"
)

// publishFilterEvent broadcasts a filter mutation to replica nodes over the
// same EventBus/EventDataOperation path handleSet/handleDel already use
// (SPEC_FULL.md §11), so the gossip stack replicates BF.*/CF.* mutations
// instead of sitting idle behind only string commands.
func (s *Server) publishFilterEvent(operation, key string, items []string) {
	if s.coord == nil || s.coord.GetEventBus() == nil {
		return
	}
	eventBus := s.coord.GetEventBus()
	event := cluster.ClusterEvent{
		Type:      cluster.EventDataOperation,
		NodeID:    s.coord.GetLocalNodeID(),
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"operation": operation,
			"key":       key,
			"items":     items,
		},
	}
	eventBus.Publish(context.Background(), event)
}

// filterErrorReply maps a filter.Error's Kind to the exact RESP error
// string spec §6 lists, rather than the generic "ERR "+err.Error()
// wrapping processCommand applies to handler errors (spec §7).
func filterErrorReply(err error) []byte {
	f := NewFormatter()
	fe, ok := err.(*filter.Error)
	if !ok {
		return f.FormatError(fmt.Sprintf("ERR %s", err.Error()))
	}
	switch fe.Kind {
	case filter.KindNotFound:
		return f.FormatError("ERR not found")
	case filter.KindAlreadyExists:
		return f.FormatError("ERR item exists")
	case filter.KindWrongType:
		return f.FormatError("WRONGTYPE Operation against a key holding the wrong kind of filter")
	case filter.KindBadArgument:
		if strings.Contains(fe.Message, "error rate") {
			return f.FormatError("ERR bad error rate")
		}
		return f.FormatError("ERR bad capacity")
	case filter.KindCapacity:
		return f.FormatError("Filter is full")
	case filter.KindAllocationError:
		return f.FormatError("Couldn't create filter")
	case filter.KindEncodingError:
		if strings.Contains(fe.Op, "header") {
			return f.FormatError("Invalid header")
		}
		return f.FormatError("Invalid position")
	default:
		return f.FormatError(fmt.Sprintf("ERR %s", fe.Error()))
	}
}

// occupiedByString reports whether key already holds a plain string value
// in the main keyspace, so BF.RESERVE/CF.RESERVE (and the reserve-on-absent
// path of BF.ADD/CF.ADD) can honor the shared WRONGTYPE contract across the
// two keyspaces (SPEC_FULL.md overview).
func (s *Server) occupiedByString(key string) bool {
	_, err := s.store.Get(key)
	return err == nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func parseCursor(arg string) (uint64, error) {
	return strconv.ParseUint(arg, 10, 64)
}

// --- Bloom filter handlers ---

func (s *Server) handleBFReserve(cmd Command) ([]byte, error) {
	if len(cmd.Args) != 3 {
		return nil, fmt.Errorf("wrong number of arguments for BF.RESERVE")
	}
	key := cmd.Args[0]
	errRate, convErr := strconv.ParseFloat(cmd.Args[1], 64)
	if convErr != nil {
		return filterErrorReply(&filter.Error{Kind: filter.KindBadArgument, Message: "bad error rate"}), nil
	}
	capacity, convErr := strconv.ParseUint(cmd.Args[2], 10, 64)
	if convErr != nil {
		return filterErrorReply(&filter.Error{Kind: filter.KindBadArgument, Message: "bad capacity"}), nil
	}

	if s.occupiedByString(key) {
		return filterErrorReply(&filter.Error{Kind: filter.KindWrongType}), nil
	}

	if err := s.filters.ReserveBloom(key, capacity, errRate, filter.DefaultGrowth, filter.DefaultTightening); err != nil {
		return filterErrorReply(err), nil
	}
	return NewFormatter().FormatSimpleString("OK"), nil
}

func (s *Server) bloomDefaults() filterstore.DefaultBloomParams {
	return filterstore.DefaultBloomParams{
		Entries: s.bloomDefaultEntries, ErrorRate: s.bloomDefaultErrorRate,
		Growth: filter.DefaultGrowth, Tightening: filter.DefaultTightening,
	}
}

func (s *Server) handleBFAdd(cmd Command) ([]byte, error) {
	if len(cmd.Args) != 2 {
		return nil, fmt.Errorf("wrong number of arguments for BF.ADD")
	}
	key := cmd.Args[0]
	if s.occupiedByString(key) && !s.filters.Exists(key) {
		return filterErrorReply(&filter.Error{Kind: filter.KindWrongType}), nil
	}
	added, err := s.filters.AddBloom(key, []byte(cmd.Args[1]), s.bloomDefaults())
	if err != nil {
		return filterErrorReply(err), nil
	}
	if added {
		s.publishFilterEvent("BF_ADD", key, []string{cmd.Args[1]})
	}
	return NewFormatter().FormatInteger(boolToInt(added)), nil
}

func (s *Server) handleBFMAdd(cmd Command) ([]byte, error) {
	if len(cmd.Args) < 2 {
		return nil, fmt.Errorf("wrong number of arguments for BF.MADD")
	}
	key := cmd.Args[0]
	if s.occupiedByString(key) && !s.filters.Exists(key) {
		return filterErrorReply(&filter.Error{Kind: filter.KindWrongType}), nil
	}
	items := make([][]byte, len(cmd.Args)-1)
	for i, a := range cmd.Args[1:] {
		items[i] = []byte(a)
	}
	results, err := s.filters.MAddBloom(key, items, s.bloomDefaults())
	if err != nil {
		return filterErrorReply(err), nil
	}
	var added []string
	for i, r := range results {
		if r {
			added = append(added, cmd.Args[1+i])
		}
	}
	if len(added) > 0 {
		s.publishFilterEvent("BF_MADD", key, added)
	}
	f := NewFormatter()
	elements := make([][]byte, len(results))
	for i, r := range results {
		elements[i] = f.FormatInteger(boolToInt(r))
	}
	return f.FormatArray(elements), nil
}

func (s *Server) handleBFExists(cmd Command) ([]byte, error) {
	if len(cmd.Args) != 2 {
		return nil, fmt.Errorf("wrong number of arguments for BF.EXISTS")
	}
	exists, err := s.filters.ExistsBloom(cmd.Args[0], []byte(cmd.Args[1]))
	if err != nil {
		return filterErrorReply(err), nil
	}
	return NewFormatter().FormatInteger(boolToInt(exists)), nil
}

func (s *Server) handleBFMExists(cmd Command) ([]byte, error) {
	if len(cmd.Args) < 2 {
		return nil, fmt.Errorf("wrong number of arguments for BF.MEXISTS")
	}
	items := make([][]byte, len(cmd.Args)-1)
	for i, a := range cmd.Args[1:] {
		items[i] = []byte(a)
	}
	results, err := s.filters.MExistsBloom(cmd.Args[0], items)
	if err != nil {
		return filterErrorReply(err), nil
	}
	f := NewFormatter()
	elements := make([][]byte, len(results))
	for i, r := range results {
		elements[i] = f.FormatInteger(boolToInt(r))
	}
	return f.FormatArray(elements), nil
}

func (s *Server) handleBFDebug(cmd Command) ([]byte, error) {
	if len(cmd.Args) != 1 {
		return nil, fmt.Errorf("wrong number of arguments for BF.DEBUG")
	}
	lines, err := s.filters.DebugBloom(cmd.Args[0])
	if err != nil {
		return filterErrorReply(err), nil
	}
	f := NewFormatter()
	elements := make([][]byte, len(lines))
	for i, l := range lines {
		elements[i] = f.FormatBulkString(l)
	}
	return f.FormatArray(elements), nil
}

func (s *Server) handleBFScandump(cmd Command) ([]byte, error) {
	if len(cmd.Args) != 2 {
		return nil, fmt.Errorf("wrong number of arguments for BF.SCANDUMP")
	}
	cursor, convErr := parseCursor(cmd.Args[1])
	if convErr != nil {
		return filterErrorReply(&filter.Error{Kind: filter.KindEncodingError, Op: "position", Message: "bad cursor"}), nil
	}
	chunk, next, err := s.filters.EncodeChunkBloom(cmd.Args[0], cursor, filter.DefaultChunkBytes)
	if err != nil {
		return filterErrorReply(err), nil
	}
	f := NewFormatter()
	return f.FormatArray([][]byte{f.FormatInteger(int64(next)), f.FormatBulkBytes(chunk)}), nil
}

func (s *Server) handleBFLoadChunk(cmd Command) ([]byte, error) {
	if len(cmd.Args) != 3 {
		return nil, fmt.Errorf("wrong number of arguments for BF.LOADCHUNK")
	}
	key := cmd.Args[0]
	cursor, convErr := parseCursor(cmd.Args[1])
	if convErr != nil {
		return filterErrorReply(&filter.Error{Kind: filter.KindEncodingError, Op: "position", Message: "bad cursor"}), nil
	}
	data := []byte(cmd.Args[2])

	if cursor == 1 && !s.filters.Exists(key) {
		if err := s.filters.LoadHeaderBloom(key, data); err != nil {
			return filterErrorReply(err), nil
		}
		return NewFormatter().FormatSimpleString("OK"), nil
	}

	if _, err := s.filters.LoadChunkBloom(key, cursor, data); err != nil {
		return filterErrorReply(err), nil
	}
	return NewFormatter().FormatSimpleString("OK"), nil
}

// --- Cuckoo filter handlers ---

func (s *Server) handleCFReserve(cmd Command) ([]byte, error) {
	if len(cmd.Args) < 2 {
		return nil, fmt.Errorf("wrong number of arguments for CF.RESERVE")
	}
	key := cmd.Args[0]
	capacity, convErr := strconv.ParseUint(cmd.Args[1], 10, 64)
	if convErr != nil {
		return filterErrorReply(&filter.Error{Kind: filter.KindBadArgument, Message: "bad capacity"}), nil
	}

	// Optional BUCKETSIZE/MAXITERATIONS/EXPANSION trailing keyword args
	// (spec §12): accepted for compatibility, validated against the
	// compiled-in bucket-size constant since the persisted format depends
	// on it (spec §9).
	for i := 2; i+1 < len(cmd.Args); i += 2 {
		switch strings.ToUpper(cmd.Args[i]) {
		case "BUCKETSIZE":
			n, convErr := strconv.Atoi(cmd.Args[i+1])
			if convErr != nil || n != filter.CuckooBucketSize {
				return filterErrorReply(&filter.Error{Kind: filter.KindBadArgument, Message: "bad capacity"}), nil
			}
		case "MAXITERATIONS", "EXPANSION":
			if _, convErr := strconv.Atoi(cmd.Args[i+1]); convErr != nil {
				return filterErrorReply(&filter.Error{Kind: filter.KindBadArgument, Message: "bad capacity"}), nil
			}
		default:
			return nil, fmt.Errorf("syntax error")
		}
	}

	if s.occupiedByString(key) {
		return filterErrorReply(&filter.Error{Kind: filter.KindWrongType}), nil
	}

	if err := s.filters.ReserveCuckoo(key, capacity); err != nil {
		return filterErrorReply(err), nil
	}
	return NewFormatter().FormatSimpleString("OK"), nil
}

func cfCapacityArg(cmd Command, idx int) (uint64, error) {
	if len(cmd.Args) <= idx {
		return 0, nil
	}
	return strconv.ParseUint(cmd.Args[idx], 10, 64)
}

func (s *Server) handleCFAdd(cmd Command) ([]byte, error) {
	if len(cmd.Args) < 2 || len(cmd.Args) > 3 {
		return nil, fmt.Errorf("wrong number of arguments for CF.ADD")
	}
	key := cmd.Args[0]
	capacity, convErr := cfCapacityArg(cmd, 2)
	if convErr != nil {
		return filterErrorReply(&filter.Error{Kind: filter.KindBadArgument, Message: "bad capacity"}), nil
	}
	if s.occupiedByString(key) && !s.filters.Exists(key) {
		return filterErrorReply(&filter.Error{Kind: filter.KindWrongType}), nil
	}
	added, err := s.filters.AddCuckoo(key, []byte(cmd.Args[1]), capacity)
	if err != nil {
		return filterErrorReply(err), nil
	}
	if added {
		s.publishFilterEvent("CF_ADD", key, []string{cmd.Args[1]})
	}
	return NewFormatter().FormatInteger(boolToInt(added)), nil
}

func (s *Server) handleCFAddNX(cmd Command) ([]byte, error) {
	if len(cmd.Args) < 2 || len(cmd.Args) > 3 {
		return nil, fmt.Errorf("wrong number of arguments for CF.ADDNX")
	}
	key := cmd.Args[0]
	capacity, convErr := cfCapacityArg(cmd, 2)
	if convErr != nil {
		return filterErrorReply(&filter.Error{Kind: filter.KindBadArgument, Message: "bad capacity"}), nil
	}
	if s.occupiedByString(key) && !s.filters.Exists(key) {
		return filterErrorReply(&filter.Error{Kind: filter.KindWrongType}), nil
	}
	added, err := s.filters.AddNXCuckoo(key, []byte(cmd.Args[1]), capacity)
	if err != nil {
		return filterErrorReply(err), nil
	}
	if added {
		s.publishFilterEvent("CF_ADDNX", key, []string{cmd.Args[1]})
	}
	return NewFormatter().FormatInteger(boolToInt(added)), nil
}

func (s *Server) handleCFExists(cmd Command) ([]byte, error) {
	if len(cmd.Args) != 2 {
		return nil, fmt.Errorf("wrong number of arguments for CF.EXISTS")
	}
	exists, err := s.filters.ExistsCuckoo(cmd.Args[0], []byte(cmd.Args[1]))
	if err != nil {
		return filterErrorReply(err), nil
	}
	return NewFormatter().FormatInteger(boolToInt(exists)), nil
}

// handleCFMExists fixes rebloom.c's CFMExists_RedisCommand early-return bug
// by iterating every argument, never stopping at the first miss (spec §9,
// §12) — enforced inside filterstore.Keyspace.MExistsCuckoo.
func (s *Server) handleCFMExists(cmd Command) ([]byte, error) {
	if len(cmd.Args) < 2 {
		return nil, fmt.Errorf("wrong number of arguments for CF.MEXISTS")
	}
	items := make([][]byte, len(cmd.Args)-1)
	for i, a := range cmd.Args[1:] {
		items[i] = []byte(a)
	}
	results, err := s.filters.MExistsCuckoo(cmd.Args[0], items)
	if err != nil {
		return filterErrorReply(err), nil
	}
	f := NewFormatter()
	elements := make([][]byte, len(results))
	for i, r := range results {
		elements[i] = f.FormatInteger(boolToInt(r))
	}
	return f.FormatArray(elements), nil
}

func (s *Server) handleCFCount(cmd Command) ([]byte, error) {
	if len(cmd.Args) != 2 {
		return nil, fmt.Errorf("wrong number of arguments for CF.COUNT")
	}
	count, err := s.filters.CountCuckoo(cmd.Args[0], []byte(cmd.Args[1]))
	if err != nil {
		return filterErrorReply(err), nil
	}
	return NewFormatter().FormatInteger(int64(count)), nil
}

func (s *Server) handleCFDel(cmd Command) ([]byte, error) {
	if len(cmd.Args) != 2 {
		return nil, fmt.Errorf("wrong number of arguments for CF.DEL")
	}
	deleted, err := s.filters.DeleteCuckoo(cmd.Args[0], []byte(cmd.Args[1]))
	if err != nil {
		return filterErrorReply(err), nil
	}
	if deleted {
		s.publishFilterEvent("CF_DEL", cmd.Args[0], []string{cmd.Args[1]})
	}
	return NewFormatter().FormatInteger(boolToInt(deleted)), nil
}

func (s *Server) handleCFScandump(cmd Command) ([]byte, error) {
	if len(cmd.Args) != 2 {
		return nil, fmt.Errorf("wrong number of arguments for CF.SCANDUMP")
	}
	cursor, convErr := parseCursor(cmd.Args[1])
	if convErr != nil {
		return filterErrorReply(&filter.Error{Kind: filter.KindEncodingError, Op: "position", Message: "bad cursor"}), nil
	}
	chunk, next, err := s.filters.EncodeChunkCuckoo(cmd.Args[0], cursor, filter.DefaultChunkBytes)
	if err != nil {
		return filterErrorReply(err), nil
	}
	f := NewFormatter()
	return f.FormatArray([][]byte{f.FormatInteger(int64(next)), f.FormatBulkBytes(chunk)}), nil
}

func (s *Server) handleCFLoadChunk(cmd Command) ([]byte, error) {
	if len(cmd.Args) != 3 {
		return nil, fmt.Errorf("wrong number of arguments for CF.LOADCHUNK")
	}
	cursor, convErr := parseCursor(cmd.Args[1])
	if convErr != nil {
		return filterErrorReply(&filter.Error{Kind: filter.KindEncodingError, Op: "position", Message: "bad cursor"}), nil
	}
	if _, err := s.filters.LoadChunkCuckoo(cmd.Args[0], cursor, []byte(cmd.Args[2])); err != nil {
		return filterErrorReply(err), nil
	}
	return NewFormatter().FormatSimpleString("OK"), nil
}

func (s *Server) handleCFLoadHdr(cmd Command) ([]byte, error) {
	if len(cmd.Args) != 2 {
		return nil, fmt.Errorf("wrong number of arguments for CF.LOADHDR")
	}
	if err := s.filters.LoadHeaderCuckoo(cmd.Args[0], []byte(cmd.Args[1])); err != nil {
		return filterErrorReply(err), nil
	}
	return NewFormatter().FormatSimpleString("OK"), nil
}

// handleCFDebug implements CFInfo/CF.DEBUG's "filter present" semantics
// directly via filterstore.Keyspace.Present, fixing rebloom.c's status-token
// comparison bug (spec §9, §12).
func (s *Server) handleCFDebug(cmd Command) ([]byte, error) {
	if len(cmd.Args) != 1 {
		return nil, fmt.Errorf("wrong number of arguments for CF.DEBUG")
	}
	if !s.filters.Present(cmd.Args[0], filterstore.KindCuckoo) {
		return filterErrorReply(&filter.Error{Kind: filter.KindNotFound}), nil
	}
	lines, err := s.filters.DebugCuckoo(cmd.Args[0])
	if err != nil {
		return filterErrorReply(err), nil
	}
	f := NewFormatter()
	elements := make([][]byte, len(lines))
	for i, l := range lines {
		elements[i] = f.FormatBulkString(l)
	}
	return f.FormatArray(elements), nil
}
