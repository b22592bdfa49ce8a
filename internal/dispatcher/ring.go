package dispatcher

import (
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

const defaultReplicas = 64

// ring is an immutable consistent-hash ring over dispatcher addresses.
type ring struct {
	hashes []uint64
	owners map[uint64]string
	size   int
}

func newRing(addrs []string, replicas int) *ring {
	if replicas < 1 {
		replicas = defaultReplicas
	}
	r := &ring{
		hashes: make([]uint64, 0, len(addrs)*replicas),
		owners: make(map[uint64]string, len(addrs)*replicas),
		size:   len(addrs),
	}
	for _, addr := range addrs {
		for v := 0; v < replicas; v++ {
			h := xxhash.Sum64String(addr + "#" + strconv.Itoa(v))
			if _, taken := r.owners[h]; taken {
				continue
			}
			r.owners[h] = addr
			r.hashes = append(r.hashes, h)
		}
	}
	sort.Slice(r.hashes, func(i, j int) bool { return r.hashes[i] < r.hashes[j] })
	return r
}

// walk visits distinct owners clockwise from key's position until visit
// returns true.
func (r *ring) walk(key string, visit func(addr string) bool) {
	if len(r.hashes) == 0 {
		return
	}
	h := xxhash.Sum64String(key)
	start := sort.Search(len(r.hashes), func(i int) bool { return r.hashes[i] >= h })

	seen := make(map[string]struct{}, r.size)
	for n := 0; n < len(r.hashes) && len(seen) < r.size; n++ {
		addr := r.owners[r.hashes[(start+n)%len(r.hashes)]]
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		if visit(addr) {
			return
		}
	}
}
