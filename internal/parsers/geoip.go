package parsers

import (
	"net"
	"sync"

	"github.com/oschwald/maxminddb-golang"
	"github.com/rs/zerolog/log"

	"github.com/netguardpro/netguard/internal/netutil"
)

// GeoIP resolves non-private destination addresses to a country code,
// caching results for the life of the process (§4.2: "results are
// cached per-address for the lifetime of the process"). It is optional:
// a nil *GeoIP (no database configured) makes every lookup a no-op.
type GeoIP struct {
	reader *maxminddb.Reader

	mu    sync.RWMutex
	cache map[string]string
}

// OpenGeoIP opens a MaxMind-format country database at path. An empty
// path disables GeoIP enrichment entirely.
func OpenGeoIP(path string) (*GeoIP, error) {
	if path == "" {
		return nil, nil
	}
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &GeoIP{reader: reader, cache: make(map[string]string)}, nil
}

// Close releases the underlying mmap'd database.
func (g *GeoIP) Close() error {
	if g == nil {
		return nil
	}
	return g.reader.Close()
}

// Country returns an ISO country code for addr, or "" if addr is local,
// multicast, unparseable, or no database is configured. Benign traffic
// never triggers an external lookup, per §4.2.
func (g *GeoIP) Country(addr string) string {
	if g == nil || netutil.IsLocal(addr) {
		return ""
	}

	g.mu.RLock()
	if cached, ok := g.cache[addr]; ok {
		g.mu.RUnlock()
		return cached
	}
	g.mu.RUnlock()

	ip := net.ParseIP(addr)
	if ip == nil {
		return ""
	}

	var record struct {
		Country struct {
			ISOCode string `maxminddb:"iso_code"`
		} `maxminddb:"country"`
	}
	if err := g.reader.Lookup(ip, &record); err != nil {
		log.Debug().Err(err).Str("ip", addr).Msg("geoip lookup failed")
		return ""
	}

	g.mu.Lock()
	g.cache[addr] = record.Country.ISOCode
	g.mu.Unlock()
	return record.Country.ISOCode
}
