// Package devices implements the Device Registry (C6): the continuous
// correlator that turns ARP-cache neighbours and observed traffic into
// the canonical `devices` table (§4.5).
package devices

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netguardpro/netguard/internal/netutil"
	"github.com/netguardpro/netguard/internal/oui"
	"github.com/netguardpro/netguard/internal/registry"
	"github.com/netguardpro/netguard/internal/store"
)

// Registry runs the C6 loop.
type Registry struct {
	Store *store.Store

	// ptrCache holds reverse-DNS results for the process lifetime,
	// including failures as "" (§4.5: "failures cached as null") so an
	// unreachable host isn't retried every 30s cycle.
	ptrMu    sync.Mutex
	ptrCache map[string]string
}

func New(s *store.Store) *Registry {
	return &Registry{Store: s, ptrCache: make(map[string]string)}
}

// Neighbour is one (IP, MAC) pair read from the OS ARP cache.
type Neighbour struct {
	IP  string
	MAC string
}

// Cycle runs one ARP-scan + traffic-derived + enrichment pass.
func (r *Registry) Cycle(ctx context.Context) error {
	neighbours, err := ReadARPCache()
	if err != nil {
		log.Warn().Err(err).Msg("device registry: arp cache scan failed, continuing with traffic-derived IPs only")
	}

	for _, n := range neighbours {
		if err := r.upsertWithMAC(ctx, n.IP, n.MAC); err != nil {
			log.Error().Err(err).Str("ip", n.IP).Msg("device registry: upsert from arp cache failed")
		}
	}

	localIPs, err := r.trafficDerivedLocalIPs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("device registry: traffic scan failed")
	}
	for ip := range localIPs {
		if err := r.upsertWithMAC(ctx, ip, ""); err != nil {
			log.Error().Err(err).Str("ip", ip).Msg("device registry: upsert from traffic failed")
		}
	}
	return nil
}

// ReadARPCache parses /proc/net/arp for (IP, MAC) pairs of reachable
// neighbours. Incomplete entries (MAC 00:00:00:00:00:00) are skipped.
func ReadARPCache() ([]Neighbour, error) {
	f, err := os.Open("/proc/net/arp")
	if err != nil {
		return nil, fmt.Errorf("open /proc/net/arp: %w", err)
	}
	defer f.Close()

	var out []Neighbour
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue // header line
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		ip, mac := fields[0], fields[3]
		if mac == "00:00:00:00:00:00" || mac == "" {
			continue
		}
		out = append(out, Neighbour{IP: ip, MAC: strings.ToUpper(mac)})
	}
	return out, scanner.Err()
}

// trafficDerivedLocalIPs collects distinct private-range IPs seen as src
// or dest in the latest tcpdump/tshark tables (§4.5 step 3).
func (r *Registry) trafficDerivedLocalIPs(ctx context.Context) (map[string]struct{}, error) {
	result := make(map[string]struct{})
	for _, tool := range []registry.Tool{registry.ToolTcpdump, registry.ToolTshark} {
		table, err := registry.Latest(ctx, r.Store.DB(), tool)
		if err != nil {
			return result, err
		}
		if table == "" {
			continue
		}
		rows, err := r.Store.DB().QueryContext(ctx, fmt.Sprintf(`SELECT src_ip, dest_ip FROM %q`, table))
		if err != nil {
			return result, fmt.Errorf("scan %s: %w", table, err)
		}
		for rows.Next() {
			var src, dest sql.NullString
			if err := rows.Scan(&src, &dest); err != nil {
				rows.Close()
				return result, err
			}
			for _, ip := range []string{src.String, dest.String} {
				if ip != "" && netutil.IsPrivate(ip) {
					result[ip] = struct{}{}
				}
			}
		}
		rows.Close()
	}
	return result, nil
}

// upsertWithMAC inserts or updates a devices row, preferring a non-null
// MAC and enriching vendor/hostname/category (§4.5 steps 2 and 4).
func (r *Registry) upsertWithMAC(ctx context.Context, ip, mac string) error {
	if ip == "" {
		return nil
	}
	now := time.Now().UTC()

	return r.Store.WithTx(ctx, func(tx *sql.Tx) error {
		var existingMAC, existingHostname sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT mac_address, hostname FROM devices WHERE ip_address = ?`, ip,
		).Scan(&existingMAC, &existingHostname)

		if err == sql.ErrNoRows {
			return r.insertNewDevice(ctx, tx, ip, mac, now)
		}
		if err != nil {
			return fmt.Errorf("lookup device %s: %w", ip, err)
		}

		finalMAC := existingMAC.String
		if mac != "" {
			finalMAC = mac // prefer non-null, freshest scan wins when both present
		}

		vendor := oui.Lookup(finalMAC)
		hostname := existingHostname.String
		if hostname == "" {
			hostname = r.reverseDNS(ip)
		}
		deviceType, category := oui.Categorize(hostname, vendor)

		_, err = tx.ExecContext(ctx, `
			UPDATE devices SET
				mac_address = ?, hostname = ?, vendor = ?,
				device_type = CASE WHEN device_type = 'Unknown' THEN ? ELSE device_type END,
				device_category = CASE WHEN device_category = 'Unknown' THEN ? ELSE device_category END,
				last_seen = ?
			WHERE ip_address = ?`,
			nullIfEmpty(finalMAC), nullIfEmpty(hostname), nullIfEmpty(vendor),
			deviceType, category, now, ip,
		)
		return err
	})
}

func (r *Registry) insertNewDevice(ctx context.Context, tx *sql.Tx, ip, mac string, now time.Time) error {
	vendor := oui.Lookup(mac)
	hostname := r.reverseDNS(ip)
	deviceType, category := oui.Categorize(hostname, vendor)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO devices (ip_address, mac_address, hostname, vendor, device_type, device_category,
			security_score, is_trusted, first_seen, last_seen, total_packets, total_bytes)
		VALUES (?, ?, ?, ?, ?, ?, 100, 0, ?, ?, 0, 0)`,
		ip, nullIfEmpty(mac), nullIfEmpty(hostname), nullIfEmpty(vendor), deviceType, category, now, now,
	)
	return err
}

const reverseDNSTimeout = 2 * time.Second

func (r *Registry) reverseDNS(ip string) string {
	r.ptrMu.Lock()
	if name, cached := r.ptrCache[ip]; cached {
		r.ptrMu.Unlock()
		return name
	}
	r.ptrMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), reverseDNSTimeout)
	defer cancel()

	var name string
	if names, err := net.DefaultResolver.LookupAddr(ctx, ip); err == nil && len(names) > 0 {
		name = strings.TrimSuffix(names[0], ".")
	}

	r.ptrMu.Lock()
	r.ptrCache[ip] = name
	r.ptrMu.Unlock()
	return name
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
