package parsers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// StableFileAge is the minimum duration a PCAP file's size must remain
// unchanged before a parser treats it as "released" by its writer (§4.2:
// "a file is eligible only when its size has been stable for >= 2s").
const StableFileAge = 2 * time.Second

// PendingPCAPFiles returns PCAP files in dir that are stable (unmodified
// for at least StableFileAge) and not already in alreadyProcessed.
func PendingPCAPFiles(dir string, alreadyProcessed func(name string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read capture dir: %w", err)
	}

	var pending []string
	now := time.Now()
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".pcap" {
			continue
		}
		if alreadyProcessed(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < StableFileAge {
			continue
		}
		pending = append(pending, e.Name())
	}
	sort.Strings(pending)
	return pending, nil
}

// ParseTcpdumpPCAP projects a tcpdump-rotated PCAP file's frames into
// PacketRecord rows via an offline tshark pass (§4.2 "PCAP file consumer").
func ParseTcpdumpPCAP(ctx context.Context, pcapPath string, geo *GeoIP) ([]Record, error) {
	frames, err := runTsharkJSON(ctx, "", pcapPath, 0)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(frames))
	for _, f := range frames {
		l := f.Source.Layers
		destIP := firstOr(l.IPDst, "")
		destPort := frameDstPort(f)
		ttl := firstIntOr(l.IPTTL, 0)
		syn := firstOr(l.TCPFlagsSyn, "0") == "1"
		ack := firstOr(l.TCPFlagsAck, "0") == "1"

		score, suspicious := PacketThreat(destIP, destPort, ttl, syn && !ack)
		records = append(records, PacketRecord{
			Ts:           frameTimestamp(l.FrameTimeEpoch),
			SrcIP:        firstOr(l.IPSrc, ""),
			DestIP:       destIP,
			SrcPort:      frameSrcPort(f),
			DestPort:     destPort,
			Protocol:     frameProtocol(l.FrameProtocols),
			Length:       firstIntOr(l.FrameLen, 0),
			TCPSyn:       syn,
			TCPAck:       ack,
			TCPFin:       firstOr(l.TCPFlagsFin, "0") == "1",
			TTL:          ttl,
			HTTPHost:     firstOr(l.HTTPHost, ""),
			DNSQuery:     firstOr(l.DNSQuery, ""),
			TLSSNI:       firstOr(l.TLSSNI, ""),
			ThreatScore:  score,
			IsSuspicious: suspicious,
			Country:      geo.Country(destIP),
		})
	}
	return records, nil
}
