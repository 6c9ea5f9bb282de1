package parsers

import "context"

// ParseNetsniffPCAP is netsniff-ng's PCAP-consumer parser. It shares
// tcpdump's offline-tshark projection (§4.3: both are "PCAP + offline
// tshark") but is kept as a distinct entry point so the collector layer
// can log/label it under its own tool name and so a future divergence in
// netsniff-ng's ring-buffer naming doesn't require touching tcpdump's path.
func ParseNetsniffPCAP(ctx context.Context, pcapPath string, geo *GeoIP) ([]Record, error) {
	return ParseTcpdumpPCAP(ctx, pcapPath, geo)
}
