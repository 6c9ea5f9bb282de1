package parsers

import "context"

// ParseTsharkLiveWindow runs a live capture window on iface for
// windowSecs and projects the captured frames into TsharkRecord rows,
// including the HTTP/DNS/TLS fields tcpdump's offline pass doesn't
// extract (§4.3).
func ParseTsharkLiveWindow(ctx context.Context, iface string, windowSecs int, geo *GeoIP) ([]Record, error) {
	frames, err := runTsharkJSON(ctx, iface, "", windowSecs)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(frames))
	for _, f := range frames {
		l := f.Source.Layers
		destIP := firstOr(l.IPDst, "")
		destPort := frameDstPort(f)
		syn := firstOr(l.TCPFlagsSyn, "0") == "1"
		ack := firstOr(l.TCPFlagsAck, "0") == "1"
		ttl := firstIntOr(l.IPTTL, 0)

		score, suspicious := PacketThreat(destIP, destPort, ttl, syn && !ack)
		records = append(records, TsharkRecord{
			Ts:           frameTimestamp(l.FrameTimeEpoch),
			SrcIP:        firstOr(l.IPSrc, ""),
			DestIP:       destIP,
			SrcPort:      frameSrcPort(f),
			DestPort:     destPort,
			Protocol:     frameProtocol(l.FrameProtocols),
			Length:       firstIntOr(l.FrameLen, 0),
			HTTPMethod:   firstOr(l.HTTPMethod, ""),
			HTTPHost:     firstOr(l.HTTPHost, ""),
			HTTPURI:      firstOr(l.HTTPURI, ""),
			DNSQuery:     firstOr(l.DNSQuery, ""),
			TLSSNI:       firstOr(l.TLSSNI, ""),
			ThreatScore:  score,
			IsSuspicious: suspicious,
			Country:      geo.Country(destIP),
		})
	}
	return records, nil
}
