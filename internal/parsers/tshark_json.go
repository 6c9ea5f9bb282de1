package parsers

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// tsharkField is the subset of tshark's `-T json` output this package
// projects into PacketRecord/TsharkRecord rows. tshark's actual JSON is
// deeply nested under `_source.layers`; only the fields NetGuard Pro
// cares about are extracted here.
type tsharkFrame struct {
	Source struct {
		Layers struct {
			FrameTimeEpoch []string `json:"frame.time_epoch"`
			FrameLen       []string `json:"frame.len"`
			IPSrc          []string `json:"ip.src"`
			IPDst          []string `json:"ip.dst"`
			IPTTL          []string `json:"ip.ttl"`
			TCPSrcPort     []string `json:"tcp.srcport"`
			TCPDstPort     []string `json:"tcp.dstport"`
			TCPFlagsSyn    []string `json:"tcp.flags.syn"`
			TCPFlagsAck    []string `json:"tcp.flags.ack"`
			TCPFlagsFin    []string `json:"tcp.flags.fin"`
			UDPSrcPort     []string `json:"udp.srcport"`
			UDPDstPort     []string `json:"udp.dstport"`
			HTTPHost       []string `json:"http.host"`
			HTTPMethod     []string `json:"http.request.method"`
			HTTPURI        []string `json:"http.request.uri"`
			DNSQuery       []string `json:"dns.qry.name"`
			TLSSNI         []string `json:"tls.handshake.extensions_server_name"`
			FrameProtocols []string `json:"frame.protocols"`
		} `json:"layers"`
	} `json:"_source"`
}

// runTsharkJSON invokes tshark against a PCAP file (or a live interface
// when durationSecs > 0) and decodes its `-T json` array output.
func runTsharkJSON(ctx context.Context, iface, pcapFile string, durationSecs int) ([]tsharkFrame, error) {
	args := []string{"-T", "json"}
	if pcapFile != "" {
		args = append(args, "-r", pcapFile)
	} else {
		args = append(args, "-i", iface, "-a", fmt.Sprintf("duration:%d", durationSecs))
	}

	cmd := exec.CommandContext(ctx, "tshark", args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("run tshark: %w", err)
	}

	var frames []tsharkFrame
	if err := json.Unmarshal(out, &frames); err != nil {
		return nil, fmt.Errorf("decode tshark json: %w", err)
	}
	return frames, nil
}

func firstOr(vals []string, fallback string) string {
	if len(vals) == 0 {
		return fallback
	}
	return vals[0]
}

func firstIntOr(vals []string, fallback int) int {
	if len(vals) == 0 {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(vals[0]))
	if err != nil {
		return fallback
	}
	return n
}

func frameTimestamp(vals []string) time.Time {
	if len(vals) == 0 {
		return time.Now().UTC()
	}
	epoch, err := strconv.ParseFloat(strings.TrimSpace(vals[0]), 64)
	if err != nil {
		return time.Now().UTC()
	}
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

func frameProtocol(protocols []string) string {
	p := firstOr(protocols, "")
	switch {
	case strings.Contains(p, "tcp"):
		return "TCP"
	case strings.Contains(p, "udp"):
		return "UDP"
	case strings.Contains(p, "icmp"):
		return "ICMP"
	default:
		return "OTHER"
	}
}

func frameSrcPort(f tsharkFrame) int {
	if p := firstIntOr(f.Source.Layers.TCPSrcPort, -1); p >= 0 {
		return p
	}
	return firstIntOr(f.Source.Layers.UDPSrcPort, 0)
}

func frameDstPort(f tsharkFrame) int {
	if p := firstIntOr(f.Source.Layers.TCPDstPort, -1); p >= 0 {
		return p
	}
	return firstIntOr(f.Source.Layers.UDPDstPort, 0)
}
