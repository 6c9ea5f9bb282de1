package parsers

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/netguardpro/netguard/internal/netutil"
)

// ParseArgus orchestrates the two-step argus workaround from §4.2: a
// capture step has already produced argusFile (owned by the collector's
// Capture Runner), so this parser just runs `ra` against it and projects
// the flow summary into ArgusRecord rows.
func ParseArgus(ctx context.Context, argusFile string) ([]Record, error) {
	cmd := exec.CommandContext(ctx, "ra", "-n", "-c", ",",
		"-s", "stime,saddr,sport,daddr,dport,proto,pkts,bytes,dur,state",
		"-r", argusFile)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("run ra: %w", err)
	}

	var records []Record
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if rec, ok := parseRaLine(line); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func parseRaLine(line string) (Record, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < 10 {
		return nil, false
	}
	srcPort, _ := strconv.Atoi(strings.TrimSpace(fields[2]))
	destPort, _ := strconv.Atoi(strings.TrimSpace(fields[4]))
	packets, _ := strconv.ParseInt(strings.TrimSpace(fields[6]), 10, 64)
	bytes, _ := strconv.ParseInt(strings.TrimSpace(fields[7]), 10, 64)
	durSecs, _ := strconv.ParseFloat(strings.TrimSpace(fields[8]), 64)
	destIP := strings.TrimSpace(fields[3])

	// high-byte-volume flows to non-local destinations are surfaced the
	// same way the excess-traffic vulnerability check treats them.
	score := 0
	suspicious := false
	if !isEmpty(destIP) && !netutil.IsLocal(destIP) && bytes > 5_000_000 {
		score, suspicious = 20, true
	}

	return ArgusRecord{
		Ts:           time.Now().UTC(),
		SrcIP:        strings.TrimSpace(fields[1]),
		DestIP:       destIP,
		SrcPort:      srcPort,
		DestPort:     destPort,
		Protocol:     strings.ToUpper(strings.TrimSpace(fields[5])),
		Packets:      packets,
		Bytes:        bytes,
		DurationMs:   int64(durSecs * 1000),
		FlowState:    strings.TrimSpace(fields[9]),
		ThreatScore:  score,
		IsSuspicious: suspicious,
	}, true
}

func isEmpty(s string) bool { return strings.TrimSpace(s) == "" }
