package parsers

import (
	"strconv"
	"strings"
	"time"
)

// ParseIftop parses the plain-text two-line-per-connection table produced
// by `iftop -t -s <windowSecs> -L <n>` (§4.2: short bounded run, no long
// -lived subprocess). Each connection occupies two lines:
//
//	192.168.1.10                     =>   93.184.216.34       1.2Kb  3.4Kb  5.1Kb
//	                                  <=                       0.8Kb  1.1Kb  2.0Kb
//
// Only the first (send) line of each pair carries the host pair; this
// parser keeps the send-direction rate and looks at the following
// receive-direction line captured inline in the same pairwise scan.
func ParseIftop(output string) []Record {
	lines := strings.Split(output, "\n")
	var records []Record
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !strings.Contains(line, "=>") {
			continue
		}
		srcIP, destIP, sendBps, ok := parseIftopSendLine(line)
		if !ok {
			continue
		}
		var recvBps float64
		if i+1 < len(lines) && strings.Contains(lines[i+1], "<=") {
			recvBps = parseIftopRate(lines[i+1])
		}
		records = append(records, IftopRecord{
			Ts:            time.Now().UTC(),
			SrcIP:         srcIP,
			DestIP:        destIP,
			BytesSent:     int64(sendBps / 8),
			BytesReceived: int64(recvBps / 8),
			BandwidthBps:  sendBps + recvBps,
		})
	}
	return records
}

func parseIftopSendLine(line string) (srcIP, destIP string, bps float64, ok bool) {
	idx := strings.Index(line, "=>")
	if idx < 0 {
		return "", "", 0, false
	}
	srcIP = strings.TrimSpace(line[:idx])
	rest := strings.TrimSpace(line[idx+2:])
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return "", "", 0, false
	}
	destIP = fields[0]
	bps = parseIftopRate(line)
	if srcIP == "" || destIP == "" {
		return "", "", 0, false
	}
	return srcIP, destIP, bps, true
}

func parseIftopRate(line string) float64 {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0
	}
	last := fields[len(fields)-1]
	return parseRateToken(last)
}

func parseRateToken(tok string) float64 {
	mult := 1.0
	switch {
	case strings.HasSuffix(tok, "Kb"):
		mult = 1000
		tok = strings.TrimSuffix(tok, "Kb")
	case strings.HasSuffix(tok, "Mb"):
		mult = 1_000_000
		tok = strings.TrimSuffix(tok, "Mb")
	case strings.HasSuffix(tok, "Gb"):
		mult = 1_000_000_000
		tok = strings.TrimSuffix(tok, "Gb")
	case strings.HasSuffix(tok, "b"):
		tok = strings.TrimSuffix(tok, "b")
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0
	}
	return v * mult
}
