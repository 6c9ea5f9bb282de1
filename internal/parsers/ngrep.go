package parsers

import (
	"strconv"
	"strings"
	"time"
)

// ParseNgrep consumes a chunk of ngrep output, delimited by blank lines
// (§4.2). Each entry's header line is of the form
// "T 192.168.1.5:54321 -> 93.184.216.34:80 [AP]" followed by payload
// lines. Returns records and the offset to resume from, trimmed to the
// last blank-line boundary so a partial trailing entry is reparsed.
func ParseNgrep(chunk []byte, basePos int64) ([]Record, int64) {
	text := string(chunk)
	entries := strings.Split(text, "\n\n")

	var records []Record
	consumed := 0
	lastBoundary := basePos
	for i, entry := range entries {
		isLast := i == len(entries)-1
		if isLast && !strings.HasSuffix(text, "\n\n") {
			// trailing partial entry: leave it for next cycle
			break
		}
		if rec, ok := parseNgrepEntry(entry); ok {
			records = append(records, rec)
		}
		consumed += len(entry) + 2
		lastBoundary = basePos + int64(consumed)
	}
	if lastBoundary > basePos+int64(len(chunk)) {
		lastBoundary = basePos + int64(len(chunk))
	}
	return records, lastBoundary
}

func parseNgrepEntry(entry string) (Record, bool) {
	lines := strings.Split(strings.TrimLeft(entry, "\n"), "\n")
	if len(lines) == 0 {
		return nil, false
	}
	header := lines[0]
	if !strings.HasPrefix(header, "T ") && !strings.HasPrefix(header, "U ") {
		return nil, false
	}
	proto := "TCP"
	if strings.HasPrefix(header, "U ") {
		proto = "UDP"
	}

	arrow := strings.Index(header, "->")
	if arrow < 0 {
		return nil, false
	}
	srcPart := strings.TrimSpace(header[2:arrow])
	destPart := header[arrow+2:]
	if br := strings.IndexByte(destPart, '['); br > 0 {
		destPart = destPart[:br]
	}
	destPart = strings.TrimSpace(destPart)

	srcIP, srcPort := splitHostPort(srcPart)
	destIP, destPort := splitHostPort(destPart)

	payload := ""
	if len(lines) > 1 {
		payload = strings.Join(lines[1:], " ")
		if len(payload) > 256 {
			payload = payload[:256]
		}
	}

	score, suspicious := NgrepThreat(destIP)
	return NgrepRecord{
		Ts:             time.Now().UTC(),
		SrcIP:          srcIP,
		DestIP:         destIP,
		SrcPort:        srcPort,
		DestPort:       destPort,
		Protocol:       proto,
		MatchedPattern: "", // populated by the collector from its configured ngrep filter
		PayloadExcerpt: payload,
		ThreatScore:    score,
		IsSuspicious:   suspicious,
	}, true
}

func splitHostPort(s string) (string, int) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return s, 0
	}
	port, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return s, 0
	}
	return s[:idx], port
}
