package parsers

import (
	"strconv"
	"strings"
	"time"
)

// ParseHTTPry consumes complete lines of httpry's tab-separated log
// format: timestamp, source-ip, dest-ip, direction, method, host,
// request-uri, http-version, status-code, reason-phrase. A trailing
// partial line (no newline yet) is left for the next cycle (§4.2).
func ParseHTTPry(chunk []byte, basePos int64) ([]Record, int64) {
	text := string(chunk)
	lastNewline := strings.LastIndexByte(text, '\n')
	if lastNewline < 0 {
		return nil, basePos // no complete line yet
	}

	complete := text[:lastNewline+1]
	var records []Record
	for _, line := range strings.Split(strings.TrimRight(complete, "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if rec, ok := parseHTTPryLine(line); ok {
			records = append(records, rec)
		}
	}
	return records, basePos + int64(len(complete))
}

func parseHTTPryLine(line string) (Record, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) < 9 {
		return nil, false
	}
	srcIP := fields[1]
	destIP := fields[2]
	method := fields[4]
	host := fields[5]
	uri := fields[6]
	statusCode, _ := strconv.Atoi(strings.TrimSpace(fields[8]))

	score, suspicious := HTTPThreat(destIP, statusCode)
	return HTTPryRecord{
		Ts:           time.Now().UTC(),
		SrcIP:        srcIP,
		DestIP:       destIP,
		Method:       method,
		Host:         host,
		URI:          uri,
		UserAgent:    "",
		StatusCode:   statusCode,
		ThreatScore:  score,
		IsSuspicious: suspicious,
	}, true
}
