package parsers

import (
	"strconv"
	"strings"
	"time"
)

// ParseNethogs parses the tab-separated lines produced by `nethogs -t`
// (trace mode), one line per process per refresh:
//
//	firefox/4821/1000/192.168.1.10	128.45	32.11
//
// program/pid/uid/localip, sent KB/sec, received KB/sec (§4.2: short
// bounded run, no long-lived subprocess).
func ParseNethogs(output string) []Record {
	var records []Record
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Refreshing") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			continue
		}
		proc, pid, localIP := parseNethogsIdentity(fields[0])
		sentKBs, _ := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		recvKBs, _ := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)

		records = append(records, NethogsRecord{
			Ts:            time.Now().UTC(),
			ProcessName:   proc,
			PID:           pid,
			LocalIP:       localIP,
			BytesSent:     int64(sentKBs * 1024),
			BytesReceived: int64(recvKBs * 1024),
		})
	}
	return records
}

func parseNethogsIdentity(s string) (proc string, pid int, localIP string) {
	parts := strings.Split(s, "/")
	if len(parts) < 4 {
		return s, 0, ""
	}
	localIP = parts[len(parts)-1]
	uid := len(parts) - 2
	pidIdx := uid - 1
	pid, _ = strconv.Atoi(parts[pidIdx])
	proc = strings.Join(parts[:pidIdx], "/")
	return proc, pid, localIP
}
