package parsers

import (
	"bufio"
	"strconv"
	"strings"
	"time"
)

// ParseP0f consumes a chunk of p0f's natural log format, delimited by
// ".-[ ... ]-" block headers (§4.2). It returns the records found plus
// the byte offset to resume from — trimmed back to the start of any
// trailing partial block so that block is reparsed next cycle.
func ParseP0f(chunk []byte, basePos int64) ([]Record, int64) {
	text := string(chunk)
	lines := strings.Split(text, "\n")

	var records []Record
	var block []string
	var blockStartByte int
	inBlock := false
	consumed := 0
	lastCompleteByte := basePos

	for _, line := range lines {
		lineLen := len(line) + 1 // account for the stripped '\n'
		if strings.HasPrefix(line, ".-[") {
			if inBlock {
				records = append(records, parseP0fBlock(block))
				lastCompleteByte = basePos + int64(consumed)
			}
			block = []string{line}
			blockStartByte = consumed
			inBlock = true
		} else if inBlock {
			block = append(block, line)
			if strings.HasPrefix(strings.TrimSpace(line), "`----") {
				records = append(records, parseP0fBlock(block))
				inBlock = false
				lastCompleteByte = basePos + int64(consumed) + int64(lineLen)
			}
		}
		consumed += lineLen
	}

	if !inBlock {
		lastCompleteByte = basePos + int64(len(chunk))
	}
	return records, lastCompleteByte
}

func parseP0fBlock(lines []string) Record {
	rec := P0fRecord{Ts: time.Now().UTC()}
	if len(lines) > 0 {
		header := lines[0]
		if i, j := strings.Index(header, "["), strings.LastIndex(header, "]"); i >= 0 && j > i {
			inner := strings.TrimSpace(header[i+1 : j])
			parts := strings.Split(inner, "->")
			if len(parts) == 2 {
				rec.SrcIP = ipOnly(strings.TrimSpace(parts[0]))
				destPart := strings.TrimSpace(parts[1])
				if sp := strings.IndexByte(destPart, ' '); sp > 0 {
					destPart = destPart[:sp]
				}
				rec.DestIP = ipOnly(destPart)
			}
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(strings.Join(lines, "\n")))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "|")
		line = strings.TrimSpace(line)
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		switch key {
		case "os":
			rec.OSGuess = val
		case "link":
			rec.LinkType = val
		case "dist":
			rec.Distance, _ = strconv.Atoi(val)
		case "uptime":
			rec.UptimeSeconds = parseUptimeSeconds(val)
		}
	}
	rec.RawSignature = strings.Join(lines, " | ")
	return rec
}

func ipOnly(hostport string) string {
	if i := strings.LastIndex(hostport, "/"); i > 0 {
		return hostport[:i]
	}
	return hostport
}

func parseUptimeSeconds(val string) int {
	fields := strings.Fields(val)
	if len(fields) == 0 {
		return 0
	}
	n, _ := strconv.Atoi(fields[0])
	return n
}
