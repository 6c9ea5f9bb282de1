package parsers

import "github.com/netguardpro/netguard/internal/netutil"

// highExternalPort and lowTTLThreshold are tunable heuristic knobs kept
// as named constants rather than hard-coded literals, since these flag
// suspicious traffic heuristically and are prone to false positives if
// left unadjustable. A future rule-table can override these; today
// they're the defaults every parser falls back to.
const (
	highExternalPort = 50000
	lowTTLThreshold  = 10
)

// PacketThreat scores a packet-shaped record's suspiciousness. Local
// (RFC1918) and multicast destinations are always benign, per §4.2.
func PacketThreat(destIP string, destPort int, ttl int, synNoAck bool) (score int, suspicious bool) {
	if netutil.IsLocal(destIP) {
		return 0, false
	}

	if destPort > highExternalPort {
		score += 20
	}
	if ttl > 0 && ttl < lowTTLThreshold {
		score += 25
	}
	if synNoAck {
		score += 30
	}

	if score >= 40 {
		suspicious = true
	}
	return score, suspicious
}

// NgrepThreat flags a pattern match as suspicious when it fired against a
// non-local destination; the pattern itself already encodes the risk
// (e.g. a credential-harvesting regex).
func NgrepThreat(destIP string) (score int, suspicious bool) {
	if netutil.IsLocal(destIP) {
		return 0, false
	}
	return 35, true
}

// HTTPThreat adds 10 to the score of a 5xx status from a non-local
// destination; no host list is consulted, and that score alone stays
// below the suspicious cutoff of 30. Kept deliberately conservative to avoid the source's "any dest_port >
// 50000" false-positive pattern called out in §9.
func HTTPThreat(destIP string, statusCode int) (score int, suspicious bool) {
	if netutil.IsLocal(destIP) {
		return 0, false
	}
	if statusCode >= 500 {
		score += 10
	}
	return score, score >= 30
}
