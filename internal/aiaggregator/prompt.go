package aiaggregator

import (
	"encoding/json"
	"fmt"
	"strings"
)

const promptInstructions = `You are a network security analyst reviewing a snapshot of traffic and device data captured on a home/small-office network. Respond with a single JSON object and nothing else (no markdown fences, no prose outside the JSON). The object MUST contain exactly these keys:

  threat_level: one of "LOW", "MEDIUM", "HIGH", "CRITICAL"
  network_health_score: integer 0-100
  summary: a short plain-language paragraph
  threats_detected: an array of objects describing any suspicious activity found
  network_insights: an object with freeform observations about the network
  device_analysis: an object keyed by IP address with per-device notes
  recommendations: an array of short actionable strings

Base your analysis only on the data below. If nothing is suspicious, say so and use a LOW threat_level.`

// RenderPrompt turns a Snapshot into the provider-neutral natural
// language document described in §4.9 step 2.
func RenderPrompt(snap *Snapshot) (string, error) {
	var b strings.Builder
	b.WriteString(promptInstructions)
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("Network summary: %d known devices.\n", snap.NetworkSummary.DeviceCount))
	if len(snap.NetworkSummary.OSDistribution) > 0 {
		osJSON, err := json.Marshal(snap.NetworkSummary.OSDistribution)
		if err != nil {
			return "", fmt.Errorf("marshal os distribution: %w", err)
		}
		b.WriteString("OS distribution: ")
		b.Write(osJSON)
		b.WriteString("\n")
	}

	if len(snap.IoTDevices) > 0 {
		iotJSON, err := json.Marshal(snap.IoTDevices)
		if err != nil {
			return "", fmt.Errorf("marshal iot devices: %w", err)
		}
		b.WriteString("\nIoT devices:\n")
		b.Write(iotJSON)
		b.WriteString("\n")
	}

	if len(snap.IoTSecurity) > 0 {
		vulnJSON, err := json.Marshal(snap.IoTSecurity)
		if err != nil {
			return "", fmt.Errorf("marshal iot vulnerabilities: %w", err)
		}
		b.WriteString("\nUnresolved IoT vulnerabilities:\n")
		b.Write(vulnJSON)
		b.WriteString("\n")
	}

	for tool, rows := range snap.ToolSamples {
		if len(rows) == 0 {
			continue
		}
		rowsJSON, err := json.Marshal(rows)
		if err != nil {
			return "", fmt.Errorf("marshal %s sample: %w", tool, err)
		}
		b.WriteString(fmt.Sprintf("\n%s sample (%d rows):\n", tool, len(rows)))
		b.Write(rowsJSON)
		b.WriteString("\n")
	}

	return b.String(), nil
}

// ExtractJSON strips a leading/trailing ```json ... ``` fence if present,
// since some providers wrap strict-JSON responses in markdown anyway.
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
