package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netguardpro/netguard/internal/models"
)

func fullyKnownDevice() models.Device {
	return models.Device{
		IPAddress:  "192.168.1.10",
		MACAddress: "aa:bb:cc:dd:ee:ff",
		Hostname:   "printer.local",
		DeviceType: models.DeviceTypeNetwork,
		LastSeen:   time.Now(),
	}
}

func TestEvaluate_PerfectDeviceScoresMax(t *testing.T) {
	d := fullyKnownDevice()
	r := Evaluate(d, "", webRatio{})
	require.Equal(t, 100, r.Score, "network device modifier should still clamp at 100: %v", r.Reasons)
	require.Equal(t, "A", r.Grade)
}

func TestEvaluate_MissingIdentityPenalties(t *testing.T) {
	d := models.Device{IPAddress: "192.168.1.11", DeviceType: models.DeviceTypeUnknown, LastSeen: time.Now()}
	r := Evaluate(d, "", webRatio{})
	require.Equal(t, 65, r.Score) // -10 hostname -15 mac -10 type
	require.Equal(t, "D", r.Grade)
}

func TestEvaluate_OnlyMaxSeverityPenaltyApplies(t *testing.T) {
	d := fullyKnownDevice()
	withCritical := Evaluate(d, models.SeverityCritical, webRatio{})
	require.Equal(t, 70, withCritical.Score) // 100 - 40 critical + 10 network modifier
}

func TestEvaluate_UnencryptedWebTrafficPenalty(t *testing.T) {
	d := fullyKnownDevice()
	high := Evaluate(d, "", webRatio{httpCount: 8, sampled: 10})
	require.Equal(t, 95, high.Score) // -15 high-unencrypted, +10 network = 95

	none := Evaluate(d, "", webRatio{sampled: 5})
	require.Equal(t, 100, none.Score, "below minWebSample the ratio penalty must not apply")
}

func TestEvaluate_StaleDevicePenalty(t *testing.T) {
	d := fullyKnownDevice()
	d.DeviceType = models.DeviceTypeUnknown
	d.LastSeen = time.Now().Add(-48 * time.Hour)
	r := Evaluate(d, "", webRatio{})
	require.Equal(t, 85, r.Score) // 100 -10 unknown-type -5 stale
}

func TestEvaluate_IoTDeviceModifiers(t *testing.T) {
	d := fullyKnownDevice()
	d.DeviceType = models.DeviceTypeIoT
	d.DeviceCategory = "Smart Light"
	r := Evaluate(d, "", webRatio{})
	require.Equal(t, 98, r.Score) // -5 iot modifier +3 known category
}

func TestEvaluate_ScoreNeverBelowZero(t *testing.T) {
	d := models.Device{IPAddress: "192.168.1.12", DeviceType: models.DeviceTypeUnknown, LastSeen: time.Now().Add(-48 * time.Hour)}
	r := Evaluate(d, models.SeverityCritical, webRatio{httpCount: 10, sampled: 10})
	require.GreaterOrEqual(t, r.Score, 0)
	require.Equal(t, "F", r.Grade)
}

func TestEvaluate_IdempotentOnRepeatedCalls(t *testing.T) {
	d := fullyKnownDevice()
	first := Evaluate(d, models.SeverityLow, webRatio{httpCount: 1, sampled: 20})
	second := Evaluate(d, models.SeverityLow, webRatio{httpCount: 1, sampled: 20})
	require.Equal(t, first.Score, second.Score)
}
