package devices

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netguardpro/netguard/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertWithMAC_InsertsNewDeviceWithDefaultScore(t *testing.T) {
	s := openTestStore(t)
	r := New(s)
	ctx := context.Background()

	require.NoError(t, r.upsertWithMAC(ctx, "192.168.1.20", "B8:27:EB:11:22:33"))

	var vendor string
	var score int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT vendor, security_score FROM devices WHERE ip_address = ?`,
		"192.168.1.20").Scan(&vendor, &score))
	require.Equal(t, "Raspberry Pi Foundation", vendor)
	require.Equal(t, 100, score)
}

func TestUpsertWithMAC_PreservesExistingMACWhenNewMACEmpty(t *testing.T) {
	s := openTestStore(t)
	r := New(s)
	ctx := context.Background()

	require.NoError(t, r.upsertWithMAC(ctx, "192.168.1.21", "B8:27:EB:11:22:33"))
	require.NoError(t, r.upsertWithMAC(ctx, "192.168.1.21", ""))

	var mac string
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT mac_address FROM devices WHERE ip_address = ?`,
		"192.168.1.21").Scan(&mac))
	require.Equal(t, "B8:27:EB:11:22:33", mac, "a traffic-derived re-sighting must not blank out a known MAC")
}

func TestUpsertWithMAC_NewerMACOverwritesOlder(t *testing.T) {
	s := openTestStore(t)
	r := New(s)
	ctx := context.Background()

	require.NoError(t, r.upsertWithMAC(ctx, "192.168.1.22", "B8:27:EB:11:22:33"))
	require.NoError(t, r.upsertWithMAC(ctx, "192.168.1.22", "AC:63:BE:44:55:66"))

	var mac, vendor string
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT mac_address, vendor FROM devices WHERE ip_address = ?`,
		"192.168.1.22").Scan(&mac, &vendor))
	require.Equal(t, "AC:63:BE:44:55:66", mac)
	require.Equal(t, "TP-Link", vendor)
}

func TestUpsertWithMAC_OnlyFillsCategoryWhenStillUnknown(t *testing.T) {
	s := openTestStore(t)
	r := New(s)
	ctx := context.Background()

	// first sighting has no MAC, so device_type/category land on whatever
	// the empty-vendor/hostname categorisation decides (Unknown).
	require.NoError(t, r.upsertWithMAC(ctx, "192.168.1.23", ""))

	_, err := s.DB().ExecContext(ctx,
		`UPDATE devices SET device_type = 'IoT', device_category = 'Smart Plug' WHERE ip_address = ?`, "192.168.1.23")
	require.NoError(t, err)

	require.NoError(t, r.upsertWithMAC(ctx, "192.168.1.23", "D8:31:CF:77:88:99"))

	var deviceType, category string
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT device_type, device_category FROM devices WHERE ip_address = ?`,
		"192.168.1.23").Scan(&deviceType, &category))
	require.Equal(t, "IoT", deviceType, "a type classified by an earlier pass must not be clobbered")
	require.Equal(t, "Smart Plug", category)
}

func TestUpsertWithMAC_EmptyIPIsNoop(t *testing.T) {
	s := openTestStore(t)
	r := New(s)

	require.NoError(t, r.upsertWithMAC(context.Background(), "", "AA:BB:CC:DD:EE:FF"))

	var count int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM devices`).Scan(&count))
	require.Zero(t, count)
}

func TestReverseDNS_CachesFailureWithoutRetrying(t *testing.T) {
	r := New(openTestStore(t))

	first := r.reverseDNS("203.0.113.5")
	_, cached := r.ptrCache["203.0.113.5"]
	require.True(t, cached, "a lookup result, even empty, must be cached")
	second := r.reverseDNS("203.0.113.5")
	require.Equal(t, first, second)
}
