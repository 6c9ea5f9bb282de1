package collector_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netguardpro/netguard/internal/collector"
	"github.com/netguardpro/netguard/internal/parsers"
	"github.com/netguardpro/netguard/internal/registry"
	"github.com/netguardpro/netguard/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func packetRecord(n int) parsers.Record {
	return parsers.PacketRecord{
		Ts: time.Now(), SrcIP: "10.0.0.1", DestIP: fmt.Sprintf("93.184.216.%d", n%255),
		SrcPort: 1234, DestPort: 443, Protocol: "TCP", Length: 100,
	}
}

func TestFlush_InsertsMatchingColumnCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	records := []parsers.Record{packetRecord(1), packetRecord(2), packetRecord(3)}
	tableName, inserted, err := collector.Flush(ctx, s, registry.ToolTcpdump, records)
	require.NoError(t, err)
	require.Equal(t, 3, inserted)

	var count int
	require.NoError(t, s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tableName).Scan(&count))
	require.Equal(t, 3, count)

	var destIP string
	require.NoError(t, s.DB().QueryRowContext(ctx, "SELECT dest_ip FROM "+tableName+" LIMIT 1").Scan(&destIP))
	require.NotEmpty(t, destIP)
}

func TestFlush_EmptyBatchIsNoop(t *testing.T) {
	s := openTestStore(t)
	tableName, inserted, err := collector.Flush(context.Background(), s, registry.ToolTcpdump, nil)
	require.NoError(t, err)
	require.Equal(t, 0, inserted)
	require.Empty(t, tableName)
}

func TestFlush_DropsExcessBeyondCeiling(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	records := make([]parsers.Record, collector.PerCycleCeiling+50)
	for i := range records {
		records[i] = packetRecord(i)
	}

	tableName, inserted, err := collector.Flush(ctx, s, registry.ToolTcpdump, records)
	require.NoError(t, err)
	require.Equal(t, collector.PerCycleCeiling, inserted)

	var count int
	require.NoError(t, s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tableName).Scan(&count))
	require.Equal(t, collector.PerCycleCeiling, count)
}
