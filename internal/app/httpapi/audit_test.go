package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/auction"
	"github.com/Clearfield-Labs/asset_layer/internal/logging"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// auctionFixture returns an ACTIVE auction already in its bidding window.
func auctionFixture(assetID string, now time.Time) auction.Auction {
	return auction.Auction{
		AssetID:      assetID,
		ReservePrice: decimal.NewFromInt(50_000),
		TokenAmount:  500,
		StartTime:    now.Add(-time.Hour),
		EndTime:      now.Add(time.Hour),
		Status:       auction.StatusActive,
	}
}

func TestAuditRecentNewestFirst(t *testing.T) {
	a, err := NewAuditor("", nil)
	require.NoError(t, err)
	ctx := context.Background()

	a.Record(ctx, "asset.create", "asset", "a1", nil)
	a.Record(ctx, "asset.update", "asset", "a1", nil)
	a.Record(ctx, "asset.delete", "asset", "a1", os.ErrInvalid)

	entries := a.Recent(10)
	require.Len(t, entries, 3)
	assert.Equal(t, "asset.delete", entries[0].Action)
	assert.Equal(t, "failure", entries[0].Outcome)
	assert.Equal(t, "asset.create", entries[2].Action)
}

func TestAuditRingOverwritesOldest(t *testing.T) {
	a, err := NewAuditor("", nil)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < auditRingSize+5; i++ {
		a.Record(ctx, "asset.update", "asset", "a1", nil)
	}
	entries := a.Recent(0)
	assert.Len(t, entries, auditRingSize)
}

func TestAuditCapturesActorAndTrace(t *testing.T) {
	a, err := NewAuditor("", nil)
	require.NoError(t, err)

	ctx := logging.WithTraceID(context.Background(), "trace-1")
	ctx = logging.WithUser(ctx, "user-1", "INVESTOR")
	a.Record(ctx, "transaction.create", "transaction", "t1", nil)

	entries := a.Recent(1)
	require.Len(t, entries, 1)
	assert.Equal(t, "user-1", entries[0].ActorID)
	assert.Equal(t, "trace-1", entries[0].TraceID)
}

func TestAuditJSONLSink(t *testing.T) {
	file := filepath.Join(t.TempDir(), "audit.jsonl")
	a, err := NewAuditor(file, nil)
	require.NoError(t, err)
	ctx := context.Background()

	a.Record(ctx, "asset.create", "asset", "a1", nil)
	a.Record(ctx, "asset.tokenize", "asset", "a1", nil)
	require.NoError(t, a.Close())

	f, err := os.Open(file)
	require.NoError(t, err)
	defer f.Close()

	var lines []AuditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry AuditEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines = append(lines, entry)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)
	assert.Equal(t, "asset.create", lines[0].Action)
	assert.Equal(t, "asset.tokenize", lines[1].Action)
}
