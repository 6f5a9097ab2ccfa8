package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/aftermath/internal/domain"
)

func TestArchivePath(t *testing.T) {
	day := time.Date(2026, 3, 7, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "trades/2026/03/07.jsonl", ArchivePath(day))
}

func TestExportDayWritesExecutedTrades(t *testing.T) {
	day := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	journal := &memJournal{orders: []domain.TradeOrder{
		{ID: "a", Status: domain.TradeStatusExecuted, CreatedAt: day.Add(9 * time.Hour)},
		{ID: "b", Status: domain.TradeStatusFailed, CreatedAt: day.Add(10 * time.Hour)},
		{ID: "c", Status: domain.TradeStatusExecuted, CreatedAt: day.Add(23 * time.Hour)},
		{ID: "d", Status: domain.TradeStatusExecuted, CreatedAt: day.Add(25 * time.Hour)},
	}}
	blobs := &memBlobs{}
	a := NewJournalArchiver(journal, blobs, blobs, discard)

	n, err := a.ExportDay(context.Background(), day.Add(12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, ok := blobs.objects["trades/2026/10/15.jsonl"]
	require.True(t, ok)
	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var o domain.TradeOrder
		require.NoError(t, json.Unmarshal(sc.Bytes(), &o))
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)
}

func TestExportDaySkipsExistingAndEmpty(t *testing.T) {
	day := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	blobs := &memBlobs{objects: map[string][]byte{"trades/2026/10/15.jsonl": []byte("kept")}}
	journal := &memJournal{orders: []domain.TradeOrder{
		{ID: "a", Status: domain.TradeStatusExecuted, CreatedAt: day.Add(time.Hour)},
	}}
	a := NewJournalArchiver(journal, blobs, blobs, discard)

	n, err := a.ExportDay(context.Background(), day)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []byte("kept"), blobs.objects["trades/2026/10/15.jsonl"])

	n, err = a.ExportDay(context.Background(), day.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, blobs.objects, 1)
}

func TestRunExportsPreviousDay(t *testing.T) {
	now := time.Date(2026, 10, 16, 0, 15, 0, 0, time.UTC)
	journal := &memJournal{orders: []domain.TradeOrder{
		{ID: "a", Status: domain.TradeStatusExecuted, CreatedAt: now.Add(-2 * time.Hour)},
	}}
	blobs := &memBlobs{}
	a := NewJournalArchiver(journal, blobs, nil, discard)
	a.now = func() time.Time { return now }

	require.NoError(t, a.Run(context.Background()))
	assert.Contains(t, blobs.objects, "trades/2026/10/15.jsonl")
}

func TestCronNext(t *testing.T) {
	after := time.Date(2026, 10, 16, 0, 20, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"15 0 * * *", time.Date(2026, 10, 17, 0, 15, 0, 0, time.UTC)},
		{"*/30 * * * *", time.Date(2026, 10, 16, 0, 30, 0, 0, time.UTC)},
		{"0 9-17 * * 1-5", time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)},
		{"0 3 1 * *", time.Date(2026, 11, 1, 3, 0, 0, 0, time.UTC)},
		{"@daily", time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			sched, err := parseCron(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sched.Next(after))
		})
	}
}

func TestCronRejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "*/0 * * * *", "a b c d e", "5-1 * * * *"} {
		_, err := parseCron(expr)
		assert.Error(t, err, expr)
	}
}
