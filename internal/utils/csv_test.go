package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridBot/internal/domain"
)

func sampleTrades() []*domain.Trade {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	profit := 3.5
	orderID := "42"
	return []*domain.Trade{
		{ID: "t1", Symbol: "BTC/USDT", Side: domain.Buy, Amount: 1, Price: 100, Total: 100, OrderID: &orderID, Timestamp: at},
		{ID: "t2", Symbol: "BTC/USDT", Side: domain.Sell, Amount: 1, Price: 103.5, Total: 103.5, Profit: &profit, Timestamp: at.Add(time.Hour)},
	}
}

func TestWriteTrades(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTrades(&buf, sampleTrades()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,id,symbol,side,amount,price,total,profit,order_id", lines[0])
	assert.Equal(t, "2024-05-01T12:00:00Z,t1,BTC/USDT,BUY,1,100,100,,42", lines[1])
	assert.Equal(t, "2024-05-01T13:00:00Z,t2,BTC/USDT,SELL,1,103.5,103.5,3.5,", lines[2])
}

func TestWriteTradesToCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	require.NoError(t, WriteTradesToCSV(sampleTrades(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "t2,BTC/USDT,SELL")

	assert.Error(t, WriteTradesToCSV(nil, filepath.Join(t.TempDir(), "missing", "x.csv")))
}
