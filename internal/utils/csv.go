package utils

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"gridBot/internal/domain"
)

// WriteTradesToCSV writes trades to filename, one row per trade.
func WriteTradesToCSV(trades []*domain.Trade, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return WriteTrades(file, trades)
}

// WriteTrades writes a header and one CSV row per trade to w.
func WriteTrades(w io.Writer, trades []*domain.Trade) error {
	writer := csv.NewWriter(w)

	// Write header
	if err := writer.Write([]string{"timestamp", "id", "symbol", "side", "amount", "price", "total", "profit", "order_id"}); err != nil {
		return err
	}

	for _, t := range trades {
		profit := ""
		if t.Profit != nil {
			profit = strconv.FormatFloat(*t.Profit, 'f', -1, 64)
		}
		orderID := ""
		if t.OrderID != nil {
			orderID = *t.OrderID
		}
		if err := writer.Write([]string{
			t.Timestamp.UTC().Format(time.RFC3339),
			t.ID,
			t.Symbol,
			string(t.Side),
			strconv.FormatFloat(t.Amount, 'f', -1, 64),
			strconv.FormatFloat(t.Price, 'f', -1, 64),
			strconv.FormatFloat(t.Total, 'f', -1, 64),
			profit,
			orderID,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
