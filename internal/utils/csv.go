package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"jinktrader/internal/domain"
)

func WriteJournalToCSV(entries []*domain.JournalEntry, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"opened_at", "closed_at", "exchange", "basic_token", "token", "amount", "buy_qty", "buy_price", "sell_price", "profit_pct", "state", "close_reason"})

	for _, e := range entries {
		writer.Write([]string{
			e.OpenedAt.Format(time.RFC3339),
			e.ClosedAt.Format(time.RFC3339),
			string(e.Exchange),
			e.BasicToken,
			e.Token,
			strconv.FormatFloat(e.Amount, 'f', -1, 64),
			strconv.FormatFloat(e.BuyQty, 'f', -1, 64),
			strconv.FormatFloat(e.BuyPrice, 'f', -1, 64),
			strconv.FormatFloat(e.SellPrice, 'f', -1, 64),
			strconv.FormatFloat(e.ProfitPct, 'f', 2, 64),
			string(e.State),
			string(e.Reason),
		})
	}
	return writer.Error()
}
