package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// csvHeader is the canonical export column order.
var csvHeader = []string{"Date", "Action", "Ticker", "Price", "Quantity", "Reason", "Est_Tax_Impact", "Broker"}

// WriteCSV exports entries in chronological order for tax reporting.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, e := range entries {
		record := []string{
			e.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			string(e.Action),
			e.Ticker,
			strconv.FormatFloat(e.Price, 'f', -1, 64),
			strconv.FormatFloat(e.Quantity, 'f', -1, 64),
			e.Reason,
			strconv.FormatFloat(e.EstTaxImpact, 'f', -1, 64),
			e.Broker,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
