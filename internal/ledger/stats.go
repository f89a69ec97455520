package ledger

// PerformanceStats summarizes closed-trade outcomes. The win rate and
// payoff figures feed position sizing.
type PerformanceStats struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
	AvgWin      float64 `json:"avg_win"`
	AvgLoss     float64 `json:"avg_loss"`
	TotalPnL    float64 `json:"total_pnl"`
}

// ComputeStats replays entries and aggregates realized PnL per SELL.
// Break-even closes count as neither win nor loss.
func ComputeStats(entries []Entry) (PerformanceStats, error) {
	book := NewBook()
	var stats PerformanceStats

	for _, e := range entries {
		before := book.RealizedPnL(e.Ticker)
		if err := book.Apply(e); err != nil {
			return PerformanceStats{}, err
		}
		if e.Action != ActionSell {
			continue
		}

		pnl := book.RealizedPnL(e.Ticker) - before
		stats.TotalTrades++
		stats.TotalPnL += pnl
		switch {
		case pnl > Epsilon:
			stats.Wins++
			stats.AvgWin += pnl
		case pnl < -Epsilon:
			stats.Losses++
			stats.AvgLoss += -pnl
		}
	}

	if stats.Wins > 0 {
		stats.AvgWin /= float64(stats.Wins)
	}
	if stats.Losses > 0 {
		stats.AvgLoss /= float64(stats.Losses)
	}
	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.TotalTrades)
	}

	return stats, nil
}

// ClosedTradeReturns replays entries and yields the fractional return
// of each SELL against the cost of the lots it consumed, in
// chronological order. These feed the CVaR tail estimate.
func ClosedTradeReturns(entries []Entry) ([]float64, error) {
	book := NewBook()
	var returns []float64

	for _, e := range entries {
		before := book.RealizedPnL(e.Ticker)
		if err := book.Apply(e); err != nil {
			return nil, err
		}
		if e.Action != ActionSell {
			continue
		}

		pnl := book.RealizedPnL(e.Ticker) - before
		proceeds := e.Price * e.Quantity
		cost := proceeds - pnl
		if cost <= Epsilon {
			continue
		}
		returns = append(returns, pnl/cost)
	}
	return returns, nil
}
