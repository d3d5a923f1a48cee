package orchestrator

import "PortfolioPulse/internal/model"

// Normalize upper-cases and trims symbols, drops empty ones and removes
// duplicates, keeping first-seen order.
func Normalize(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = model.NormalizeTicker(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Partition splits tickers into consecutive batches of at most size.
func Partition(tickers []string, size int) [][]string {
	if len(tickers) == 0 {
		return nil
	}
	if size < 1 {
		size = len(tickers)
	}
	batches := make([][]string, 0, (len(tickers)+size-1)/size)
	for start := 0; start < len(tickers); start += size {
		end := min(start+size, len(tickers))
		batches = append(batches, tickers[start:end])
	}
	return batches
}
