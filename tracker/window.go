package tracker

import "crypto-dashboard/models"

// MaxCandles is the size of a live window and the length at which a session
// starts recomputing its aggregate snapshot
const MaxCandles = 200

// Window is a bounded, ascending candle buffer for one subscription. It is
// not safe for concurrent use; Session guards it.
type Window struct {
	candles []models.Candle
	max     int
}

// NewWindow creates an empty window holding at most max candles
func NewWindow(max int) *Window {
	if max <= 0 {
		max = MaxCandles
	}
	return &Window{max: max}
}

// Reset replaces the window contents with the most recent candles of seed
func (w *Window) Reset(seed []models.Candle) {
	w.candles = append(w.candles[:0], seed...)
	w.truncate()
}

// Merge folds a batch of newer candles into the window. Candles older than
// the last one are dropped. A first candle sharing the last timestamp
// replaces it (the open candle was updated) and the rest are appended. It
// reports whether the window content changed.
func (w *Window) Merge(batch []models.Candle) bool {
	var lastTs int64
	if n := len(w.candles); n > 0 {
		lastTs = w.candles[n-1].Timestamp
	}

	fresh := make([]models.Candle, 0, len(batch))
	for _, c := range batch {
		if c.Timestamp >= lastTs {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return false
	}

	changed := false
	if n := len(w.candles); n > 0 && fresh[0].Timestamp == lastTs {
		if w.candles[n-1] != fresh[0] {
			w.candles[n-1] = fresh[0]
			changed = true
		}
		fresh = fresh[1:]
	}
	if len(fresh) > 0 {
		w.candles = append(w.candles, fresh...)
		changed = true
	}

	w.truncate()
	return changed
}

// Len returns the number of candles held
func (w *Window) Len() int {
	return len(w.candles)
}

// Candles returns a copy of the window contents
func (w *Window) Candles() []models.Candle {
	return append([]models.Candle(nil), w.candles...)
}

// Last returns the newest candle
func (w *Window) Last() (models.Candle, bool) {
	if len(w.candles) == 0 {
		return models.Candle{}, false
	}
	return w.candles[len(w.candles)-1], true
}

func (w *Window) truncate() {
	if over := len(w.candles) - w.max; over > 0 {
		w.candles = append(w.candles[:0], w.candles[over:]...)
	}
}
