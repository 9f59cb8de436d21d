package service

import "sync"

// Aggregator exposes the viewer's total unread count. It stores nothing and
// reads the index on every call.
type Aggregator struct {
	index *Index
}

func NewAggregator(index *Index) *Aggregator {
	return &Aggregator{index: index}
}

func (a *Aggregator) Count() int {
	return a.index.TotalUnread()
}

// OnChange calls fn with the new total whenever an index change moves it.
func (a *Aggregator) OnChange(fn func(total int)) func() {
	var mu sync.Mutex
	last := a.index.TotalUnread()
	return a.index.OnChange(func() {
		total := a.index.TotalUnread()
		mu.Lock()
		changed := total != last
		last = total
		mu.Unlock()
		if changed {
			fn(total)
		}
	})
}
