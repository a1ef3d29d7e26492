package link

import (
	"log"
	"sync"
	"time"
)

// dropLog reports dropped datagrams at most once per interval.
type dropLog struct {
	prefix string
	every  time.Duration

	mu    sync.Mutex
	last  time.Time
	n     int // Since the last report
	total int
}

func newDropLog(prefix string) *dropLog {
	return &dropLog{prefix: prefix, every: time.Second}
}

func (d *dropLog) drop(now time.Time, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.n++
	d.total++
	if now.Sub(d.last) < d.every {
		return
	}
	log.Printf("%s: dropped %d datagram(s), last: %s\n", d.prefix, d.n, err)
	d.last = now
	d.n = 0
}

// count returns the number of datagrams dropped so far.
func (d *dropLog) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}
