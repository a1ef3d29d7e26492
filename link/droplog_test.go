package link

import (
	"errors"
	"testing"
	"time"
)

func TestDropLogThrottles(t *testing.T) {
	d := newDropLog("Test")
	t0 := time.Unix(10, 0)
	for i := 0; i < 100; i++ {
		d.drop(t0.Add(time.Duration(i)*time.Millisecond), errors.New("bad"))
	}
	// Only the first drop was reported; the other 99 wait for the next second
	if d.n != 99 || d.total != 100 || !d.last.Equal(t0) {
		t.Errorf("pending %d, total %d, last %v", d.n, d.total, d.last)
	}
	d.drop(t0.Add(time.Second), errors.New("bad"))
	if d.n != 0 || d.count() != 101 {
		t.Errorf("pending %d after report, total %d", d.n, d.count())
	}
}
