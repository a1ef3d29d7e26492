package ahrs

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// AHRSLogger writes one CSV row of named float values per call to Log.
type AHRSLogger struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	Header []string
	fmt    string
}

// NewAHRSLogger creates filename and writes the header row.
func NewAHRSLogger(filename string, header ...string) (l *AHRSLogger, err error) {
	if len(header) == 0 {
		return nil, errors.New("AHRSLogger: no columns given")
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, errors.Wrap(err, "AHRSLogger: creating log file")
	}
	l = &AHRSLogger{f: f, w: bufio.NewWriter(f), Header: header}

	fmt.Fprint(l.w, strings.Join(l.Header, ","), "\n")
	s := strings.Repeat("%f,", len(l.Header))
	l.fmt = strings.Join([]string{s[:len(s)-1], "\n"}, "")
	return l, nil
}

// Log writes one row; vals must match the header order.
func (l *AHRSLogger) Log(vals ...float64) error {
	if len(vals) != len(l.Header) {
		return errors.Errorf("AHRSLogger: got %d values for %d columns", len(vals), len(l.Header))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	v := make([]interface{}, len(vals))
	for i := range vals {
		v[i] = vals[i]
	}
	_, err := fmt.Fprintf(l.w, l.fmt, v...)
	return err
}

// Close flushes buffered rows and closes the file.
func (l *AHRSLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
