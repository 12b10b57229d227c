package backup

import (
	"io"
	"sync/atomic"

	"github.com/cheggaaa/pb"
)

// ProgressCounter tracks entries processed by one archive or extract
// operation. When an output is set it also drives a terminal progress bar.
type ProgressCounter struct {
	total int
	done  atomic.Int64
	bar   *pb.ProgressBar
}

// NewProgressCounter creates a counter for total entries. A nil out disables
// the bar.
func NewProgressCounter(label string, total int, out io.Writer) *ProgressCounter {
	c := &ProgressCounter{total: total}
	if out != nil {
		bar := pb.New(total).Prefix(label + " ")
		bar.Output = out
		bar.ShowSpeed = false
		bar.Start()
		c.bar = bar
	}
	return c
}

// Advance marks one entry as processed.
func (c *ProgressCounter) Advance(name string) {
	c.done.Add(1)
	if c.bar != nil {
		c.bar.Increment()
	}
}

// Total returns the number of entries expected.
func (c *ProgressCounter) Total() int {
	return c.total
}

// Done returns the number of entries processed so far.
func (c *ProgressCounter) Done() int {
	return int(c.done.Load())
}

// Finish stops the bar.
func (c *ProgressCounter) Finish() {
	if c.bar != nil {
		c.bar.Finish()
	}
}
