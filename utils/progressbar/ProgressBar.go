// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"strings"
	"time"
)

// ProgressBar implements a concurrent progress bar. The bar redraws
// from a separate goroutine so that it runs concurrently with the
// work it is tracking.
type ProgressBar struct {
	// width determines the number of characters wide that the
	// progress bar should be
	width float64

	// maxProgress determines the number of times Increment() should
	// be called before the progress bar reaches 100%
	maxProgress float64

	incrementEvent chan float64
	closeEvent     chan struct{}
	closed         bool

	updateEvery time.Duration
}

// New returns a new progress bar that is width characters wide and
// reaches 100% capacity after max Increment() calls. The bar redraws
// on every increment and at least every updateEvery.
func New(width, max int, updateEvery time.Duration) *ProgressBar {
	return &ProgressBar{
		width:          float64(width),
		maxProgress:    float64(max),
		incrementEvent: make(chan float64, max),
		closeEvent:     make(chan struct{}),
		updateEvery:    updateEvery,
	}
}

// Increment increments the internal progress counter. Each time an
// iteration is performed, Increment should be called.
func (pbar *ProgressBar) Increment() {
	if pbar.closed {
		return
	}
	select {
	case pbar.incrementEvent <- 1:
	default:
	}
}

// Close closes the progress bar so that it will no longer display to
// the screen and releases the drawing goroutine.
func (pbar *ProgressBar) Close() {
	if pbar.closed {
		panic("close: close on closed progress bar")
	}
	close(pbar.closeEvent)
	pbar.closed = true
	fmt.Println() // Jump to next line after printed pbar
}

// Display displays the progress bar on the screen. It should only be
// called once.
func (pbar *ProgressBar) Display() {
	go func() {
		var currentProgress float64
		start := time.Now()
		tick := time.NewTicker(pbar.updateEvery)

		var bar strings.Builder
		for {
			select {
			case inc := <-pbar.incrementEvent:
				if currentProgress+inc <= pbar.maxProgress {
					currentProgress += inc
				}

			case <-tick.C:

			case <-pbar.closeEvent:
				tick.Stop()
				return
			}

			bar.Reset()
			bar.WriteString("|")

			currentProg := currentProgress / pbar.maxProgress *
				pbar.width
			for i := 0.0; i < currentProg; i++ {
				bar.WriteString("█")
			}
			for i := currentProg; i < pbar.width; i++ {
				bar.WriteString(" ")
			}
			bar.WriteString(fmt.Sprintf("| [%.2f%v | elapsed: %v]",
				currentProgress/pbar.maxProgress*100, "%",
				time.Since(start).Round(time.Second)))

			fmt.Printf("\n\033[1A\033[K%v", bar.String())
		}
	}()
}
