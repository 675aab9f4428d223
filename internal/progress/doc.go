// Package progress renders save-run progress on a terminal.
//
// Reporter implements the saver event interface: subscribe it to a Saver
// and call Start before the run and Stop after. A background goroutine
// redraws the current counters on a fixed interval so the display stays
// responsive without printing a line per tile.
package progress
