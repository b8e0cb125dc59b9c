package cmd

import (
	"fmt"
	"time"

	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"

	"github.com/arnvik/lanchat/transfer"
)

// transferBar renders a single transfer's progress on stdout.
type transferBar struct {
	bar  *progressbar.ProgressBar
	done int64
}

func newTransferBar(e transfer.Event) *transferBar {
	verb := "Receiving"
	if e.Direction == transfer.DirectionSend {
		verb = "Sending"
	}

	writer := ansi.NewAnsiStdout()
	bar := progressbar.NewOptions64(
		e.Size,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionSetDescription(fmt.Sprintf("%s %s", verb, e.FileName)),
		progressbar.OptionShowTotalBytes(true),
		progressbar.OptionShowBytes(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(writer, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)

	return &transferBar{bar: bar}
}

func (b *transferBar) update(e transfer.Event) {
	delta := e.Transferred - b.done
	if delta > 0 {
		b.bar.Add64(delta)
		b.done = e.Transferred
	}
}
