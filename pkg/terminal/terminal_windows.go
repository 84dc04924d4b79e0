package terminal

import (
	"io"

	"github.com/mattn/go-colorable"
)

// getColorableWriter returns a writer translating the escape codes used to
// highlight output into console calls.
func getColorableWriter() io.Writer {
	return colorable.NewColorableStdout()
}
