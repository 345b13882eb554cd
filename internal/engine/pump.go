package engine

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/Paintersrp/runcap/internal/capture"
	"github.com/Paintersrp/runcap/internal/metrics"
)

// pump copies one redirected stream into the capture state line by line. It
// resolves the stream's completion signal exactly once when it returns, which
// happens only on EOF or a read error (including a pipe closed by release).
// Cancellation ends a pump through the tree kill closing the pipe, so a
// resolved signal always means the stream was read to its end.
func pump(r io.Reader, stream capture.Stream, st *capture.State, enc encoding.Encoding, done func()) {
	if sig := st.Signal(stream); sig != nil {
		defer sig.Resolve()
	}
	if done != nil {
		defer done()
	}

	if enc != nil {
		r = transform.NewReader(r, enc.NewDecoder())
	}
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			st.Record(stream, trimEOL(line))
			metrics.AddCapturedLines(string(stream), 1)
		}
		if err != nil {
			if !isClosedStream(err) {
				st.Logger.Debug("output stream ended with error", "stream", string(stream), "error", err)
			}
			return
		}
	}
}

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

func isClosedStream(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
