package procspec

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// LookupEncoding resolves an encoding label such as "utf-8", "utf-16le" or
// "windows-1252". An empty label or any UTF-8 alias returns nil, meaning the
// stream bytes are used as-is.
func LookupEncoding(name string) (encoding.Encoding, error) {
	label := strings.ToLower(strings.TrimSpace(name))
	if label == "" {
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	if enc == unicode.UTF8 {
		return nil, nil
	}
	return enc, nil
}
