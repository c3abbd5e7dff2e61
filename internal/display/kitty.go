package display

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const (
	escapeStart = "\x1b_G"
	escapeEnd   = "\x1b\\"
	chunkSize   = 4096
)

// KittyEncoder writes PNG data using the kitty graphics protocol.
type KittyEncoder struct {
	out     io.Writer
	columns int
}

// NewKittyEncoder returns an encoder that scales previews to columns cells
// wide. Zero keeps the image's native size.
func NewKittyEncoder(out io.Writer, columns int) *KittyEncoder {
	return &KittyEncoder{out: out, columns: columns}
}

func (e *KittyEncoder) Encode(png []byte) error {
	if len(png) == 0 {
		return nil
	}

	chunks := splitIntoChunks(base64.StdEncoding.EncodeToString(png), chunkSize)
	for i, chunk := range chunks {
		var params []string
		if i == 0 {
			params = e.transmitParams()
		}
		if len(chunks) > 1 {
			more := "m=1"
			if i == len(chunks)-1 {
				more = "m=0"
			}
			params = append(params, more)
		}

		if _, err := fmt.Fprintf(e.out, "%s%s;%s%s", escapeStart, strings.Join(params, ","), chunk, escapeEnd); err != nil {
			return err
		}
	}
	return nil
}

func (e *KittyEncoder) transmitParams() []string {
	params := []string{"a=T", "f=100", "q=2"}
	if e.columns > 0 {
		params = append(params, fmt.Sprintf("c=%d", e.columns))
	}
	return params
}

func splitIntoChunks(s string, size int) []string {
	var chunks []string
	for len(s) > size {
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	if s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}
