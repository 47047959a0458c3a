package pipelines

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decodeMiddleware turns raw bytes into a logical string using the declared
// charset, honoring BOMs and defaulting to UTF-8. Decode failures are
// non-fatal; the raw bytes pass through as-is.
func decodeMiddleware(c *Context) error {
	content, err := decodeCharset(c.Raw.Content, c.Raw.Charset)
	if err != nil {
		c.AddError(fmt.Errorf("charset decode (%s): %w", c.Raw.Charset, err))
		content = string(stripBOM(c.Raw.Content))
	}
	c.Content = content
	return nil
}

func decodeCharset(data []byte, charset string) (string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return string(data[len(bomUTF8):]), nil
	case bytes.HasPrefix(data, bomUTF16LE):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return "", err
		}
		return string(out), nil
	case bytes.HasPrefix(data, bomUTF16BE):
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}

	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "utf8") {
		return string(data), nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", err
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func stripBOM(data []byte) []byte {
	if bytes.HasPrefix(data, bomUTF8) {
		return data[len(bomUTF8):]
	}
	return data
}
