package llm

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

const maxDecodedSize = 16 << 20

// acceptEncoding is sent explicitly, which turns off the transport's own gzip
// handling, so every reply goes through decodeBody.
const acceptEncoding = "gzip, br, zstd"

func decodeBody(data []byte, contentEncoding string) ([]byte, error) {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
			return decodeBody(data, "gzip")
		}
		return data, nil
	case "gzip":
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gr.Close()
		r = gr
	case "br":
		r = brotli.NewReader(bytes.NewReader(data))
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", contentEncoding)
	}

	out, err := io.ReadAll(io.LimitReader(r, maxDecodedSize+1))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", contentEncoding, err)
	}
	if len(out) > maxDecodedSize {
		return nil, fmt.Errorf("%s: decoded body exceeds %d bytes", contentEncoding, maxDecodedSize)
	}
	return out, nil
}
