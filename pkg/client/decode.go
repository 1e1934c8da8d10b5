package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/text/encoding/unicode"
)

// AcceptEncoding is sent on every request; decoding is done by the client,
// not by net/http.
const AcceptEncoding = "gzip,deflate"

// readBody returns the decompressed response body. Both the bytes read from
// the wire and the decompressed output are capped at limit; exceeding either
// fails with ErrBodyTooLarge.
func readBody(resp *http.Response, limit int64) ([]byte, error) {
	raw, err := readLimited(resp.Body, limit)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	switch enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
		return raw, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer zr.Close()
		out, err := readLimited(zr, limit)
		if err != nil {
			return nil, fmt.Errorf("gunzip body: %w", err)
		}
		return out, nil
	case "deflate":
		return inflate(raw, limit)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, enc)
	}
}

// readLimited reads r to EOF, failing once more than limit bytes arrive.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	n := limit
	if n < math.MaxInt64 {
		n++
	}
	data, err := io.ReadAll(io.LimitReader(r, n))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit)
	}
	return data, nil
}

// inflate handles both zlib-wrapped (RFC 1950) and raw (RFC 1951) deflate
// bodies; servers disagree on which one "deflate" means.
func inflate(raw []byte, limit int64) ([]byte, error) {
	if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
		out, err := readLimited(zr, limit)
		zr.Close()
		if err == nil {
			return out, nil
		}
		if errors.Is(err, ErrBodyTooLarge) {
			return nil, fmt.Errorf("inflate body: %w", err)
		}
	}
	fr := flate.NewReader(bytes.NewReader(raw))
	defer fr.Close()
	out, err := readLimited(fr, limit)
	if err != nil {
		return nil, fmt.Errorf("inflate body: %w", err)
	}
	return out, nil
}

// decodeJSON decodes body as UTF-8 text (stripping a BOM) and parses it as a
// JSON object. Numbers are kept as json.Number.
func decodeJSON(body []byte) (map[string]any, error) {
	text, err := unicode.UTF8BOM.NewDecoder().Bytes(body)
	if err != nil {
		return nil, fmt.Errorf("decode utf-8: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()
	var envelope map[string]any
	if err := dec.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if envelope == nil {
		return nil, fmt.Errorf("parse json: response is not an object")
	}
	return envelope, nil
}

// intValue converts a decoded JSON scalar to int, returning 0 when it is not numeric.
func intValue(v any) int {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil && f == math.Trunc(f) {
			return int(f)
		}
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return 0
}
