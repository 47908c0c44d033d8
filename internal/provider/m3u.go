package provider

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/kptv/faststreams/internal/catalog"
)

const maxLineSize = 1 << 20 // 1 MiB per line

// FetchM3U fetches a playlist from m3uURL and parses it in a streaming
// fashion. Records carry the EXTINF tvg-* attributes where present.
func FetchM3U(ctx context.Context, client *http.Client, m3uURL string, headers map[string]string) ([]catalog.Record, error) {
	body, err := getBody(ctx, client, m3uURL, headers)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return parseM3UFromReader(body)
}

// ParseM3UBytes parses a playlist from bytes. Used by tests.
func ParseM3UBytes(data []byte) ([]catalog.Record, error) {
	return parseM3UFromReader(bytes.NewReader(data))
}

func parseM3UFromReader(r io.Reader) ([]catalog.Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineSize)
	var records []catalog.Record
	var extinf string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#EXTINF:") {
			extinf = line
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if extinf != "" && (strings.HasPrefix(line, "http") || strings.HasPrefix(line, "/")) {
			records = append(records, recordFromEXTINF(extinf, line))
		}
		extinf = ""
	}
	return records, sc.Err()
}

func recordFromEXTINF(extinf, url string) catalog.Record {
	rec := catalog.Record{
		StreamURL: url,
		Name:      extinfDisplayName(extinf),
		EPGID:     extinfAttr(extinf, "tvg-id"),
		Logo:      extinfAttr(extinf, "tvg-logo"),
		Group:     extinfAttr(extinf, "group-title"),
		Country:   strings.ToLower(extinfAttr(extinf, "tvg-country")),
		Language:  strings.ToLower(extinfAttr(extinf, "tvg-language")),
	}
	if name := extinfAttr(extinf, "tvg-name"); rec.Name == "" && name != "" {
		rec.Name = name
	}
	if n := extinfAttr(extinf, "tvg-chno"); n != "" {
		if num, err := strconv.Atoi(n); err == nil {
			rec.Number = num
		}
	}
	rec.ID = rec.EPGID
	if rec.ID == "" {
		rec.ID = stableID(url, extinf)
	}
	return rec
}

// extinfDisplayName returns the text after the last comma of the attribute
// section. Quoted attribute values may themselves contain commas, so the
// split point is the first comma after the final quote.
func extinfDisplayName(extinf string) string {
	i := strings.LastIndex(extinf, `"`)
	if i < 0 {
		i = 0
	}
	j := strings.Index(extinf[i:], ",")
	if j < 0 {
		return ""
	}
	return strings.TrimSpace(extinf[i+j+1:])
}

func extinfAttr(extinf, key string) string {
	prefix := key + `="`
	i := strings.Index(extinf, prefix)
	if i < 0 {
		return ""
	}
	i += len(prefix)
	j := strings.Index(extinf[i:], `"`)
	if j < 0 {
		return ""
	}
	return extinf[i : i+j]
}

func stableID(url, extinf string) string {
	h := uint64(0)
	for _, c := range url {
		h = h*31 + uint64(c)
	}
	for _, c := range extinf {
		h = h*31 + uint64(c)
	}
	return "id" + strconv.FormatUint(h, 36)
}
