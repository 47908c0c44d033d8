package server

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/kptv/faststreams/internal/catalog"
	"github.com/kptv/faststreams/internal/epg"
)

// renderCache memoizes playlist and guide renderings of one aggregation
// result. Encodings are produced lazily on first request and reused until
// the underlying result changes.
type renderCache struct {
	mu          sync.Mutex
	completedAt time.Time
	m3u         []byte
	m3uBase     string // base URL the cached playlist was rendered for
	xmltv       []byte
	xmltvGz     []byte
	xmltvBr     []byte
}

func (rc *renderCache) forResult(res *catalog.Result) {
	if !rc.completedAt.Equal(res.CompletedAt) {
		rc.completedAt = res.CompletedAt
		rc.m3u = nil
		rc.xmltv = nil
		rc.xmltvGz = nil
		rc.xmltvBr = nil
	}
}

// M3U is memoized per (result, base URL): with no configured BASE_URL the
// base follows the request host, so one host's playlist must not be served
// to another.
func (rc *renderCache) M3U(res *catalog.Result, baseURL string) []byte {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.forResult(res)
	if rc.m3u == nil || rc.m3uBase != baseURL {
		rc.m3u = renderM3U(res, baseURL)
		rc.m3uBase = baseURL
	}
	return rc.m3u
}

func (rc *renderCache) XMLTV(res *catalog.Result) []byte {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.forResult(res)
	if rc.xmltv == nil {
		rc.xmltv = renderXMLTV(res)
	}
	return rc.xmltv
}

func (rc *renderCache) XMLTVGzip(res *catalog.Result) []byte {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.forResult(res)
	if rc.xmltvGz == nil {
		if rc.xmltv == nil {
			rc.xmltv = renderXMLTV(res)
		}
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		gz.Write(rc.xmltv)
		gz.Close()
		rc.xmltvGz = buf.Bytes()
	}
	return rc.xmltvGz
}

func (rc *renderCache) XMLTVBrotli(res *catalog.Result) []byte {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.forResult(res)
	if rc.xmltvBr == nil {
		if rc.xmltv == nil {
			rc.xmltv = renderXMLTV(res)
		}
		var buf bytes.Buffer
		bw := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
		bw.Write(rc.xmltv)
		bw.Close()
		rc.xmltvBr = buf.Bytes()
	}
	return rc.xmltvBr
}

// renderM3U emits the aggregated playlist. Channel order is the stored
// order, which is already deterministic.
func renderM3U(res *catalog.Result, baseURL string) []byte {
	var b bytes.Buffer
	guideURL := strings.TrimSuffix(baseURL, "/") + "/epg"
	fmt.Fprintf(&b, "#EXTM3U url-tvg=%q\n", guideURL)
	for _, ch := range res.Channels {
		tvgID := ch.ID
		name := strings.ReplaceAll(ch.Name, ",", " ")
		fmt.Fprintf(&b, "#EXTINF:-1 tvg-id=%q tvg-name=%q", tvgID, name)
		if ch.Logo != "" {
			fmt.Fprintf(&b, " tvg-logo=%q", ch.Logo)
		}
		if ch.Number > 0 {
			fmt.Fprintf(&b, " tvg-chno=%q", strconv.Itoa(ch.Number))
		}
		if ch.Group != "" {
			fmt.Fprintf(&b, " group-title=%q", strings.ReplaceAll(ch.Group, `"`, ""))
		}
		fmt.Fprintf(&b, ",%s\n%s\n", name, ch.StreamURL)
	}
	return b.Bytes()
}

// renderXMLTV emits the guide for every channel with resolved programmes.
// Channels without guide data still get a <channel> element so players can
// show them, just without listings.
func renderXMLTV(res *catalog.Result) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<!DOCTYPE tv SYSTEM "xmltv.dtd">` + "\n")
	fmt.Fprintf(&b, `<tv generator-info-name="faststreams" generated-ts="%s">`+"\n",
		res.CompletedAt.UTC().Format(time.RFC3339))

	for _, ch := range res.Channels {
		fmt.Fprintf(&b, `  <channel id="%s">`+"\n", xmlEscape(ch.ID))
		fmt.Fprintf(&b, "    <display-name>%s</display-name>\n", xmlEscape(ch.Name))
		if ch.Logo != "" {
			fmt.Fprintf(&b, `    <icon src="%s"/>`+"\n", xmlEscape(ch.Logo))
		}
		b.WriteString("  </channel>\n")
	}

	// Stable channel order for programmes as well.
	ids := make([]string, 0, len(res.EPG))
	for id := range res.EPG {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		entry := res.EPG[id]
		for _, p := range entry.Programmes {
			fmt.Fprintf(&b, `  <programme start="%s" stop="%s" channel="%s">`+"\n",
				epg.FormatXMLTVTime(p.Start), epg.FormatXMLTVTime(p.Stop), xmlEscape(id))
			fmt.Fprintf(&b, "    <title>%s</title>\n", xmlEscape(p.Title))
			if p.Desc != "" {
				fmt.Fprintf(&b, "    <desc>%s</desc>\n", xmlEscape(p.Desc))
			}
			b.WriteString("  </programme>\n")
		}
	}
	b.WriteString("</tv>\n")
	return b.Bytes()
}

func xmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}
