// Package epg resolves guide data for aggregated channels. Two upstreams
// publish their own schedules; everyone else is covered by external XMLTV
// rippers, tried tier by tier until a channel finds a match.
package epg

import (
	"bufio"
	"compress/gzip"
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/kptv/faststreams/internal/catalog"
)

// XMLTVTimeLayout is the timestamp format used by XMLTV start/stop
// attributes.
const XMLTVTimeLayout = "20060102150405 -0700"

// GuideChannel is one <channel> element from an XMLTV document.
type GuideChannel struct {
	ID           string
	DisplayNames []string
}

// Guide is a parsed XMLTV document: the channel roster plus programmes keyed
// by the document's own channel IDs.
type Guide struct {
	Channels   []GuideChannel
	Programmes map[string][]catalog.Programme
}

// ParseXMLTV parses an XMLTV document in a streaming fashion. Gzipped input
// is detected by magic bytes, so sources that serve plain XML under a .gz
// path still parse.
func ParseXMLTV(r io.Reader) (*Guide, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		return parseXMLTV(gz)
	}
	return parseXMLTV(br)
}

func parseXMLTV(r io.Reader) (*Guide, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	type displayName struct {
		Text string `xml:",chardata"`
	}
	type chNode struct {
		ID           string        `xml:"id,attr"`
		DisplayNames []displayName `xml:"display-name"`
	}
	type progNode struct {
		Channel string `xml:"channel,attr"`
		Start   string `xml:"start,attr"`
		Stop    string `xml:"stop,attr"`
		Title   string `xml:"title"`
		Desc    string `xml:"desc"`
	}

	guide := &Guide{Programmes: map[string][]catalog.Programme{}}
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "channel":
			var node chNode
			if err := dec.DecodeElement(&node, &se); err != nil {
				return nil, err
			}
			id := strings.TrimSpace(node.ID)
			if id == "" {
				continue
			}
			row := GuideChannel{ID: id}
			for _, dn := range node.DisplayNames {
				if name := strings.TrimSpace(dn.Text); name != "" {
					row.DisplayNames = append(row.DisplayNames, name)
				}
			}
			guide.Channels = append(guide.Channels, row)
		case "programme":
			var node progNode
			if err := dec.DecodeElement(&node, &se); err != nil {
				return nil, err
			}
			id := strings.TrimSpace(node.Channel)
			title := strings.TrimSpace(node.Title)
			if id == "" || title == "" {
				continue
			}
			start, err1 := ParseXMLTVTime(node.Start)
			stop, err2 := ParseXMLTVTime(node.Stop)
			if err1 != nil || err2 != nil || !stop.After(start) {
				continue
			}
			guide.Programmes[id] = append(guide.Programmes[id], catalog.Programme{
				Title: title,
				Desc:  strings.TrimSpace(node.Desc),
				Start: start,
				Stop:  stop,
			})
		}
	}
	return guide, nil
}

// ParseXMLTVTime parses an XMLTV timestamp. Sources that omit the zone
// offset are treated as UTC.
func ParseXMLTVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(XMLTVTimeLayout, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("20060102150405", s, time.UTC)
}

// FormatXMLTVTime renders a timestamp in XMLTV form, always UTC.
func FormatXMLTVTime(t time.Time) string {
	return t.UTC().Format(XMLTVTimeLayout)
}
