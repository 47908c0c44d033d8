package epg

import (
	"sort"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Match methods, recorded per resolved channel so operators can audit how a
// mapping was found.
const (
	MethodPinned    = "pinned"
	MethodIDPrefix  = "id_prefix"
	MethodNameExact = "name_exact"
	MethodFuzzy     = "fuzzy"
)

// Index is a guide prepared for matching: IDs both raw and canonicalized for
// one provider, plus a normalized-name lookup.
type Index struct {
	provider string
	guide    *Guide

	byID map[string]string // lowercased guide ID -> guide ID
	// normalized display name -> guide ID, "" when two channels collide
	nameToID  map[string]string
	names     []string // normalized names for fuzzy scans
	nameIDs   []string // parallel to names
	sortedIDs []string // built on first SortedGuideIDs call
}

// NewIndex builds the matching index for one provider's view of a guide.
func NewIndex(provider string, guide *Guide) *Index {
	idx := &Index{
		provider: provider,
		guide:    guide,
		byID:     make(map[string]string, len(guide.Channels)),
		nameToID: map[string]string{},
	}
	for _, ch := range guide.Channels {
		idx.byID[strings.ToLower(ch.ID)] = ch.ID
		for _, n := range append([]string{ch.ID}, ch.DisplayNames...) {
			nk := NormalizeName(n)
			if nk == "" {
				continue
			}
			if existing, ok := idx.nameToID[nk]; ok {
				if existing != ch.ID {
					idx.nameToID[nk] = "" // ambiguous
				}
				continue
			}
			idx.nameToID[nk] = ch.ID
			idx.names = append(idx.names, nk)
			idx.nameIDs = append(idx.nameIDs, ch.ID)
		}
	}
	return idx
}

// MatchID looks up a channel by guide ID, trying the raw provider-local ID
// and the provider-prefixed forms the rippers use.
func (idx *Index) MatchID(channelID, localID string) (string, bool) {
	for _, candidate := range guideIDCandidates(idx.provider, channelID, localID) {
		if guideID, ok := idx.byID[strings.ToLower(candidate)]; ok {
			return guideID, true
		}
	}
	// The Plex mjh feed keys channels as lineupId-channelId. Match on the
	// suffix when the local ID is long enough to be unambiguous. The scan
	// walks IDs in sorted order so a collision resolves the same way every
	// cycle.
	if idx.provider == "plex" && len(localID) >= 12 {
		suffix := "-" + strings.ToLower(localID)
		for _, guideID := range idx.SortedGuideIDs() {
			if strings.HasSuffix(strings.ToLower(guideID), suffix) {
				return guideID, true
			}
		}
	}
	return "", false
}

// MatchName finds a unique channel whose normalized display name equals the
// normalized channel name.
func (idx *Index) MatchName(name string) (string, bool) {
	nk := NormalizeName(name)
	if nk == "" {
		return "", false
	}
	guideID, ok := idx.nameToID[nk]
	return guideID, ok && guideID != ""
}

// MatchFuzzy finds the closest normalized display name within a small edit
// distance. The match must be unique at its rank to count.
func (idx *Index) MatchFuzzy(name string) (string, bool) {
	nk := NormalizeName(name)
	if len(nk) < 4 {
		return "", false
	}
	const maxRank = 3
	bestRank := maxRank + 1
	bestID := ""
	unique := true
	for i, candidate := range idx.names {
		rank := fuzzy.LevenshteinDistance(nk, candidate)
		switch {
		case rank < bestRank:
			bestRank, bestID, unique = rank, idx.nameIDs[i], true
		case rank == bestRank && idx.nameIDs[i] != bestID:
			unique = false
		}
	}
	if bestRank > maxRank || !unique || bestID == "" {
		return "", false
	}
	return bestID, true
}

// guideIDCandidates returns the external ID spellings a ripper might use for
// a channel: the canonical aggregate ID, the provider-local ID, and the
// provider-prefixed local ID.
func guideIDCandidates(provider, channelID, localID string) []string {
	out := []string{channelID}
	if localID != "" {
		out = append(out, localID, provider+"-"+localID)
	}
	return out
}

// NormalizeName reduces a channel name to a deterministic matching key:
// lowercase, punctuation collapsed, quality and country noise tokens
// stripped, then joined without spaces.
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	toks := strings.Fields(b.String())
	if len(toks) == 0 {
		return ""
	}
	noise := map[string]struct{}{
		"hd": {}, "uhd": {}, "fhd": {}, "sd": {}, "4k": {},
		"us": {}, "usa": {}, "uk": {}, "ca": {}, "canada": {},
		"hq": {}, "backup": {}, "raw": {},
	}
	out := toks[:0]
	for _, t := range toks {
		if _, drop := noise[t]; drop {
			continue
		}
		out = append(out, t)
	}
	joined := strings.Join(out, "")
	return strings.ReplaceAll(joined, "channel", "")
}

// SortedGuideIDs returns the index's guide IDs in stable order, so scans
// over the guide resolve deterministically.
func (idx *Index) SortedGuideIDs() []string {
	if idx.sortedIDs == nil {
		ids := make([]string, 0, len(idx.byID))
		for _, id := range idx.byID {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		idx.sortedIDs = ids
	}
	return idx.sortedIDs
}
