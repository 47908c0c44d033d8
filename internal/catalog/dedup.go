package catalog

import "strings"

// IdentityKey is the duplicate-detection key for a channel: display name and
// group, casefolded with runs of whitespace collapsed to one space. Two
// channels with equal keys are the same logical stream.
func IdentityKey(name, group string) string {
	return collapse(name) + "\x00" + collapse(group)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Dedupe collapses duplicate channels, keeping the first-seen instance.
// Input order is provider priority order (the scheduler merges provider
// results in enable order), so "first seen" is also "highest priority".
// Output preserves the relative order of survivors; running Dedupe on its own
// output is a no-op.
func Dedupe(channels []Channel) []Channel {
	seen := make(map[string]struct{}, len(channels))
	out := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		key := IdentityKey(ch.Name, ch.Group)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ch)
	}
	return out
}

// AssignNumbers fills in channel numbers for channels that have none,
// continuing past the highest provider-native number so assigned numbers are
// deterministic given identical input ordering.
func AssignNumbers(channels []Channel) {
	next := 1
	for _, ch := range channels {
		if ch.Number >= next {
			next = ch.Number + 1
		}
	}
	for i := range channels {
		if channels[i].Number == 0 {
			channels[i].Number = next
			next++
		}
	}
}
