package wpp

import "strings"

const (
	SuffixContact    = "@c.us"
	SuffixGroup      = "@g.us"
	SuffixBroadcast  = "@broadcast"
	SuffixNewsletter = "@newsletter"
	SuffixLID        = "@lid"

	suffixServer = "@s.whatsapp.net"

	// Group ids created after 2021 are 18 digits long, phone numbers never are.
	groupIDMinDigits = 18
)

var knownSuffixes = []string{
	SuffixContact,
	SuffixGroup,
	SuffixBroadcast,
	SuffixNewsletter,
	SuffixLID,
}

// NormalizeChatID returns id in the form the page API expects.
// It never fails: anything it cannot classify gets the contact suffix and the
// page decides whether the chat exists.
func NormalizeChatID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if HasKnownSuffix(id) {
		return id
	}
	if base, ok := strings.CutSuffix(id, suffixServer); ok {
		return base + SuffixContact
	}
	if i := strings.IndexByte(id, '@'); i >= 0 {
		// Unknown domain: keep the user part, fix the suffix.
		id = id[:i]
	}

	switch {
	case id == "status":
		return id + SuffixBroadcast
	case strings.Contains(id, "-"), isDigits(id) && len(id) >= groupIDMinDigits:
		return id + SuffixGroup
	default:
		return id + SuffixContact
	}
}

// HasKnownSuffix reports whether id already ends in a suffix the page accepts.
func HasKnownSuffix(id string) bool {
	for _, s := range knownSuffixes {
		if strings.HasSuffix(id, s) {
			return true
		}
	}
	return false
}

// IsGroup reports whether a normalized id addresses a group chat.
func IsGroup(id string) bool {
	return strings.HasSuffix(id, SuffixGroup)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
