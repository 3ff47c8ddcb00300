package provider

import "strings"

// bestPrefixLen returns the length of the longest catalog prefix of d that
// matches credential, or 0 when none match.
func bestPrefixLen(d *Descriptor, credential string) int {
	best := 0
	for _, p := range d.Prefixes {
		if strings.HasPrefix(credential, p) && len(p) > best {
			best = len(p)
		}
	}
	return best
}

// match computes the descriptors whose best matching prefix is the most
// specific across the catalog. More than one winner means the credential's
// prefix is generic and shared between vendors.
func match(credential string) []Descriptor {
	maxLen := 0
	for i := range catalog {
		if l := bestPrefixLen(&catalog[i], credential); l > maxLen {
			maxLen = l
		}
	}
	if maxLen == 0 {
		return nil
	}

	var winners []Descriptor
	for i := range catalog {
		if bestPrefixLen(&catalog[i], credential) == maxLen {
			winners = append(winners, catalog[i])
		}
	}
	return winners
}

// Detect returns the provider that structurally matches the credential, or
// nil when nothing matches or the match is ambiguous. Vendor-qualified
// prefixes always win over the shorter generic prefixes they extend:
// "sk-ant-..." resolves to Anthropic even though "sk-" alone would match
// several vendors. Detect never silently resolves an ambiguous credential;
// callers must consult Ambiguous and fall back to an explicit ByID choice.
func Detect(credential string) *Descriptor {
	winners := match(credential)
	if len(winners) != 1 {
		return nil
	}
	d := winners[0]
	return &d
}

// Ambiguous returns the candidate set for a credential whose most specific
// matching prefix is shared by more than one provider. A non-empty result is
// a request for more input, not an error: the caller should present the
// candidates and re-invoke with an explicit provider id via ByID.
func Ambiguous(credential string) []Descriptor {
	winners := match(credential)
	if len(winners) < 2 {
		return nil
	}
	return winners
}
