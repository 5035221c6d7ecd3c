package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// CanonicalID computes the stable id for an opportunity from a canonical
// tuple: lowercased trimmed title and agency, then topic_number if present,
// otherwise program_id and branch when either is set. Only when none of
// those anchors exists does it fall back to whichever of phase/year/close
// date are non-empty, then the final URL path segment. An anchored row's id
// never includes a date, so the same solicitation re-observed without a
// date still deduplicates against the version that had one.
func CanonicalID(raw RawOpportunity) string {
	parts := []string{
		foldKey(raw.Title),
		foldKey(raw.AgencyName),
	}

	if raw.TopicNumber != "" {
		parts = append(parts, foldKey(raw.TopicNumber))
	} else if raw.ProgramID != "" || raw.Branch != "" {
		parts = append(parts, foldKey(raw.ProgramID), foldKey(raw.Branch))
	} else {
		// No topic_number/program_id/branch to anchor on: fall back to
		// whatever dates exist, then the final URL path segment, so two
		// otherwise-identical rows don't collide.
		for _, v := range []string{raw.Phase, raw.Year, raw.RawDeadline} {
			if v != "" {
				parts = append(parts, foldKey(v))
			}
		}
		if seg := lastURLSegment(raw.ExternalURL); seg != "" {
			parts = append(parts, foldKey(seg))
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func lastURLSegment(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	path := strings.TrimSuffix(u.Path, "/")
	idx := strings.LastIndex(path, "/")
	if idx == -1 {
		return path
	}
	return path[idx+1:]
}
