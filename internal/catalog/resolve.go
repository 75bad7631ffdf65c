package catalog

import "strings"

// Tier identifies which match strategy produced a [MatchResult].
type Tier int

const (
	// TierNone means nothing matched.
	TierNone Tier = iota

	// TierExact means a filename, or a filename without its extension,
	// equalled the query verbatim.
	TierExact

	// TierUnique means exactly one filename contained the query.
	TierUnique

	// TierAmbiguous means two or more filenames contained the query.
	TierAmbiguous
)

// String returns the human-readable name of the tier.
func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierUnique:
		return "unique"
	case TierAmbiguous:
		return "ambiguous"
	default:
		return "none"
	}
}

// MatchResult holds the candidates for a query in catalog order.
type MatchResult struct {
	Tier   Tier
	Assets []Asset
}

// Resolved returns the single matched asset. ok is false when the result is
// empty or ambiguous.
func (m MatchResult) Resolved() (Asset, bool) {
	if len(m.Assets) != 1 {
		return Asset{}, false
	}
	return m.Assets[0], true
}

// Ambiguous reports whether more than one asset matched.
func (m MatchResult) Ambiguous() bool {
	return len(m.Assets) > 1
}

// Resolver answers free-text queries against a [Catalog].
type Resolver struct {
	catalog *Catalog
}

// NewResolver creates a resolver reading from c.
func NewResolver(c *Catalog) *Resolver {
	return &Resolver{catalog: c}
}

// Resolve matches query against the filenames in cat. The first tier that
// yields a result wins:
//
//  1. a filename equal to query, else a display name equal to query;
//  2. the only filename containing query;
//  3. every filename containing query, in catalog order.
//
// Matching is case-sensitive and query is used as given, so an empty query
// contains-matches every asset, even one whose display name is empty.
func (r *Resolver) Resolve(cat Category, query string) MatchResult {
	assets := r.catalog.list(cat)

	for _, a := range assets {
		if a.Filename == query {
			return MatchResult{Tier: TierExact, Assets: []Asset{a}}
		}
	}
	for _, a := range assets {
		if query != "" && a.DisplayName == query {
			return MatchResult{Tier: TierExact, Assets: []Asset{a}}
		}
	}

	var hits []Asset
	for _, a := range assets {
		if strings.Contains(a.Filename, query) {
			hits = append(hits, a)
		}
	}

	switch len(hits) {
	case 0:
		return MatchResult{Tier: TierNone}
	case 1:
		return MatchResult{Tier: TierUnique, Assets: hits}
	default:
		return MatchResult{Tier: TierAmbiguous, Assets: hits}
	}
}
