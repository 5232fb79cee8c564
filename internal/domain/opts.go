package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Default request parameters applied by SearchOpts.Normalize.
const (
	DefaultTopK                = 10
	DefaultThreshold           = 0.4
	DefaultEscalationThreshold = 0.85
)

// SearchOpts is the per-request configuration for one screening call.
type SearchOpts struct {
	Mode                Mode
	TopK                int
	Threshold           float64
	EntityTypes         []string
	MetadataFilters     map[string][]string
	EnableEscalation    bool
	EscalationThreshold float64
	EnableDeduplication bool
	ClientID            string
}

// DefaultOpts returns hybrid-mode options with escalation enabled.
func DefaultOpts() SearchOpts {
	return SearchOpts{
		Mode:                ModeHybrid,
		TopK:                DefaultTopK,
		Threshold:           DefaultThreshold,
		EnableEscalation:    true,
		EscalationThreshold: DefaultEscalationThreshold,
		EnableDeduplication: true,
	}
}

// Normalize fills zero-valued fields with defaults and clamps ranges.
func (o *SearchOpts) Normalize() {
	if o.Mode == "" {
		o.Mode = ModeHybrid
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.Threshold < 0 {
		o.Threshold = 0
	}
	if o.Threshold > 1 {
		o.Threshold = 1
	}
	if o.EscalationThreshold <= 0 {
		o.EscalationThreshold = DefaultEscalationThreshold
	}
}

// Validate checks caller-supplied options.
func (o *SearchOpts) Validate() error {
	if !o.Mode.Valid() {
		return fmt.Errorf("%w: unsupported search mode %q", ErrInvalidQuery, o.Mode)
	}
	return nil
}

// CacheKey derives a deterministic result-cache key from the query
// text and every option that affects the result set. Map and slice
// fields are serialized in sorted order so equal option sets always
// hash identically.
func (o *SearchOpts) CacheKey(query string) string {
	var b strings.Builder
	b.WriteString(query)
	fmt.Fprintf(&b, "|%s|%d|%.4f|%v|%.4f|%v",
		o.Mode, o.TopK, o.Threshold, o.EnableEscalation, o.EscalationThreshold, o.EnableDeduplication)

	types := append([]string(nil), o.EntityTypes...)
	sort.Strings(types)
	b.WriteString("|" + strings.Join(types, ","))

	keys := make([]string, 0, len(o.MetadataFilters))
	for k := range o.MetadataFilters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vals := append([]string(nil), o.MetadataFilters[k]...)
		sort.Strings(vals)
		fmt.Fprintf(&b, "|%s=%s", k, strings.Join(vals, ","))
	}

	h := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(h[:])
}

// MatchesMetadata reports whether the candidate satisfies every
// metadata filter: for each key, the candidate's value must equal one
// of the allowed values ("in-list" semantics).
func (o *SearchOpts) MatchesMetadata(c *Candidate) bool {
	if len(o.MetadataFilters) == 0 {
		return true
	}
	for key, allowed := range o.MetadataFilters {
		got, ok := c.Metadata[key]
		if !ok {
			return false
		}
		found := false
		for _, v := range allowed {
			if got == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
