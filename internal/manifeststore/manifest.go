// Package manifeststore implements the Manifest Store (spec §4.6): the
// per-fingerprint ordered list of observed header sets for a given
// (source, compiler, options) tuple, persisted as JSON and LRU-ordered by
// most-recent-use at the head. Its sharded, atomically-written file layout
// is grounded on the teacher codebase's pkg/staging package (content-
// addressed directory sharding) combined with pkg/filesystem/atomic.go's
// write-temp-then-rename discipline.
package manifeststore

// FormatVersion is folded into the manifest hash by the Cache Engine (spec
// §3: "schema-breaking changes bump a format-version integer that is folded
// into the manifest hash so old files become unreachable and expire
// naturally"). Bump this whenever ManifestEntry's JSON shape changes
// incompatibly.
const FormatVersion = 1

// ManifestEntry is one observed header set for a given manifest hash: the
// canonicalized include file list, the hash of those files' contents
// combined, and the object hash it derives.
type ManifestEntry struct {
	IncludeFiles        []string `json:"includeFiles"`
	IncludesContentHash string   `json:"includesContentHash"`
	ObjectHash          string   `json:"objectHash"`
}

// Manifest is an ordered sequence of ManifestEntry, head = most recently
// used, per spec §3.
type Manifest struct {
	Entries []ManifestEntry `json:"entries"`
}

// NewManifest creates an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{}
}

// AddEntry prepends entry to the manifest, removing any pre-existing entry
// with the same IncludesContentHash first, per spec §4.6 ("add_entry
// prepends and removes any pre-existing entry with the same
// includes-content-hash").
func (m *Manifest) AddEntry(entry ManifestEntry) {
	filtered := m.Entries[:0:0]
	for _, existing := range m.Entries {
		if existing.IncludesContentHash != entry.IncludesContentHash {
			filtered = append(filtered, existing)
		}
	}
	m.Entries = append([]ManifestEntry{entry}, filtered...)
}

// TouchEntry moves the entry whose ObjectHash matches objHash to the head of
// the manifest, per spec §4.6 ("touch_entry(obj_hash) moves the matching
// entry to the head"). It reports whether a matching entry was found.
func (m *Manifest) TouchEntry(objHash string) bool {
	for i, entry := range m.Entries {
		if entry.ObjectHash == objHash {
			if i == 0 {
				return true
			}
			m.Entries = append(m.Entries[:i:i], m.Entries[i+1:]...)
			m.Entries = append([]ManifestEntry{entry}, m.Entries...)
			return true
		}
	}
	return false
}

// Dedup collapses entries that share an IncludesContentHash, keeping the
// earliest occurrence in the slice, per spec §4.6 ("On deserialization,
// duplicate entries (by includes-content-hash) are collapsed, keeping the
// earliest occurrence").
func (m *Manifest) Dedup() {
	seen := make(map[string]bool, len(m.Entries))
	deduped := m.Entries[:0:0]
	for _, entry := range m.Entries {
		if seen[entry.IncludesContentHash] {
			continue
		}
		seen[entry.IncludesContentHash] = true
		deduped = append(deduped, entry)
	}
	m.Entries = deduped
}
