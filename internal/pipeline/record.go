package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strconv"
)

// localIDLength is the truncated hex length of the derived local identifier.
const localIDLength = 12

// Record is the unit of work flowing through the pipeline: one remote
// document and, once downloaded, its local body location.
type Record struct {
	URL        string `json:"url"`
	LocalID    string `json:"local_id"`
	Title      string `json:"title"`
	Citation   string `json:"citation,omitempty"`
	Year       int    `json:"year,omitempty"`
	SourceCode string `json:"source_code"`
	LocalPath  string `json:"local_path,omitempty"`
}

// DeriveLocalID computes the stable local identifier for a record from its
// citation, falling back to URL, then title. The same inputs always yield
// the same identifier across runs.
func DeriveLocalID(rec Record) string {
	seed := rec.Citation
	if seed == "" {
		seed = rec.URL
	}
	if seed == "" {
		seed = rec.Title
	}
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:localIDLength]
}

// EnsureLocalID fills in the derived identifier when missing.
func (r *Record) EnsureLocalID() {
	if r.LocalID == "" {
		r.LocalID = DeriveLocalID(*r)
	}
}

// Valid reports whether the record carries the fields every merged record
// must have. Diagnostic only; invalid records are counted, not dropped.
func (r Record) Valid() bool {
	return r.URL != "" && r.Title != "" && r.SourceCode != ""
}

var yearPattern = regexp.MustCompile(`\b(1[5-9]\d{2}|20\d{2})\b`)

// RecoverYear attempts to extract a plausible 4-digit year from the record's
// citation, falling back to the URL path. Returns 0 when nothing matches.
func RecoverYear(rec Record) int {
	if y := matchYear(rec.Citation); y > 0 {
		return y
	}
	if u, err := url.Parse(rec.URL); err == nil {
		if y := matchYear(u.Path); y > 0 {
			return y
		}
	}
	return 0
}

func matchYear(s string) int {
	m := yearPattern.FindString(s)
	if m == "" {
		return 0
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return y
}

// recordSet is the orchestrator's working in-memory dataset: insertion
// ordered, deduplicated by non-empty URL.
type recordSet struct {
	items []Record
	byURL map[string]int
}

func newRecordSet(records []Record) *recordSet {
	s := &recordSet{byURL: make(map[string]int, len(records))}
	for _, rec := range records {
		s.add(rec)
	}
	return s
}

// add merges one record, assigning a local ID when missing. It returns false
// when a record with the same non-empty URL is already present.
func (s *recordSet) add(rec Record) bool {
	if rec.URL != "" {
		if _, dup := s.byURL[rec.URL]; dup {
			return false
		}
	}
	rec.EnsureLocalID()
	s.items = append(s.items, rec)
	if rec.URL != "" {
		s.byURL[rec.URL] = len(s.items) - 1
	}
	return true
}

func (s *recordSet) len() int { return len(s.items) }

// records returns a copy of the working set in insertion order.
func (s *recordSet) records() []Record {
	return append([]Record(nil), s.items...)
}
