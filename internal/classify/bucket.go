package classify

import "github.com/Dan9191/scheme-service/internal/models"

// BucketEntry is a scheme narrowed to the chits relevant to one tab.
type BucketEntry struct {
	Scheme models.Scheme    `json:"scheme"`
	Chits  []models.ChitRef `json:"chit_refs"`
}

// Bucket returns the active schemes that have at least one active chit
// matching tab. Each returned scheme carries only its matching chits.
func Bucket(schemes []models.Scheme, tab string) []BucketEntry {
	var out []BucketEntry
	for _, s := range schemes {
		if !s.Active {
			continue
		}
		var relevant []models.Chit
		for _, c := range s.Chits {
			if c.Active && Matches(Normalize(c.Frequency), tab) {
				relevant = append(relevant, c)
			}
		}
		if len(relevant) == 0 {
			continue
		}

		narrowed := s
		narrowed.Chits = relevant
		refs := make([]models.ChitRef, len(relevant))
		for i, c := range relevant {
			refs[i] = models.ChitRef{ChitID: c.ID, Amount: c.Amount}
		}
		out = append(out, BucketEntry{Scheme: narrowed, Chits: refs})
	}
	return out
}

// IndexOf returns the position of schemeID in bucket, or -1.
func IndexOf(bucket []BucketEntry, schemeID string) int {
	for i, e := range bucket {
		if e.Scheme.ID == schemeID {
			return i
		}
	}
	return -1
}
