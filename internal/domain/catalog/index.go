package catalog

import (
	"math"
	"sort"
	"strings"
	"sync"
)

// MatchWeights configures the scoring weights for each token class.
type MatchWeights struct {
	Name     float64
	Strength float64
	Form     float64
}

// DefaultMatchWeights returns the default scoring weights. Strength and form
// tokens discriminate between otherwise similar entries, so they carry more
// weight than a generic name token of the same similarity.
func DefaultMatchWeights() MatchWeights {
	return MatchWeights{
		Name:     0.60,
		Strength: 0.25,
		Form:     0.15,
	}
}

// Index is the in-memory structure over the medicine master data. It owns the
// only mutable shared state in the system (per-medicine stock), so all stock
// mutations go through DecrementStock/AddStock under the index lock.
type Index struct {
	mu      sync.RWMutex
	byID    map[string]*Medicine
	ids     []string
	weights MatchWeights
}

// NewIndex creates an empty index with default weights.
func NewIndex() *Index {
	return &Index{
		byID:    make(map[string]*Medicine),
		weights: DefaultMatchWeights(),
	}
}

// Load replaces the index contents with the given medicines.
func (ix *Index) Load(meds []*Medicine) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.byID = make(map[string]*Medicine, len(meds))
	ix.ids = ix.ids[:0]
	for _, m := range meds {
		cp := *m
		ix.byID[m.ID] = &cp
		ix.ids = append(ix.ids, m.ID)
	}
	sort.Strings(ix.ids)
}

// Lookup returns a copy of the medicine with the given id.
func (ix *Index) Lookup(id string) (*Medicine, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	m, ok := ix.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// List returns copies of all medicines in deterministic id order.
func (ix *Index) List() []*Medicine {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]*Medicine, 0, len(ix.ids))
	for _, id := range ix.ids {
		cp := *ix.byID[id]
		out = append(out, &cp)
	}
	return out
}

// Resolve fuzzy-matches a name fragment against the catalog and returns all
// candidates scoring above zero, ordered by score descending (id ascending on
// ties, keeping results deterministic for identical input and catalog state).
func (ix *Index) Resolve(nameFragment string) []ScoredMedicine {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	fragment := normalizeTokens(nameFragment)
	if len(fragment) == 0 {
		return nil
	}

	var results []ScoredMedicine
	for _, id := range ix.ids {
		m := ix.byID[id]
		score := ix.scoreMedicine(fragment, m)
		if score <= 0 {
			continue
		}
		results = append(results, ScoredMedicine{Medicine: *m, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Medicine.ID < results[j].Medicine.ID
	})
	return results
}

// DecrementStock atomically checks and decrements stock for one medicine.
// Returns ErrInsufficientStock without mutating when stock < qty.
func (ix *Index) DecrementStock(id string, qty int) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	m, ok := ix.byID[id]
	if !ok {
		return ErrNotFound
	}
	if m.StockQty < qty {
		return ErrInsufficientStock
	}
	m.StockQty -= qty
	return nil
}

// AddStock increases stock for one medicine (procurement arrival, manual restock).
func (ix *Index) AddStock(id string, qty int) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	m, ok := ix.byID[id]
	if !ok {
		return ErrNotFound
	}
	m.StockQty += qty
	return nil
}

// scoreMedicine computes a weighted similarity between the fragment tokens and
// one catalog entry. Each entry token class (name, strength, form) contributes
// its best fragment-token similarity scaled by the class weight.
func (ix *Index) scoreMedicine(fragment []string, m *Medicine) float64 {
	nameTokens := normalizeTokens(m.Name)
	strengthTokens := normalizeTokens(m.Strength)
	formTokens := normalizeTokens(m.Form)

	score := ix.weights.Name * bestTokenSimilarity(fragment, nameTokens)

	// Strength and form only count when the caller actually mentioned
	// something comparable; otherwise their weight folds into the name match
	// so a bare "aspirin" can still clear the resolve threshold.
	if s := bestTokenSimilarity(fragment, strengthTokens); s > 0 {
		score += ix.weights.Strength * s
	} else {
		score += ix.weights.Strength * bestTokenSimilarity(fragment, nameTokens)
	}
	if s := bestTokenSimilarity(fragment, formTokens); s > 0 {
		score += ix.weights.Form * s
	} else {
		score += ix.weights.Form * bestTokenSimilarity(fragment, nameTokens)
	}

	return math.Round(score*1000) / 1000
}

// bestTokenSimilarity returns the highest Jaro-Winkler similarity between any
// fragment token and any entry token, counting only pairs above 0.5 so that
// unrelated short tokens do not accumulate noise.
func bestTokenSimilarity(fragment, entry []string) float64 {
	best := 0.0
	for _, f := range fragment {
		for _, e := range entry {
			sim := jaroWinklerSimilarity(f, e)
			if sim < 0.5 {
				continue
			}
			if sim > best {
				best = sim
			}
		}
	}
	return best
}

func normalizeTokens(s string) []string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if r == '.' || r == ',' || r == '-' || r == '/' {
			return ' '
		}
		return r
	}, s)
	return strings.Fields(s)
}

// jaroWinklerSimilarity computes the Jaro-Winkler similarity between two
// strings (case-insensitive). Returns a value between 0.0 and 1.0.
func jaroWinklerSimilarity(s1, s2 string) float64 {
	s1 = strings.ToLower(s1)
	s2 = strings.ToLower(s2)

	if len(s1) == 0 || len(s2) == 0 {
		return 0.0
	}

	if s1 == s2 {
		return 1.0
	}

	s1Len := len(s1)
	s2Len := len(s2)

	maxDist := s1Len
	if s2Len > maxDist {
		maxDist = s2Len
	}
	maxDist = maxDist/2 - 1
	if maxDist < 0 {
		maxDist = 0
	}

	s1Matches := make([]bool, s1Len)
	s2Matches := make([]bool, s2Len)

	matches := 0
	transpositions := 0

	for i := 0; i < s1Len; i++ {
		start := i - maxDist
		if start < 0 {
			start = 0
		}
		end := i + maxDist + 1
		if end > s2Len {
			end = s2Len
		}

		for j := start; j < end; j++ {
			if s2Matches[j] || s1[i] != s2[j] {
				continue
			}
			s1Matches[i] = true
			s2Matches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	k := 0
	for i := 0; i < s1Len; i++ {
		if !s1Matches[i] {
			continue
		}
		for !s2Matches[k] {
			k++
		}
		if s1[i] != s2[k] {
			transpositions++
		}
		k++
	}

	jaro := (float64(matches)/float64(s1Len) +
		float64(matches)/float64(s2Len) +
		float64(matches-transpositions/2)/float64(matches)) / 3.0

	// Winkler adjustment: boost for common prefix (up to 4 chars).
	prefixLen := 0
	maxPrefix := 4
	if s1Len < maxPrefix {
		maxPrefix = s1Len
	}
	if s2Len < maxPrefix {
		maxPrefix = s2Len
	}
	for i := 0; i < maxPrefix; i++ {
		if s1[i] == s2[i] {
			prefixLen++
		} else {
			break
		}
	}

	return jaro + float64(prefixLen)*0.1*(1.0-jaro)
}
