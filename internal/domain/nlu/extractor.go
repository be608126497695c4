package nlu

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pharmguard/pharmguard/internal/domain/catalog"
)

var (
	// ErrInvalidQuantity is returned for malformed or non-positive quantities.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrUnresolvedMedicine is returned when no candidate clears the low-confidence floor.
	ErrUnresolvedMedicine = errors.New("unresolved medicine")
	// ErrNoChoice is returned by a disambiguator that declines to pick a candidate.
	ErrNoChoice = errors.New("no disambiguation choice")
)

// Confidence thresholds for fuzzy resolution. At or above ResolveThreshold the
// top candidate wins outright; between the two the turn goes to disambiguation;
// below DisambiguateFloor extraction fails.
const (
	ResolveThreshold  = 0.70
	DisambiguateFloor = 0.60
)

const maxCandidates = 3

// Disambiguator picks one medicine id out of an ambiguous candidate list.
// Implementations must bound their own latency; an error (including
// ErrNoChoice) means the caller falls back to surfacing the candidates.
type Disambiguator interface {
	Choose(ctx context.Context, utterance string, candidates []catalog.ScoredMedicine) (string, error)
}

// TurnContext carries caller-supplied state from a previous turn.
type TurnContext struct {
	// PrescriptionRef is an already-attached prescription reference.
	PrescriptionRef string
	// ChosenMedicineID short-circuits resolution when the caller already
	// picked a candidate in a disambiguation follow-up.
	ChosenMedicineID string
}

// ParsedRequest is the slot-filling output for one conversation turn.
type ParsedRequest struct {
	Text       string                   `json:"text"`
	MedicineID string                   `json:"medicine_id,omitempty"`
	Quantity   int                      `json:"quantity"`
	Strength   string                   `json:"strength,omitempty"`
	Confidence float64                  `json:"confidence"`
	Candidates []catalog.ScoredMedicine `json:"candidates,omitempty"`
}

// Resolved reports whether the request was mapped to a single medicine.
func (p *ParsedRequest) Resolved() bool {
	return p.MedicineID != ""
}

var (
	strengthPattern = regexp.MustCompile(`(\d+)\s*mg\b`)
	quantityPattern = regexp.MustCompile(`(?:^|\s)(-?\d+)(?:\s*(?:units?|tablets?|tabs?|pills?|capsules?|strips?))?\b`)
)

// wordQuantities maps spelled-out counts to numbers.
var wordQuantities = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"a": 1, "an": 1, "couple": 2, "few": 3, "several": 5,
}

// fillerWords are dropped before the remaining text is treated as the
// medicine-name span.
var fillerWords = map[string]bool{
	"i": true, "need": true, "want": true, "buy": true, "get": true,
	"give": true, "me": true, "please": true, "of": true, "some": true,
	"the": true, "my": true, "order": true, "would": true, "like": true,
	"can": true, "you": true, "send": true, "for": true, "and": true,
	"units": true, "unit": true, "tablets": true, "tablet": true,
	"tabs": true, "tab": true, "pills": true, "pill": true,
	"capsules": true, "capsule": true, "strips": true, "strip": true,
	"boxes": true, "box": true, "packs": true, "pack": true,
}

// Extractor turns raw utterances into ParsedRequests against the catalog.
type Extractor struct {
	index  *catalog.Index
	disamb Disambiguator
	logger zerolog.Logger
}

// NewExtractor creates an Extractor. disamb may be nil; extraction then
// degrades to surfacing ambiguous candidates to the caller.
func NewExtractor(index *catalog.Index, disamb Disambiguator, logger zerolog.Logger) *Extractor {
	return &Extractor{index: index, disamb: disamb, logger: logger}
}

// Extract runs the slot-filling pipeline: quantity, strength, medicine span,
// catalog resolve, and (when needed) disambiguation. Steps before
// disambiguation are fully deterministic for identical text and catalog state.
func (e *Extractor) Extract(ctx context.Context, text string, turnCtx *TurnContext) (*ParsedRequest, error) {
	req := &ParsedRequest{Text: text, Quantity: 1}

	lowered := strings.ToLower(text)

	if m := strengthPattern.FindStringSubmatch(lowered); m != nil {
		req.Strength = m[1] + "mg"
	}

	qty, err := extractQuantity(lowered)
	if err != nil {
		return nil, err
	}
	req.Quantity = qty

	// A follow-up turn carrying an explicit choice skips resolution.
	if turnCtx != nil && turnCtx.ChosenMedicineID != "" {
		med, err := e.index.Lookup(turnCtx.ChosenMedicineID)
		if err != nil {
			return nil, err
		}
		req.MedicineID = med.ID
		req.Confidence = 1.0
		return req, nil
	}

	span := medicineSpan(lowered, req.Strength)
	if span == "" {
		return req, ErrUnresolvedMedicine
	}

	candidates := e.index.Resolve(span)
	if len(candidates) == 0 || candidates[0].Score < DisambiguateFloor {
		if len(candidates) > maxCandidates {
			candidates = candidates[:maxCandidates]
		}
		req.Candidates = candidates
		return req, ErrUnresolvedMedicine
	}

	top := candidates[0]
	if top.Score >= ResolveThreshold {
		req.MedicineID = top.Medicine.ID
		req.Confidence = top.Score
		return req, nil
	}

	// Low confidence: keep the top-k and try the optional collaborator.
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	req.Candidates = candidates

	if e.disamb != nil {
		id, err := e.disamb.Choose(ctx, text, candidates)
		if err == nil {
			for _, c := range candidates {
				if c.Medicine.ID == id {
					req.MedicineID = id
					req.Confidence = c.Score
					req.Candidates = nil
					return req, nil
				}
			}
			e.logger.Warn().Str("choice", id).Msg("disambiguator returned unknown candidate")
		} else if !errors.Is(err, ErrNoChoice) {
			e.logger.Warn().Err(err).Msg("disambiguation failed, surfacing candidates")
		}
	}

	// No usable choice: hand the candidates back for a follow-up turn.
	return req, nil
}

// extractQuantity finds the count token in the utterance. Strength mentions
// like "75mg" never count as quantities.
func extractQuantity(lowered string) (int, error) {
	stripped := strengthPattern.ReplaceAllString(lowered, " ")

	if m := quantityPattern.FindStringSubmatch(stripped); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, ErrInvalidQuantity
		}
		if n <= 0 {
			return 0, ErrInvalidQuantity
		}
		return n, nil
	}

	// Articles are skipped so "a couple" reads as 2; a bare article falls
	// through to the default of 1.
	for _, word := range strings.Fields(stripped) {
		if word == "a" || word == "an" {
			continue
		}
		if n, ok := wordQuantities[word]; ok {
			return n, nil
		}
	}

	return 1, nil
}

// medicineSpan strips quantity, strength, and filler tokens, leaving the text
// treated as the medicine name. The bare strength digits are re-appended so
// "aspirin 75mg" matches the 75mg entry over its siblings.
func medicineSpan(lowered, strength string) string {
	stripped := strengthPattern.ReplaceAllString(lowered, " ")
	stripped = strings.Map(func(r rune) rune {
		if r == '.' || r == ',' || r == '!' || r == '?' {
			return ' '
		}
		return r
	}, stripped)

	var kept []string
	for _, word := range strings.Fields(stripped) {
		if fillerWords[word] {
			continue
		}
		if _, isNumber := wordQuantities[word]; isNumber {
			continue
		}
		if _, err := strconv.Atoi(word); err == nil {
			continue
		}
		kept = append(kept, word)
	}

	if strength != "" {
		kept = append(kept, strength)
	}
	return strings.Join(kept, " ")
}
