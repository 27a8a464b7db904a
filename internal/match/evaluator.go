package match

import (
	"fmt"
	"math"
	"strings"

	"github.com/meridian-data/crossmatch/internal/common"
	"github.com/meridian-data/crossmatch/internal/model"
)

// projection is the typed view of a record used by the evaluator. Records
// arrive as dynamic column maps; the field mapping collapses them to this
// shape once, so everything downstream is statically typed.
type projection struct {
	vendor     string
	rawProduct string
	sku        string
	market     string
	language   string
}

func project(r model.Record, m model.FieldMapping) (projection, error) {
	vendorCol := m.Vendor()
	productCol := m.Product()
	if vendorCol == "" || productCol == "" {
		return projection{}, fmt.Errorf("%w: mapping must name vendor and product columns", common.ErrMissingColumn)
	}
	if !r.Has(vendorCol) {
		return projection{}, fmt.Errorf("%w: %q (row %d)", common.ErrMissingColumn, vendorCol, r.Index)
	}
	if !r.Has(productCol) {
		return projection{}, fmt.Errorf("%w: %q (row %d)", common.ErrMissingColumn, productCol, r.Index)
	}

	p := projection{
		vendor:     r.Get(vendorCol),
		rawProduct: r.Get(productCol),
		market:     r.Get(m.Market()),
		language:   r.Get(m.Language()),
	}
	if skuCol := m.SKU(); skuCol != "" {
		p.sku = r.Get(skuCol)
	}
	return p, nil
}

// Evaluate scores one (query, candidate) pair and classifies it. Pure: the
// same inputs always produce the identical outcome. Thresholds are accepted
// as-is; validating them is the caller's job.
func Evaluate(query, candidate model.Record, queryMap, candidateMap model.FieldMapping, th model.Thresholds) (model.PairOutcome, error) {
	q, err := project(query, queryMap)
	if err != nil {
		return model.PairOutcome{}, fmt.Errorf("query record: %w", err)
	}
	c, err := project(candidate, candidateMap)
	if err != nil {
		return model.PairOutcome{}, fmt.Errorf("candidate record: %w", err)
	}

	// Market and language are hard vetoes: no score salvages a mismatch.
	if q.market != "" && c.market != "" && !strings.EqualFold(q.market, c.market) {
		return model.PairOutcome{
			Decision: model.DecisionNotApproved,
			Reason:   fmt.Sprintf("Market mismatch: %s vs %s", q.market, c.market),
		}, nil
	}
	if q.language != "" && c.language != "" && !strings.EqualFold(q.language, c.language) {
		return model.PairOutcome{
			Decision: model.DecisionNotApproved,
			Reason:   fmt.Sprintf("Language mismatch: %s vs %s", q.language, c.language),
		}, nil
	}

	vendorScore := Score(Normalize(q.vendor), Normalize(c.vendor))
	productScore := Score(Normalize(q.rawProduct), Normalize(c.rawProduct))

	overall := int(math.Floor(th.WeightVendor*float64(vendorScore) + th.WeightProduct*float64(productScore)))

	skuExact := false
	if q.sku != "" && c.sku != "" && NormalizeCompact(q.sku) == NormalizeCompact(c.sku) {
		skuExact = true
		overall += th.SKUExactBoost
		if overall > 100 {
			overall = 100
		}
	}

	// Disjoint numeric tokens in the raw product text ("Pump 120" vs
	// "Pump 240") usually mean different models. The penalty may push the
	// overall negative; classification happens on the raw value.
	if disjointTokens(NumericTokens(q.rawProduct), NumericTokens(c.rawProduct)) {
		overall -= th.NumericMismatchPenalty
	}

	exact := (vendorScore >= 95 && productScore >= 95) || skuExact

	decision, reason := classify(overall, vendorScore, productScore, skuExact, th)

	return model.PairOutcome{
		VendorScore:  vendorScore,
		ProductScore: productScore,
		Overall:      overall,
		Exact:        exact,
		Decision:     decision,
		Reason:       reason,
	}, nil
}

// classify maps a final overall score and its component scores to a decision.
// Pure function of its arguments; no hidden state.
func classify(overall, vendorScore, productScore int, skuExact bool, th model.Thresholds) (model.Decision, string) {
	var flags []string
	if overall < 30 {
		flags = append(flags, "Score too low")
	}
	if skuExact {
		flags = append(flags, "Exact SKU match")
	}
	if vendorScore < th.VendorMin {
		flags = append(flags, "Low vendor similarity")
	}
	if productScore < th.ProductMin {
		flags = append(flags, "Low product similarity")
	}

	reason := "Good match"
	if len(flags) > 0 {
		reason = strings.Join(flags, "; ")
	}

	switch {
	case overall < 30:
		return model.DecisionAutoNotApproved, reason
	case overall >= th.OverallAccept && vendorScore >= th.VendorMin && productScore >= th.ProductMin:
		return model.DecisionAutoApproved, reason
	default:
		return model.DecisionPending, reason
	}
}
