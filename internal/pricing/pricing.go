// Package pricing implements the rule-evaluation algorithm of spec §4.5
// (component C5): given a single UsageEvent, deterministically produce zero
// or more LineItemDrafts. Rule shapes are decoded into the closed sum type
// store.Rule at the edge (the "strict decoders" redesign note in spec §9),
// so this package only ever switches on an already-validated store.RuleKind.
package pricing

import (
	"context"
	"math"
	"sort"

	"github.com/fluxmeter/billing-core/internal/store"
)

// Kind classifies a pricing failure as permanent or transient (spec §4.5
// closing line); the worker (C6) uses this as its retry key.
type Kind string

const (
	KindNoPriceBook    Kind = "NO_PRICEBOOK"
	KindNoMatchingRule Kind = "NO_MATCHING_RULE"
	KindInvalidRule    Kind = "INVALID_RULE"
)

// Error is a permanent pricing failure; anything else bubbling out of
// Engine.Price (store errors, etc) is transient by spec §4.5's closing
// sentence and is returned unwrapped.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Msg }

func permanent(kind Kind, msg string) error { return &Error{Kind: kind, Msg: msg} }

// IsPermanent reports whether err is a classified pricing.Error (permanent)
// as opposed to a transient infrastructure failure.
func IsPermanent(err error) bool {
	_, ok := err.(*Error)
	return ok
}

// LineItemDraft is the pre-persistence output of Price; C6 turns each into
// a store.BillableLineItem.
type LineItemDraft struct {
	PriceBook      store.PriceBook
	PriceRule      store.PriceRule
	AmountMinor    int64
	Description    string
	InputsSnapshot map[string]any
}

// Engine evaluates price books and rules against a single event (spec
// §4.5). It depends on the narrow PricingStore sub-interface, not the full
// store.Store.
type Engine struct {
	Store store.PricingStore
}

// Price implements the four-step algorithm of spec §4.5 exactly.
func (e *Engine) Price(ctx context.Context, event store.UsageEvent) ([]LineItemDraft, error) {
	var drafts []LineItemDraft

	cogsBooks, err := e.Store.ListPriceBooks(ctx, event.AppID, store.PriceBookKindCOGS, event.Timestamp)
	if err != nil {
		return nil, err
	}
	if len(cogsBooks) == 0 {
		return nil, permanent(KindNoPriceBook, "no COGS price book effective at event timestamp")
	}
	cogsDraft, err := e.priceAgainstBook(ctx, cogsBooks[0], event)
	if err != nil {
		return nil, err
	}
	drafts = append(drafts, cogsDraft)

	// CUSTOMER is optional: a missing book simply skips the CUSTOMER line
	// (spec §9 open question, resolved as "COGS always required, CUSTOMER
	// optional").
	customerBooks, err := e.Store.ListPriceBooks(ctx, event.AppID, store.PriceBookKindCustomer, event.Timestamp)
	if err != nil {
		return nil, err
	}
	if len(customerBooks) > 0 {
		customerDraft, err := e.priceAgainstBook(ctx, customerBooks[0], event)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, customerDraft)
	}

	return drafts, nil
}

// priceAgainstBook implements steps 2-4 of spec §4.5 for a single book.
func (e *Engine) priceAgainstBook(ctx context.Context, book store.PriceBook, event store.UsageEvent) (LineItemDraft, error) {
	rules, err := e.Store.ListPriceRules(ctx, book.ID)
	if err != nil {
		return LineItemDraft{}, err
	}

	rule, ok := selectRule(rules, event)
	if !ok {
		return LineItemDraft{}, permanent(KindNoMatchingRule, "no price rule matched event")
	}

	amount, err := evaluateRule(rule.Rule, event.Payload)
	if err != nil {
		return LineItemDraft{}, err
	}

	return LineItemDraft{
		PriceBook:   book,
		PriceRule:   rule,
		AmountMinor: amount,
		Description: string(book.Kind) + ":" + event.EventType,
		InputsSnapshot: map[string]any{
			"eventType":   event.EventType,
			"priceRuleId": rule.ID.String(),
			"inputs":      event.Payload,
			"amountMinor": amount,
		},
	}, nil
}

// selectRule implements spec §4.5 step 2: highest-priority rule whose match
// is satisfied, ties broken by earliest createdAt.
func selectRule(rules []store.PriceRule, event store.UsageEvent) (store.PriceRule, bool) {
	var candidates []store.PriceRule
	for _, r := range rules {
		if matches(r.Match, event) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return store.PriceRule{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	return candidates[0], true
}

// matches evaluates RuleMatch as a conjunction of equality checks on
// eventType and scalar payload fields (spec §4.5 step 2).
func matches(m store.RuleMatch, event store.UsageEvent) bool {
	if m.EventType != "" && m.EventType != event.EventType {
		return false
	}
	for field, want := range m.PayloadMatch {
		got, ok := event.Payload[field]
		if !ok || !scalarEqual(got, want) {
			return false
		}
	}
	return true
}

func scalarEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// evaluateRule implements spec §4.5 step 3's three rule shapes.
func evaluateRule(rule store.Rule, payload map[string]any) (int64, error) {
	switch rule.Kind {
	case store.RuleKindFlat:
		return rule.Amount, nil

	case store.RuleKindPerUnit:
		qty, ok := toFloat(payload[rule.Field])
		if !ok {
			return 0, permanent(KindInvalidRule, "per_unit field missing or non-numeric: "+rule.Field)
		}
		// Ceiling rounding toward +∞, spec §4.5 step 3 / §9 resolved open
		// question: avoids revenue leakage on fractional units.
		return int64(math.Ceil(qty * float64(rule.UnitPrice))), nil

	case store.RuleKindTiered:
		qty, ok := toFloat(payload[rule.TieredField])
		if !ok {
			return 0, permanent(KindInvalidRule, "tiered field missing or non-numeric: "+rule.TieredField)
		}
		return evaluateTiers(rule.Tiers, qty)

	default:
		return 0, permanent(KindInvalidRule, "unknown rule shape: "+string(rule.Kind))
	}
}

// evaluateTiers is a piecewise-linear accumulation across tier boundaries;
// the last tier's UpTo may be nil (unbounded), per spec §4.5 step 3.
func evaluateTiers(tiers []store.Tier, qty float64) (int64, error) {
	if len(tiers) == 0 {
		return 0, permanent(KindInvalidRule, "tiered rule has no tiers")
	}
	var total float64
	var lowerBound float64
	remaining := qty
	for i, tier := range tiers {
		if remaining <= 0 {
			break
		}
		var span float64
		if tier.UpTo == nil {
			span = remaining
		} else {
			width := float64(*tier.UpTo) - lowerBound
			if width < 0 {
				return 0, permanent(KindInvalidRule, "tiered rule has non-increasing upTo boundaries")
			}
			span = math.Min(width, remaining)
			lowerBound = float64(*tier.UpTo)
		}
		total += span * float64(tier.UnitPrice)
		remaining -= span
		if tier.UpTo == nil && i != len(tiers)-1 {
			return 0, permanent(KindInvalidRule, "unbounded tier must be last")
		}
	}
	if remaining > 0 {
		return 0, permanent(KindInvalidRule, "tiered rule does not cover full quantity")
	}
	return int64(math.Ceil(total)), nil
}
