package policy

import "github.com/hatsunemiku3939/retrydlq/policy/failure"

// Outcome is the dispatch decision for a failed invocation.
type Outcome int

const (
	// Discarded drops the message without any publish.
	Discarded Outcome = iota
	// SentToRetry hands the message to the retry-or-dead-letter action.
	SentToRetry
	// SentToDeadLetter hands the message to the dead-letter action.
	SentToDeadLetter
)

func (o Outcome) String() string {
	switch o {
	case Discarded:
		return "discarded"
	case SentToRetry:
		return "sent_to_retry"
	case SentToDeadLetter:
		return "sent_to_dead_letter"
	default:
		return "unknown"
	}
}

// Rule names the bucket that produced a Decision.
type Rule int

const (
	// RuleUnclassified means no bucket matched and the failure fell through to discard.
	RuleUnclassified Rule = iota
	RuleDiscard
	RuleDeadLetter
	RuleRetry
	RuleLegacyRetry
)

func (r Rule) String() string {
	switch r {
	case RuleUnclassified:
		return "unclassified"
	case RuleDiscard:
		return "discard"
	case RuleDeadLetter:
		return "dead_letter"
	case RuleRetry:
		return "retry"
	case RuleLegacyRetry:
		return "legacy_retry"
	default:
		return "unknown"
	}
}

// Decision is the result of classifying a failure.
type Decision struct {
	Outcome Outcome
	Rule    Rule
	Kind    *failure.Kind
}

// Classify decides the outcome of err under p. It is pure and deterministic.
//
// Buckets are checked in order: discard, dead-letter, retry (or the legacy
// retry bucket when retry is empty). The first match wins; no match discards.
func Classify(p *Policy, err error) Decision {
	kind := failure.KindOf(err)

	switch {
	case p.matches(p.discard, kind):
		return Decision{Outcome: Discarded, Rule: RuleDiscard, Kind: kind}
	case p.matches(p.deadLetter, kind):
		return Decision{Outcome: SentToDeadLetter, Rule: RuleDeadLetter, Kind: kind}
	case len(p.retry) > 0:
		if p.matches(p.retry, kind) {
			return Decision{Outcome: SentToRetry, Rule: RuleRetry, Kind: kind}
		}
	case p.matches(p.legacyRetry, kind):
		return Decision{Outcome: SentToRetry, Rule: RuleLegacyRetry, Kind: kind}
	}

	return Decision{Outcome: Discarded, Rule: RuleUnclassified, Kind: kind}
}

func (p *Policy) matches(bucket []*failure.Kind, kind *failure.Kind) bool {
	if len(bucket) == 0 {
		return false
	}
	for _, entry := range bucket {
		if p.mode == InheritanceAware {
			if kind.Is(entry) {
				return true
			}
			continue
		}
		if entry == failure.Any || entry == kind {
			return true
		}
	}
	return false
}
