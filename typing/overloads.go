package typing

import (
	"pyrite/types"
)

// rating accumulates the conversion grades of one candidate signature over
// all arguments.
type rating struct {
	promote int
	safe    int
	unsafe  int

	// worst is the worst single-argument rating, used to break exact ties.
	worst types.Rating
}

// tuple returns the rating as a 3-tuple suitable for comparison with the
// worst situation first.
func (r rating) tuple() [3]int {
	return [3]int{r.unsafe, r.safe, r.promote}
}

func (r rating) less(other rating) bool {
	a, b := r.tuple(), other.tuple()
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}

	return false
}

func (r rating) equal(other rating) bool {
	return r.tuple() == other.tuple()
}

// rateCandidate grades one candidate against the actual argument types.  The
// boolean is false when any argument is inconvertible.
func rateCandidate(sig *types.Func, args []types.Type) (rating, bool) {
	var r rating
	for i, arg := range args {
		switch types.Rate(arg, sig.Params[i]) {
		case types.Exact:
		case types.Promotion:
			r.promote++
			if r.worst < types.Promotion {
				r.worst = types.Promotion
			}
		case types.SafeConvert:
			r.safe++
			if r.worst < types.SafeConvert {
				r.worst = types.SafeConvert
			}
		case types.UnsafeConvert:
			r.unsafe++
			if r.worst < types.UnsafeConvert {
				r.worst = types.UnsafeConvert
			}
		default:
			return r, false
		}
	}

	return r, true
}

// ResolveOverload selects the best candidate for the given argument types.
// Candidates of mismatched arity must already be filtered out.  The summed
// (unsafe, safe, promote) tuples are compared lexicographically, worst
// first; an exact tie falls back to the asymmetric rule of preferring the
// candidate whose worst single-argument rating is best.  It returns nil with
// ambiguous=true when no rule separates the front-runners, and nil with
// ambiguous=false when no candidate is viable.
func ResolveOverload(cands []*types.Func, args []types.Type) (best *types.Func, ambiguous bool) {
	var bestRating rating
	tied := false

	for _, cand := range cands {
		r, ok := rateCandidate(cand, args)
		if !ok {
			continue
		}

		switch {
		case best == nil || r.less(bestRating):
			best, bestRating, tied = cand, r, false
		case r.equal(bestRating):
			// Secondary asymmetric rule: best worst-argument rating wins.
			if r.worst < bestRating.worst {
				best, bestRating, tied = cand, r, false
			} else if r.worst == bestRating.worst {
				tied = true
			}
		}
	}

	if tied {
		return nil, true
	}

	return best, false
}
