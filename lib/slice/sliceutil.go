// Package sliceutil holds generic slice helpers.
package sliceutil

// Map applies f to every element of v. The result is never nil.
func Map[From, To any](v []From, f func(From) To) []To {
	out := make([]To, 0, len(v))
	for _, e := range v {
		out = append(out, f(e))
	}
	return out
}
