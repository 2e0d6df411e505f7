package extensions

import (
	"fmt"
	"time"
)

type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// FilterMultiple return all elements that satisfy the predicate
func FilterMultiple[T any](elements []T, predicate func(T) bool) (results []T) {
	for _, element := range elements {
		if predicate(element) {
			results = append(results, element)
		}
	}
	return
}

// FilterSingle return the single element that satisfies the predicate.
// If zero or more than one, default T and an error is returned.
func FilterSingle[T any](elements []T, predicate func(T) bool) (T, error) {
	res := FilterMultiple(elements, predicate)

	if len(res) != 1 {
		var zero T
		return zero, fmt.Errorf("error getting single, found %d matches", len(res))
	}

	return res[0], nil
}

// CountWhere counts the elements that satisfy the predicate
func CountWhere[T any](elements []T, predicate func(T) bool) (count int) {
	for _, element := range elements {
		if predicate(element) {
			count++
		}
	}
	return
}

// Unique keeps the first occurrence of every element, preserving order
func Unique[T comparable](elements []T) []T {
	seen := make(map[T]struct{}, len(elements))
	res := make([]T, 0, len(elements))
	for _, element := range elements {
		if _, ok := seen[element]; ok {
			continue
		}
		seen[element] = struct{}{}
		res = append(res, element)
	}
	return res
}

// FmtShort formats a time in a date only string
func FmtShort(t time.Time) string {
	return t.Format(time.DateOnly)
}

// DateOnly drops the clock and zone, keeping the calendar date at midnight UTC
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EarlierOf returns the earlier of two times
func EarlierOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// LaterOf returns the later of two times
func LaterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func Min[T Number](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Product[T Number](inp []T, f func(T) T) T {
	var res T = 1
	for _, v := range inp {
		res *= f(v)
	}
	return res
}
