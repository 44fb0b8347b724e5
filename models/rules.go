package models

import (
	"strings"
	"time"
)

// Centralized derived-state rules. Every handler computes availability,
// eligibility, projections, and filters through these functions so the
// student and admin surfaces can never disagree.

// Book availability

const (
	BookStatusAvailable    = "Available"
	BookStatusNotAvailable = "Not Available"
)

// BookStatus derives the display status from the available-copy count.
func BookStatus(availableCopies int) string {
	if availableCopies > 0 {
		return BookStatusAvailable
	}
	return BookStatusNotAvailable
}

// Borrow eligibility gate

// BorrowDenial identifies which gate blocked a borrow attempt.
type BorrowDenial string

const (
	DenialNone        BorrowDenial = ""
	DenialMembership  BorrowDenial = "membership_required"
	DenialApproval    BorrowDenial = "approval_pending"
	DenialLimit       BorrowDenial = "limit_reached"
	DenialUnavailable BorrowDenial = "book_unavailable"
)

// Message returns the user-facing reason for a denial.
func (d BorrowDenial) Message() string {
	switch d {
	case DenialMembership:
		return "No active membership payment for this month. Please complete your membership payment first."
	case DenialApproval:
		return "Your account is awaiting admin approval. You cannot borrow books yet."
	case DenialLimit:
		return "You have reached your monthly borrowing limit."
	case DenialUnavailable:
		return "This book is currently not available."
	}
	return ""
}

// BorrowEligibility is the input to the borrow gate.
type BorrowEligibility struct {
	IsPaid            bool
	IsApprovedStudent bool
	BorrowedThisMonth int
	MonthlyLimit      int
	AvailableCopies   int
}

// CheckBorrow runs the four gates in fixed precedence and returns the first
// denial, or DenialNone if the borrow may proceed. No state is touched here;
// the caller only issues the mutation when the result is DenialNone.
func CheckBorrow(e BorrowEligibility) BorrowDenial {
	if !e.IsPaid {
		return DenialMembership
	}
	if !e.IsApprovedStudent {
		return DenialApproval
	}
	if e.BorrowedThisMonth >= e.MonthlyLimit {
		return DenialLimit
	}
	if e.AvailableCopies <= 0 {
		return DenialUnavailable
	}
	return DenialNone
}

// DueDate computes the return deadline for a borrow started at t.
func DueDate(t time.Time) time.Time {
	return t.AddDate(0, 0, BorrowPeriodDays)
}

// RemainingThisMonth is the allowance left after the borrow being made now.
func RemainingThisMonth(limit, borrowedBefore int) int {
	return limit - (borrowedBefore + 1)
}

// Return-workflow status projection

// CanRequestReturn reports whether the student may request a return. A
// record already pending cannot be re-requested; returned is terminal.
func CanRequestReturn(s BorrowStatus) bool {
	return s == BorrowActive || s == BorrowOverdue
}

// borrowTransitions is the exhaustive transition table. Anything not listed
// is an illegal transition; nothing leaves BorrowReturned.
var borrowTransitions = map[BorrowStatus]map[BorrowStatus]bool{
	BorrowActive: {
		BorrowPending:  true, // student requests return
		BorrowOverdue:  true, // due date passed
		BorrowReturned: true, // admin marks returned (only with a prior request, see MarkReturnedAllowed)
	},
	BorrowPending: {
		BorrowReturned: true, // admin approves
		BorrowActive:   true, // admin declines, record reverts
	},
	BorrowOverdue: {
		BorrowPending:  true,
		BorrowReturned: true,
	},
	BorrowReturned: {},
}

// CanTransition reports whether a borrow record may move from one status to
// another.
func CanTransition(from, to BorrowStatus) bool {
	return borrowTransitions[from][to]
}

// MarkReturnedAllowed guards the admin "mark as returned" action. An active
// record with no outstanding return request is refused so an admin cannot
// record a return the student never asked for; overdue and pending records
// may be closed directly.
func MarkReturnedAllowed(s BorrowStatus) bool {
	return s == BorrowOverdue || s == BorrowPending
}

// Dashboard aggregates

// ComputeCatalogStats recomputes the dashboard aggregates over the whole
// catalog. Full recomputation per fetch; catalog sizes are hundreds of rows.
func ComputeCatalogStats(books []Book) CatalogStats {
	st := CatalogStats{TotalTitles: len(books)}
	for _, b := range books {
		if b.AvailableCopies > 0 {
			st.AvailableTitles++
		}
		st.AvailableCopies += b.AvailableCopies
	}
	return st
}

// Search/filter predicate

// FilterAll is the sentinel meaning "no status/category filter". The empty
// string and "All Status" are accepted as the same sentinel.
const FilterAll = "All"

// MatchesQuery reports whether any of the fields contains q as a
// case-insensitive substring. An empty query matches everything.
func MatchesQuery(q string, fields ...string) bool {
	q = strings.TrimSpace(q)
	if q == "" {
		return true
	}
	q = strings.ToLower(q)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// MatchesFilter reports whether value passes an exact-match status/category
// filter, honoring the "All" sentinels.
func MatchesFilter(filter, value string) bool {
	if filter == "" || filter == FilterAll || filter == "All Status" {
		return true
	}
	return filter == value
}

// Membership month rule

// SameCalendarMonth reports whether two instants fall in the same calendar
// month of the same year.
func SameCalendarMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// MonthKey formats the calendar month used for paid-status lookups and
// cache keys.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}
