package models

import (
	"testing"
	"time"
)

func TestCheckBorrowPrecedence(t *testing.T) {
	tests := []struct {
		name string
		in   BorrowEligibility
		want BorrowDenial
	}{
		{
			name: "membership gate fires first even when everything else fails",
			in:   BorrowEligibility{IsPaid: false, IsApprovedStudent: false, BorrowedThisMonth: 5, MonthlyLimit: 3, AvailableCopies: 0},
			want: DenialMembership,
		},
		{
			name: "approval gate fires before limit and availability",
			in:   BorrowEligibility{IsPaid: true, IsApprovedStudent: false, BorrowedThisMonth: 5, MonthlyLimit: 3, AvailableCopies: 0},
			want: DenialApproval,
		},
		{
			name: "limit gate fires before availability",
			in:   BorrowEligibility{IsPaid: true, IsApprovedStudent: true, BorrowedThisMonth: 3, MonthlyLimit: 3, AvailableCopies: 0},
			want: DenialLimit,
		},
		{
			name: "availability gate fires last",
			in:   BorrowEligibility{IsPaid: true, IsApprovedStudent: true, BorrowedThisMonth: 0, MonthlyLimit: 3, AvailableCopies: 0},
			want: DenialUnavailable,
		},
		{
			name: "all gates pass",
			in:   BorrowEligibility{IsPaid: true, IsApprovedStudent: true, BorrowedThisMonth: 2, MonthlyLimit: 3, AvailableCopies: 1},
			want: DenialNone,
		},
		{
			name: "count over limit still blocked",
			in:   BorrowEligibility{IsPaid: true, IsApprovedStudent: true, BorrowedThisMonth: 4, MonthlyLimit: 3, AvailableCopies: 1},
			want: DenialLimit,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckBorrow(tt.in); got != tt.want {
				t.Errorf("CheckBorrow() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDenialMessages(t *testing.T) {
	for _, d := range []BorrowDenial{DenialMembership, DenialApproval, DenialLimit, DenialUnavailable} {
		if d.Message() == "" {
			t.Errorf("denial %q has no user-facing message", d)
		}
	}
	if DenialNone.Message() != "" {
		t.Errorf("DenialNone should have no message")
	}
}

func TestDueDateIsExactlyFourteenDays(t *testing.T) {
	start := time.Date(2025, 3, 20, 10, 30, 0, 0, time.UTC)
	want := time.Date(2025, 4, 3, 10, 30, 0, 0, time.UTC)
	if got := DueDate(start); !got.Equal(want) {
		t.Errorf("DueDate(%v) = %v, want %v", start, got, want)
	}
}

func TestRemainingThisMonth(t *testing.T) {
	if got := RemainingThisMonth(3, 0); got != 2 {
		t.Errorf("RemainingThisMonth(3, 0) = %d, want 2", got)
	}
	if got := RemainingThisMonth(3, 2); got != 0 {
		t.Errorf("RemainingThisMonth(3, 2) = %d, want 0", got)
	}
}

func TestCanRequestReturn(t *testing.T) {
	tests := []struct {
		status BorrowStatus
		want   bool
	}{
		{BorrowActive, true},
		{BorrowOverdue, true},
		{BorrowPending, false},
		{BorrowReturned, false},
	}
	for _, tt := range tests {
		if got := CanRequestReturn(tt.status); got != tt.want {
			t.Errorf("CanRequestReturn(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestBorrowTransitions(t *testing.T) {
	tests := []struct {
		from, to BorrowStatus
		want     bool
	}{
		{BorrowActive, BorrowPending, true},
		{BorrowActive, BorrowOverdue, true},
		{BorrowPending, BorrowReturned, true},
		{BorrowPending, BorrowActive, true}, // decline reverts
		{BorrowOverdue, BorrowReturned, true},
		{BorrowOverdue, BorrowPending, true},
		// returned is terminal
		{BorrowReturned, BorrowActive, false},
		{BorrowReturned, BorrowPending, false},
		{BorrowReturned, BorrowOverdue, false},
		{BorrowReturned, BorrowReturned, false},
		// nonsense transitions
		{BorrowPending, BorrowOverdue, false},
		{BorrowOverdue, BorrowActive, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestMarkReturnedAllowed(t *testing.T) {
	// An active record with no outstanding return request must be refused.
	if MarkReturnedAllowed(BorrowActive) {
		t.Error("mark-returned must be refused for active records without a return request")
	}
	if MarkReturnedAllowed(BorrowReturned) {
		t.Error("mark-returned must be refused for already returned records")
	}
	if !MarkReturnedAllowed(BorrowOverdue) {
		t.Error("mark-returned must be allowed for overdue records")
	}
	if !MarkReturnedAllowed(BorrowPending) {
		t.Error("mark-returned must be allowed for pending return requests")
	}
}

func TestBookStatus(t *testing.T) {
	if got := BookStatus(0); got != BookStatusNotAvailable {
		t.Errorf("BookStatus(0) = %q", got)
	}
	if got := BookStatus(-1); got != BookStatusNotAvailable {
		t.Errorf("BookStatus(-1) = %q", got)
	}
	if got := BookStatus(3); got != BookStatusAvailable {
		t.Errorf("BookStatus(3) = %q", got)
	}
}

func TestComputeCatalogStats(t *testing.T) {
	// Catalog has book A (available=0) and book B (available=3):
	// available titles = 1, available copies = 3.
	books := []Book{
		{Title: "A", AvailableCopies: 0},
		{Title: "B", AvailableCopies: 3},
	}
	st := ComputeCatalogStats(books)
	if st.TotalTitles != 2 {
		t.Errorf("TotalTitles = %d, want 2", st.TotalTitles)
	}
	if st.AvailableTitles != 1 {
		t.Errorf("AvailableTitles = %d, want 1", st.AvailableTitles)
	}
	if st.AvailableCopies != 3 {
		t.Errorf("AvailableCopies = %d, want 3", st.AvailableCopies)
	}
}

func TestComputeCatalogStatsEmpty(t *testing.T) {
	st := ComputeCatalogStats(nil)
	if st.TotalTitles != 0 || st.AvailableTitles != 0 || st.AvailableCopies != 0 {
		t.Errorf("empty catalog stats = %+v, want zeros", st)
	}
}

func TestMatchesQuery(t *testing.T) {
	tests := []struct {
		name   string
		q      string
		fields []string
		want   bool
	}{
		{"empty query matches everything", "", []string{"anything"}, true},
		{"whitespace query matches everything", "   ", []string{"anything"}, true},
		{"case-insensitive substring", "gatsby", []string{"The Great Gatsby", "Fitzgerald"}, true},
		{"uppercase query", "FITZ", []string{"The Great Gatsby", "Fitzgerald"}, true},
		{"matches any one field", "978", []string{"The Great Gatsby", "9780743273565"}, true},
		{"no field contains query", "orwell", []string{"The Great Gatsby", "Fitzgerald"}, false},
		{"no fields at all", "x", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesQuery(tt.q, tt.fields...); got != tt.want {
				t.Errorf("MatchesQuery(%q, %v) = %v, want %v", tt.q, tt.fields, got, tt.want)
			}
		})
	}
}

func TestMatchesFilter(t *testing.T) {
	tests := []struct {
		filter, value string
		want          bool
	}{
		{"", "active", true},
		{"All", "active", true},
		{"All Status", "returned", true},
		{"active", "active", true},
		{"active", "Active", false}, // exact match, not case-folded
		{"returned", "active", false},
	}
	for _, tt := range tests {
		if got := MatchesFilter(tt.filter, tt.value); got != tt.want {
			t.Errorf("MatchesFilter(%q, %q) = %v, want %v", tt.filter, tt.value, got, tt.want)
		}
	}
}

// Visibility is the AND of both predicates.
func TestVisibilityIsConjunction(t *testing.T) {
	type record struct {
		title, status string
	}
	records := []record{
		{"The Great Gatsby", "active"},
		{"Great Expectations", "returned"},
		{"Dune", "active"},
	}
	var visible []string
	for _, r := range records {
		if MatchesQuery("great", r.title) && MatchesFilter("active", r.status) {
			visible = append(visible, r.title)
		}
	}
	if len(visible) != 1 || visible[0] != "The Great Gatsby" {
		t.Errorf("visible = %v, want [The Great Gatsby]", visible)
	}
}

func TestSameCalendarMonth(t *testing.T) {
	a := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2025, 6, 30, 23, 59, 59, 0, time.UTC)
	c := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	d := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	if !SameCalendarMonth(a, b) {
		t.Error("first and last day of the same month should match")
	}
	if SameCalendarMonth(b, c) {
		t.Error("adjacent months should not match")
	}
	if SameCalendarMonth(a, d) {
		t.Error("same month of a different year should not match")
	}
}

func TestMonthKey(t *testing.T) {
	if got := MonthKey(time.Date(2025, 2, 7, 0, 0, 0, 0, time.UTC)); got != "2025-02" {
		t.Errorf("MonthKey = %q, want 2025-02", got)
	}
}
