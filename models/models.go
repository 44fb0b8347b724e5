package models

import (
	"time"
)

// ErrorResponse represents a generic error structure for API responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Enums

// UserRole enum (defined here as the canonical type)
type UserRole string

const (
	UserRoleAdmin   UserRole = "admin"
	UserRoleStudent UserRole = "student"
)

// AccountStatus is the admin-approval state of a registration, distinct from
// membership payment status.
type AccountStatus string

const (
	AccountPending  AccountStatus = "pending"
	AccountApproved AccountStatus = "approved"
	AccountRejected AccountStatus = "rejected"
)

// BorrowStatus is the lifecycle state of a borrow record. "pending" means the
// student has requested a return and an admin has not yet reviewed it.
type BorrowStatus string

const (
	BorrowActive   BorrowStatus = "active"
	BorrowPending  BorrowStatus = "pending"
	BorrowOverdue  BorrowStatus = "overdue"
	BorrowReturned BorrowStatus = "returned"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

// BorrowPeriodDays is the fixed loan period; due date = borrow date + 14 days.
const BorrowPeriodDays = 14

// DefaultMonthlyLimit is the per-student borrow allowance per calendar month.
const DefaultMonthlyLimit = 3

// Main Models

type User struct {
	ID            int64         `json:"id"`
	Name          string        `json:"name"`
	Email         string        `json:"email"`
	Role          UserRole      `json:"role"`
	AccountStatus AccountStatus `json:"account_status"`
	StudentID     *string       `json:"student_id"`
	Department    *string       `json:"department"`
	IDPicture     *string       `json:"id_picture"`
	MonthlyLimit  int           `json:"monthly_limit"`
	PasswordHash  *string       `json:"-"`
	CreatedAt     time.Time     `json:"created_at"`

	// Enriched fields for responses
	CurrentBorrows int  `json:"current_borrows"`
	TotalBorrows   int  `json:"total_borrows"`
	IsPaid         bool `json:"is_paid"`
}

type Book struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn"`
	Category        string    `json:"category"`
	Language        *string   `json:"language"`
	Year            *int      `json:"year"`
	Description     *string   `json:"description"`
	Image           *string   `json:"image"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	CreatedAt       time.Time `json:"created_at"`

	// Derived, never stored: "Available" iff AvailableCopies > 0.
	Status string `json:"status"`
}

// BorrowRecord is the canonical flat borrow shape used by both the student
// and admin views, with join fields enriched on read.
type BorrowRecord struct {
	ID         int64        `json:"id"`
	UserID     int64        `json:"user_id"`
	BookID     int64        `json:"book_id"`
	Status     BorrowStatus `json:"status"`
	BorrowDate time.Time    `json:"borrow_date"`
	DueDate    time.Time    `json:"due_date"`
	UpdatedAt  time.Time    `json:"updated_at"`

	// Enriched fields for responses
	BookTitle  string  `json:"book_title,omitempty"`
	BookAuthor string  `json:"book_author,omitempty"`
	BookImage  *string `json:"book_image,omitempty"`
	UserName   string  `json:"user_name,omitempty"`
	StudentID  *string `json:"student_id,omitempty"`
}

type Payment struct {
	ID         int64         `json:"id"`
	UserID     int64         `json:"user_id"`
	Screenshot string        `json:"screenshot"`
	Reference  string        `json:"reference"`
	Notes      *string       `json:"notes"`
	Status     PaymentStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`

	// Enriched fields for responses
	UserName  string  `json:"user_name,omitempty"`
	UserEmail *string `json:"user_email,omitempty"`
}

type Rating struct {
	UserID    int64     `json:"user_id"`
	BookID    int64     `json:"book_id"`
	Rating    int       `json:"rating"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Comment struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	BookID    int64     `json:"book_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`

	// Enriched fields for responses
	UserName string `json:"user_name,omitempty"`
}

// BookReviews is the aggregate review payload for one book.
type BookReviews struct {
	BookID        int64     `json:"book_id"`
	AverageRating float64   `json:"average_rating"`
	RatingCount   int       `json:"rating_count"`
	MyRating      *int      `json:"my_rating,omitempty"`
	Comments      []Comment `json:"comments"`
}

// CatalogStats are the dashboard aggregates recomputed on every fetch.
type CatalogStats struct {
	TotalTitles     int `json:"total_titles"`
	AvailableTitles int `json:"available_titles"`
	AvailableCopies int `json:"available_copies"`
}

// Request DTOs (Data Transfer Objects)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken  string   `json:"access_token"`
	ExpiresIn    int      `json:"expires_in"`
	RefreshToken *string  `json:"refresh_token,omitempty"`
	Role         UserRole `json:"role"`
	UserID       int64    `json:"user_id"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RegisterStudentRequest carries the scalar fields of the multipart
// registration form; the id_picture file part is handled separately.
type RegisterStudentRequest struct {
	Name       string `form:"name" validate:"required"`
	Email      string `form:"email" validate:"required,email"`
	Password   string `form:"password" validate:"required,min=8"`
	StudentID  string `form:"student_id" validate:"required"`
	Department string `form:"department"`
}

type UpdateProfileRequest struct {
	Name       *string `json:"name"`
	Department *string `json:"department"`
	Password   *string `json:"password" validate:"omitempty,min=8"`
}

type CreateBookRequest struct {
	Title       string  `json:"title" validate:"required"`
	Author      string  `json:"author" validate:"required"`
	ISBN        string  `json:"isbn" validate:"required"`
	Category    string  `json:"category" validate:"required"`
	Language    *string `json:"language"`
	Year        *int    `json:"year" validate:"omitempty,gte=0"`
	Description *string `json:"description"`
	Image       *string `json:"image"`
	TotalCopies int     `json:"total_copies" validate:"required,gte=1"`
}

// UpdateBookRequest is a full-record replace: every admin edit submits the
// whole book, mirroring CreateBookRequest plus the available count.
type UpdateBookRequest struct {
	Title           string  `json:"title" validate:"required"`
	Author          string  `json:"author" validate:"required"`
	ISBN            string  `json:"isbn" validate:"required"`
	Category        string  `json:"category" validate:"required"`
	Language        *string `json:"language"`
	Year            *int    `json:"year" validate:"omitempty,gte=0"`
	Description     *string `json:"description"`
	Image           *string `json:"image"`
	TotalCopies     int     `json:"total_copies" validate:"required,gte=1"`
	AvailableCopies int     `json:"available_copies" validate:"gte=0"`
}

type BorrowRequest struct {
	BookID int64 `json:"book_id" validate:"required,gt=0"`
}

// BorrowResponse is returned after a successful borrow, including how many
// borrows remain for the calendar month: limit - (count + 1).
type BorrowResponse struct {
	Record             BorrowRecord `json:"record"`
	RemainingThisMonth int          `json:"remaining_this_month"`
}

// SubmitPaymentRequest carries the scalar fields of the multipart payment
// form; the screenshot file part is handled separately.
type SubmitPaymentRequest struct {
	Reference string  `form:"reference"`
	Notes     *string `form:"notes"`
}

type UpdatePaymentStatusRequest struct {
	Status PaymentStatus `json:"status" validate:"required,oneof=approved rejected"`
}

type UpdateAccountStatusRequest struct {
	Status AccountStatus `json:"status" validate:"required,oneof=approved rejected"`
}

type UpdateUserRequest struct {
	Name         *string `json:"name"`
	Department   *string `json:"department"`
	StudentID    *string `json:"student_id"`
	MonthlyLimit *int    `json:"monthly_limit" validate:"omitempty,gte=0"`
}

type AddRatingRequest struct {
	Rating int `json:"rating" validate:"required,gte=1,lte=5"`
}

type AddCommentRequest struct {
	Body string `json:"body" validate:"required"`
}

// PaidStatusResponse reports whether the current calendar month is covered
// by an approved membership payment.
type PaidStatusResponse struct {
	IsPaid bool   `json:"is_paid"`
	Month  string `json:"month"` // YYYY-MM
}
