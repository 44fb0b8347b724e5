package reviews

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	mw "library-app-backend/middleware"
	"library-app-backend/models"
)

var validate = validator.New()

// Register mounts review routes under the /books group; they nest beneath a
// book id and never collide with the catalog's single-segment /:id routes.
func Register(g fiber.Router, pool *pgxpool.Pool, jwtGuard fiber.Handler, requireStudent fiber.Handler) {
	g.Get("/:book_id/reviews", jwtGuard, GetForBook(pool))
	g.Post("/:book_id/rating", jwtGuard, requireStudent, AddRating(pool))
	g.Post("/:book_id/comments", jwtGuard, requireStudent, AddComment(pool))
}

func bookIDParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("book_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid book ID")
	}
	return id, nil
}

// hasBorrowed reports whether the user ever held a borrow record for the
// book. Rating and commenting are only offered to actual borrowers.
func hasBorrowed(c *fiber.Ctx, pool *pgxpool.Pool, userID, bookID int64) (bool, error) {
	var exists int
	err := pool.QueryRow(c.Context(),
		`SELECT 1 FROM borrow_records WHERE user_id=$1 AND book_id=$2 LIMIT 1`, userID, bookID).Scan(&exists)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, err
}

// GetForBook - GET /books/:book_id/reviews
func GetForBook(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bookID, err := bookIDParam(c)
		if err != nil {
			return err
		}
		userID, _ := mw.GetUserIDFromClaims(c)

		out := models.BookReviews{BookID: bookID, Comments: []models.Comment{}}

		var avg sql.NullFloat64
		err = pool.QueryRow(c.Context(),
			`SELECT avg(rating), count(*) FROM ratings WHERE book_id=$1`, bookID).Scan(&avg, &out.RatingCount)
		if err != nil {
			return err
		}
		if avg.Valid {
			out.AverageRating = avg.Float64
		}

		var mine int
		err = pool.QueryRow(c.Context(),
			`SELECT rating FROM ratings WHERE book_id=$1 AND user_id=$2`, bookID, userID).Scan(&mine)
		if err == nil {
			out.MyRating = &mine
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		rows, err := pool.Query(c.Context(), `
			SELECT cm.id, cm.user_id, cm.book_id, cm.body, cm.created_at, u.name
			FROM comments cm
			JOIN users u ON u.id = cm.user_id
			WHERE cm.book_id=$1
			ORDER BY cm.created_at DESC
		`, bookID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var cm models.Comment
			if err := rows.Scan(&cm.ID, &cm.UserID, &cm.BookID, &cm.Body, &cm.CreatedAt, &cm.UserName); err != nil {
				return err
			}
			out.Comments = append(out.Comments, cm)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		return c.JSON(out)
	}
}

// AddRating - POST /books/:book_id/rating (Student)
// One numeric rating per user per book; a repeat submission overwrites.
func AddRating(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bookID, err := bookIDParam(c)
		if err != nil {
			return err
		}
		userID, err := mw.GetUserIDFromClaims(c)
		if err != nil {
			return err
		}

		var b models.AddRatingRequest
		if err := c.BodyParser(&b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Bad JSON")
		}
		if err := validate.Struct(b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "rating must be between 1 and 5")
		}

		ok, err := hasBorrowed(c, pool, userID, bookID)
		if err != nil {
			return err
		}
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "You can only review books you have borrowed")
		}

		_, err = pool.Exec(c.Context(), `
			INSERT INTO ratings(user_id, book_id, rating, updated_at)
			VALUES ($1,$2,$3,NOW())
			ON CONFLICT (user_id, book_id) DO UPDATE SET rating=EXCLUDED.rating, updated_at=NOW()
		`, userID, bookID, b.Rating)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Rating saved"})
	}
}

// AddComment - POST /books/:book_id/comments (Student)
// A user may post any number of free-text comments.
func AddComment(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bookID, err := bookIDParam(c)
		if err != nil {
			return err
		}
		userID, err := mw.GetUserIDFromClaims(c)
		if err != nil {
			return err
		}

		var b models.AddCommentRequest
		if err := c.BodyParser(&b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Bad JSON")
		}
		body := strings.TrimSpace(b.Body)
		if body == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Comment body is required")
		}

		ok, err := hasBorrowed(c, pool, userID, bookID)
		if err != nil {
			return err
		}
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "You can only review books you have borrowed")
		}

		var id int64
		err = pool.QueryRow(c.Context(), `
			INSERT INTO comments(user_id, book_id, body)
			VALUES ($1,$2,$3)
			RETURNING id
		`, userID, bookID, body).Scan(&id)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
	}
}
