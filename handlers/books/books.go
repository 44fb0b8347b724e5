package books

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"library-app-backend/models"
)

var validate = validator.New()

// Register mounts routes under /books
func Register(g fiber.Router, pool *pgxpool.Pool, jwtGuard fiber.Handler, requireAdmin fiber.Handler) {
	// Static paths before parameter paths
	g.Get("/stats", Stats(pool))
	g.Get("/", List(pool))
	g.Post("/", jwtGuard, requireAdmin, Create(pool))
	g.Get("/:id", Get(pool))
	g.Put("/:id", jwtGuard, requireAdmin, Update(pool))
	g.Delete("/:id", jwtGuard, requireAdmin, Del(pool))
}

const bookColumns = `id, title, author, isbn, category, language, year, description, image, total_copies, available_copies, created_at`

func scanBook(row interface{ Scan(dest ...any) error }) (models.Book, error) {
	var b models.Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Category, &b.Language,
		&b.Year, &b.Description, &b.Image, &b.TotalCopies, &b.AvailableCopies, &b.CreatedAt)
	if err == nil {
		b.Status = models.BookStatus(b.AvailableCopies)
	}
	return b, err
}

func fetchCatalog(c *fiber.Ctx, pool *pgxpool.Pool) ([]models.Book, error) {
	rows, err := pool.Query(c.Context(), `SELECT `+bookColumns+` FROM books ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Book, 0, 64)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// List - GET /books?q=&category=&limit=100&offset=0
// The whole catalog is fetched and the shared text/category predicate is
// applied in memory, so every page of the app filters identically.
func List(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := clampInt(c.QueryInt("limit", 100), 1, 500)
		offset := maxInt(c.QueryInt("offset", 0), 0)
		q := c.Query("q", "")
		category := c.Query("category", "")

		all, err := fetchCatalog(c, pool)
		if err != nil {
			return err
		}

		visible := make([]models.Book, 0, len(all))
		for _, b := range all {
			if !models.MatchesQuery(q, b.Title, b.Author, b.ISBN, b.Category) {
				continue
			}
			if !models.MatchesFilter(category, b.Category) {
				continue
			}
			visible = append(visible, b)
		}

		total := len(visible)
		if offset > total {
			offset = total
		}
		end := offset + limit
		if end > total {
			end = total
		}

		return c.JSON(fiber.Map{"books": visible[offset:end], "total": total})
	}
}

// Stats - GET /books/stats
// Dashboard aggregates, recomputed over the full catalog on every call.
func Stats(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		all, err := fetchCatalog(c, pool)
		if err != nil {
			return err
		}
		return c.JSON(models.ComputeCatalogStats(all))
	}
}

// Get - GET /books/:id
func Get(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid book ID")
		}

		b, err := scanBook(pool.QueryRow(c.Context(), `SELECT `+bookColumns+` FROM books WHERE id=$1`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fiber.NewError(fiber.StatusNotFound, "Book not found")
			}
			return err
		}
		return c.JSON(b)
	}
}

// Create - POST /books (Admin)
func Create(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var b models.CreateBookRequest
		if err := c.BodyParser(&b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Bad JSON")
		}
		if err := validate.Struct(b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Title, author, ISBN, category, and a positive copy count are required")
		}

		var id int64
		err := pool.QueryRow(c.Context(), `
			INSERT INTO books(title, author, isbn, category, language, year, description, image, total_copies, available_copies)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
			RETURNING id
		`, strings.TrimSpace(b.Title), strings.TrimSpace(b.Author), strings.TrimSpace(b.ISBN),
			strings.TrimSpace(b.Category), b.Language, b.Year, b.Description, b.Image, b.TotalCopies).Scan(&id)
		if err != nil {
			if strings.Contains(err.Error(), "books_isbn_key") {
				return fiber.NewError(fiber.StatusConflict, "A book with this ISBN already exists")
			}
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
	}
}

// Update - PUT /books/:id (Admin)
// Full-record replace: the admin form always submits the entire book.
func Update(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid book ID")
		}

		var b models.UpdateBookRequest
		if err := c.BodyParser(&b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Bad JSON")
		}
		if err := validate.Struct(b); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Title, author, ISBN, category, and copy counts are required")
		}
		if b.AvailableCopies > b.TotalCopies {
			return fiber.NewError(fiber.StatusBadRequest, "Available copies cannot exceed total copies")
		}

		cmd, err := pool.Exec(c.Context(), `
			UPDATE books SET title=$1, author=$2, isbn=$3, category=$4, language=$5,
				year=$6, description=$7, image=$8, total_copies=$9, available_copies=$10
			WHERE id=$11
		`, strings.TrimSpace(b.Title), strings.TrimSpace(b.Author), strings.TrimSpace(b.ISBN),
			strings.TrimSpace(b.Category), b.Language, b.Year, b.Description, b.Image,
			b.TotalCopies, b.AvailableCopies, id)
		if err != nil {
			if strings.Contains(err.Error(), "books_isbn_key") {
				return fiber.NewError(fiber.StatusConflict, "A book with this ISBN already exists")
			}
			return err
		}
		if cmd.RowsAffected() == 0 {
			return fiber.NewError(fiber.StatusNotFound, "Book not found")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// Del - DELETE /books/:id (Admin)
func Del(pool *pgxpool.Pool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid book ID")
		}

		// Refuse deletion while copies are out with students.
		var open int
		err = pool.QueryRow(c.Context(), `
			SELECT count(*) FROM borrow_records WHERE book_id=$1 AND status != $2
		`, id, models.BorrowReturned).Scan(&open)
		if err != nil {
			return err
		}
		if open > 0 {
			return fiber.NewError(fiber.StatusConflict, "Book has unreturned copies and cannot be deleted")
		}

		cmd, err := pool.Exec(c.Context(), `DELETE FROM books WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return fiber.NewError(fiber.StatusNotFound, "Book not found")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
