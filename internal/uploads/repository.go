package uploads

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	DB *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{DB: db}
}

const fileColumns = `id, file_id, file_url, user_id, file_name, file_size, mime_type, created_at`

func (r *Repository) InsertFile(ctx context.Context, f *File) (*File, error) {
	return scanFile(r.DB.QueryRow(ctx, `
		INSERT INTO uploaded_files (file_id, file_url, user_id, file_name, file_size, mime_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+fileColumns,
		f.FileID, f.URL, f.UserID, f.Name, f.Size, f.MimeType))
}

func (r *Repository) ListFiles(ctx context.Context, userID int64) ([]File, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+fileColumns+` FROM uploaded_files WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []File{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func scanFile(row pgx.Row) (*File, error) {
	var f File
	if err := row.Scan(&f.ID, &f.FileID, &f.URL, &f.UserID, &f.Name, &f.Size, &f.MimeType, &f.CreatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}
