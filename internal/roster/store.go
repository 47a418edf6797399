package roster

import (
	"bytes"
	"context"
	"database/sql"

	platformdb "frequencia-backend/internal/platform/db"
)

type Student struct {
	ID    int64   `json:"id"`
	Nome  string  `json:"nome"`
	RA    *string `json:"ra,omitempty"`
	Turma string  `json:"turma"`
}

type Store struct{ db platformdb.DBTX }

func NewStore(db platformdb.DBTX) *Store { return &Store{db: db} }

func (s *Store) ListTurmas(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT DISTINCT turma FROM alunos WHERE ativo = 1 ORDER BY turma ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ListStudents(ctx context.Context, turma *string) ([]Student, error) {
	var buf bytes.Buffer
	buf.WriteString(`
	SELECT aluno_id, nome, ra, turma FROM alunos WHERE ativo = 1`)
	var args []any
	if turma != nil && *turma != "" {
		buf.WriteString(" AND turma = ?")
		args = append(args, *turma)
	}
	buf.WriteString(" ORDER BY turma ASC, nome ASC")

	rows, err := s.db.QueryContext(ctx, buf.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Student
	for rows.Next() {
		var (
			st Student
			ra sql.NullString
		)
		if err := rows.Scan(&st.ID, &st.Nome, &ra, &st.Turma); err != nil {
			return nil, err
		}
		if ra.Valid {
			v := ra.String
			st.RA = &v
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
