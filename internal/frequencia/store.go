package frequencia

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	platformdb "frequencia-backend/internal/platform/db"
)

const mysqlErrDupEntry = 1062

func isDupEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDupEntry
}

// SQLStore implements Store on MySQL. The UNIQUE keys created by the
// migration (aluno_id+semana_inicio, buscativa.frequencia_id) back the
// engine's concurrency guarantees.
type SQLStore struct {
	db *sql.DB // nil when this store is a tx view
	q  platformdb.DBTX
}

func NewStore(conn *sql.DB) *SQLStore {
	return &SQLStore{db: conn, q: conn}
}

func (s *SQLStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.db == nil {
		// already inside a transaction
		return fn(ctx, s)
	}
	return platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		return fn(ctx, &SQLStore{q: tx})
	})
}

// GetOrCreateStudent resolves the student by (ra, turma), falling back to
// (nome, turma), creating the row when neither matches. An existing row
// gets nome/ra refreshed from the submission. Runs inside the ingestion
// transaction: the reads are locking, and a lost insert race on either
// identity key (both are UNIQUE in the schema) resolves to the winner's
// row instead of surfacing the duplicate-entry error.
func (s *SQLStore) GetOrCreateStudent(ctx context.Context, nome string, ra *string, turma string) (*Student, error) {
	st, err := s.findStudent(ctx, nome, ra, turma)
	if err != nil {
		return nil, err
	}

	if st == nil {
		res, err := s.q.ExecContext(ctx, `
		INSERT INTO alunos (nome, ra, turma, ativo) VALUES (?, ?, ?, 1)`,
			nome, nullStr(ra), turma)
		switch {
		case err == nil:
			id, err := res.LastInsertId()
			if err != nil {
				return nil, err
			}
			return &Student{ID: id, Nome: nome, RA: ra, Turma: turma}, nil
		case isDupEntry(err):
			// a concurrent submission created the student first; the
			// locking re-read sees its committed row
			st, err = s.findStudent(ctx, nome, ra, turma)
			if err != nil {
				return nil, err
			}
			if st == nil {
				return nil, errors.New("aluno insert conflicted but winner row not found")
			}
		default:
			return nil, err
		}
	}

	// refresh identity fields; a missing ra in the submission keeps the stored one
	if _, err := s.q.ExecContext(ctx, `
	UPDATE alunos SET nome = ?, ra = COALESCE(?, ra) WHERE aluno_id = ?`,
		nome, nullStr(ra), st.ID); err != nil {
		return nil, err
	}
	st.Nome = nome
	if ra != nil {
		st.RA = ra
	}
	return st, nil
}

func (s *SQLStore) findStudent(ctx context.Context, nome string, ra *string, turma string) (*Student, error) {
	scan := func(row *sql.Row) (*Student, error) {
		var (
			st    Student
			raCol sql.NullString
		)
		err := row.Scan(&st.ID, &st.Nome, &raCol, &st.Turma)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if raCol.Valid {
			v := raCol.String
			st.RA = &v
		}
		return &st, nil
	}

	if ra != nil {
		st, err := scan(s.q.QueryRowContext(ctx, `
		SELECT aluno_id, nome, ra, turma FROM alunos
		WHERE ra = ? AND turma = ? AND ativo = 1
		FOR UPDATE`, *ra, turma))
		if st != nil || err != nil {
			return st, err
		}
	}
	return scan(s.q.QueryRowContext(ctx, `
	SELECT aluno_id, nome, ra, turma FROM alunos
	WHERE nome = ? AND turma = ? AND ativo = 1
	FOR UPDATE`, nome, turma))
}

// UpsertAttendance: INSERT ... ON DUPLICATE KEY UPDATE on the
// (aluno_id, semana_inicio) key, then read the definitive row back.
// The ULID column is deliberately not part of the UPDATE list so the
// public id survives resubmission.
func (s *SQLStore) UpsertAttendance(ctx context.Context, rec *Attendance) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
	INSERT INTO frequencias (frequencia_ulid, aluno_id, semana_inicio, total_aulas, faltas, frequencia_percent, abaixo_limite)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
	total_aulas        = VALUES(total_aulas),
	faltas             = VALUES(faltas),
	frequencia_percent = VALUES(frequencia_percent),
	abaixo_limite      = VALUES(abaixo_limite)`,
		rec.ULID, rec.StudentID, rec.WeekStart, rec.TotalClasses, rec.Absences, rec.Percent, rec.Below)
	if err != nil {
		return false, err
	}
	aff, _ := res.RowsAffected()
	created := aff == 1 // 2 (or 0, no-op) means the row already existed

	row := s.q.QueryRowContext(ctx, `
	SELECT frequencia_id, frequencia_ulid, DATE_FORMAT(semana_inicio, '%Y-%m-%d'), criado_em, atualizado_em
	FROM frequencias
	WHERE aluno_id = ? AND semana_inicio = ?`, rec.StudentID, rec.WeekStart)
	if err := row.Scan(&rec.ID, &rec.ULID, &rec.WeekStart, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return created, errors.New("upserted frequencia not found")
		}
		return created, err
	}
	return created, nil
}

// FindFollowUpByAttendance runs inside the ingestion transaction; the
// locking read makes it see a case committed by a concurrent submission
// instead of the transaction's snapshot.
func (s *SQLStore) FindFollowUpByAttendance(ctx context.Context, attendanceID int64) (*FollowUp, error) {
	row := s.q.QueryRowContext(ctx, `
	SELECT buscativa_id, buscativa_ulid, frequencia_id, status, professor_nome, sucesso, observacoes, data_criacao, data_realizada
	FROM buscativas
	WHERE frequencia_id = ?
	FOR UPDATE`, attendanceID)
	return scanFollowUp(row)
}

func (s *SQLStore) GetFollowUpByULID(ctx context.Context, u string) (*FollowUp, error) {
	row := s.q.QueryRowContext(ctx, `
	SELECT buscativa_id, buscativa_ulid, frequencia_id, status, professor_nome, sucesso, observacoes, data_criacao, data_realizada
	FROM buscativas
	WHERE buscativa_ulid = ?`, u)
	return scanFollowUp(row)
}

// InsertFollowUp: the UNIQUE key on frequencia_id turns a lost
// check-then-create race into a duplicate-entry error, reported as
// inserted=false rather than a failure.
func (s *SQLStore) InsertFollowUp(ctx context.Context, fu *FollowUp) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
	INSERT INTO buscativas (buscativa_ulid, frequencia_id, status, data_criacao)
	VALUES (?, ?, ?, ?)`,
		fu.ULID, fu.AttendanceID, string(fu.Status), fu.CreatedAt)
	if err != nil {
		if isDupEntry(err) {
			return false, nil
		}
		return false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, err
	}
	fu.ID = id
	return true, nil
}

// TransitionFollowUp is a conditional UPDATE guarded on the pending
// status, so only one caller wins a concurrent resolution.
func (s *SQLStore) TransitionFollowUp(ctx context.Context, id int64, to Status, professorNome *string, sucesso *bool, observacoes *string, at time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
	UPDATE buscativas
	SET status = ?, professor_nome = ?, sucesso = ?, observacoes = ?, data_realizada = ?
	WHERE buscativa_id = ? AND status = ?`,
		string(to), nullStr(professorNome), nullBool(sucesso), nullStr(observacoes), at, id, string(StatusPending))
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff == 1, nil
}

// DeleteCascade removes the listed frequencias; buscativas go with them
// through the FK. Returns the ids that actually existed and were removed.
func (s *SQLStore) DeleteCascade(ctx context.Context, ulids []string) ([]string, error) {
	if len(ulids) == 0 {
		return nil, nil
	}
	ph := strings.TrimSuffix(strings.Repeat("?,", len(ulids)), ",")
	args := make([]any, 0, len(ulids))
	for _, u := range ulids {
		args = append(args, u)
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT frequencia_ulid FROM frequencias WHERE frequencia_ulid IN (`+ph+`) FOR UPDATE`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var existing []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		existing = append(existing, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, nil
	}

	res, err := s.q.ExecContext(ctx,
		`DELETE FROM frequencias WHERE frequencia_ulid IN (`+ph+`)`, args...)
	if err != nil {
		return nil, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if int(aff) != len(existing) {
		return nil, errors.New("delete removed an unexpected number of rows")
	}
	return existing, nil
}

func (s *SQLStore) Query(ctx context.Context, f ListFilter) ([]Row, error) {
	var buf bytes.Buffer
	buf.WriteString(`
	SELECT f.frequencia_id, f.frequencia_ulid, f.aluno_id, DATE_FORMAT(f.semana_inicio, '%Y-%m-%d'),
	       f.total_aulas, f.faltas, f.frequencia_percent, f.abaixo_limite, f.criado_em, f.atualizado_em,
	       a.aluno_id, a.nome, a.ra, a.turma,
	       b.buscativa_id, b.buscativa_ulid, b.frequencia_id, b.status, b.professor_nome, b.sucesso, b.observacoes, b.data_criacao, b.data_realizada
	FROM frequencias f
	JOIN alunos a ON a.aluno_id = f.aluno_id
	LEFT JOIN buscativas b ON b.frequencia_id = f.frequencia_id
	`)
	wheres, args := filterClauses(f)
	buf.WriteString(" WHERE " + strings.Join(wheres, " AND "))

	return s.readRows(ctx, buf.String(), args, false)
}

func (s *SQLStore) QueryFollowUps(ctx context.Context, f ListFilter) ([]Row, error) {
	var buf bytes.Buffer
	buf.WriteString(`
	SELECT f.frequencia_id, f.frequencia_ulid, f.aluno_id, DATE_FORMAT(f.semana_inicio, '%Y-%m-%d'),
	       f.total_aulas, f.faltas, f.frequencia_percent, f.abaixo_limite, f.criado_em, f.atualizado_em,
	       a.aluno_id, a.nome, a.ra, a.turma,
	       b.buscativa_id, b.buscativa_ulid, b.frequencia_id, b.status, b.professor_nome, b.sucesso, b.observacoes, b.data_criacao, b.data_realizada
	FROM buscativas b
	JOIN frequencias f ON f.frequencia_id = b.frequencia_id
	JOIN alunos a ON a.aluno_id = f.aluno_id
	`)
	wheres, args := filterClauses(f)
	buf.WriteString(" WHERE " + strings.Join(wheres, " AND "))

	return s.readRows(ctx, buf.String(), args, true)
}

func filterClauses(f ListFilter) ([]string, []any) {
	wheres := []string{"a.ativo = 1"}
	var args []any
	if f.Turma != nil && *f.Turma != "" {
		wheres = append(wheres, "a.turma = ?")
		args = append(args, *f.Turma)
	}
	if f.WeekStart != nil && *f.WeekStart != "" {
		wheres = append(wheres, "f.semana_inicio = ?")
		args = append(args, *f.WeekStart)
	}
	if f.Status != nil {
		wheres = append(wheres, "b.status = ?")
		args = append(args, string(*f.Status))
	}
	return wheres, args
}

// readRows runs the listing query in a read-only transaction so the
// joined rows come from one consistent snapshot. Inside an existing
// transaction it reuses it.
func (s *SQLStore) readRows(ctx context.Context, q string, args []any, caseRequired bool) ([]Row, error) {
	if s.db == nil {
		return queryRows(ctx, s.q, q, args, caseRequired)
	}
	var out []Row
	err := platformdb.ReadOnly(ctx, s.db, func(ctx context.Context, tx platformdb.DBTX) error {
		var err error
		out, err = queryRows(ctx, tx, q, args, caseRequired)
		return err
	})
	return out, err
}

func queryRows(ctx context.Context, dbtx platformdb.DBTX, q string, args []any, caseRequired bool) ([]Row, error) {
	rows, err := dbtx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r      Row
			raCol  sql.NullString
			bID    sql.NullInt64
			bULID  sql.NullString
			bFreq  sql.NullInt64
			bStat  sql.NullString
			bProf  sql.NullString
			bSucc  sql.NullBool
			bObs   sql.NullString
			bCria  sql.NullTime
			bfeita sql.NullTime
		)
		if err := rows.Scan(
			&r.Attendance.ID, &r.Attendance.ULID, &r.Attendance.StudentID, &r.Attendance.WeekStart,
			&r.Attendance.TotalClasses, &r.Attendance.Absences, &r.Attendance.Percent, &r.Attendance.Below,
			&r.Attendance.CreatedAt, &r.Attendance.UpdatedAt,
			&r.Student.ID, &r.Student.Nome, &raCol, &r.Student.Turma,
			&bID, &bULID, &bFreq, &bStat, &bProf, &bSucc, &bObs, &bCria, &bfeita,
		); err != nil {
			return nil, err
		}
		if raCol.Valid {
			v := raCol.String
			r.Student.RA = &v
		}
		if bID.Valid {
			fu := &FollowUp{
				ID:           bID.Int64,
				ULID:         bULID.String,
				AttendanceID: bFreq.Int64,
				Status:       Status(bStat.String),
				CreatedAt:    bCria.Time,
			}
			if bProf.Valid {
				v := bProf.String
				fu.ProfessorNome = &v
			}
			if bSucc.Valid {
				v := bSucc.Bool
				fu.Sucesso = &v
			}
			if bObs.Valid {
				v := bObs.String
				fu.Observacoes = &v
			}
			if bfeita.Valid {
				v := bfeita.Time
				fu.ResolvedAt = &v
			}
			r.FollowUp = fu
		} else if caseRequired {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanFollowUp(row *sql.Row) (*FollowUp, error) {
	var (
		fu    FollowUp
		stat  string
		prof  sql.NullString
		succ  sql.NullBool
		obs   sql.NullString
		feita sql.NullTime
	)
	err := row.Scan(&fu.ID, &fu.ULID, &fu.AttendanceID, &stat, &prof, &succ, &obs, &fu.CreatedAt, &feita)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fu.Status = Status(stat)
	if prof.Valid {
		v := prof.String
		fu.ProfessorNome = &v
	}
	if succ.Valid {
		v := succ.Bool
		fu.Sucesso = &v
	}
	if obs.Valid {
		v := obs.String
		fu.Observacoes = &v
	}
	if feita.Valid {
		v := feita.Time
		fu.ResolvedAt = &v
	}
	return &fu, nil
}

// ===== helpers =====

func nullStr(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}
