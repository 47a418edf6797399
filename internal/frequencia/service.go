package frequencia

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Store is the record store the engine consumes. Multi-write operations go
// through InTx; the implementation must make the callback atomic and must
// enforce uniqueness on (student, week) and on the buscativa's owning
// frequencia, which is what keeps concurrent submissions from creating two
// cases for the same record.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	GetOrCreateStudent(ctx context.Context, nome string, ra *string, turma string) (*Student, error)

	// UpsertAttendance inserts or, for an existing (student, week) pair,
	// replaces the numeric fields in place. The record's ID and ULID stay
	// stable across replacement; created reports which path was taken.
	UpsertAttendance(ctx context.Context, rec *Attendance) (created bool, err error)

	FindFollowUpByAttendance(ctx context.Context, attendanceID int64) (*FollowUp, error)

	// InsertFollowUp creates the case unless one already exists for the
	// attendance row, in which case it reports inserted=false without error.
	InsertFollowUp(ctx context.Context, fu *FollowUp) (inserted bool, err error)

	GetFollowUpByULID(ctx context.Context, ulid string) (*FollowUp, error)

	// TransitionFollowUp applies pending -> to conditionally; ok=false when
	// the case was not pending anymore (or disappeared).
	TransitionFollowUp(ctx context.Context, id int64, to Status, professorNome *string, sucesso *bool, observacoes *string, at time.Time) (ok bool, err error)

	// DeleteCascade removes the given attendance records and their cases,
	// returning the ids actually removed.
	DeleteCascade(ctx context.Context, ulids []string) ([]string, error)

	Query(ctx context.Context, f ListFilter) ([]Row, error)
	QueryFollowUps(ctx context.Context, f ListFilter) ([]Row, error)
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface {
	New() (string, error)
}

type ulidGen struct{}

func (ulidGen) New() (string, error) {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Service is the escalation engine: it owns the rule linking attendance
// records to buscativas and the case lifecycle.
type Service struct {
	store              Store
	clock              Clock
	id                 IDGen
	threshold          float64
	deletePasswordHash []byte
	coll               *collate.Collator
}

func NewService(store Store, threshold float64, deletePasswordHash string) *Service {
	return &Service{
		store:              store,
		clock:              realClock{},
		id:                 ulidGen{},
		threshold:          threshold,
		deletePasswordHash: []byte(deletePasswordHash),
		coll:               collate.New(language.BrazilianPortuguese, collate.IgnoreCase),
	}
}

// RecordAttendance validates the submission, computes the percentage and
// threshold outcome, upserts the weekly record and, when the threshold is
// breached and no case exists yet for the record, opens a pending
// buscativa. Record and case are committed as one unit.
func (s *Service) RecordAttendance(ctx context.Context, req CreateAttendanceRequest) (*RecordResult, error) {
	nome := strings.TrimSpace(req.Nome)
	turma := strings.TrimSpace(req.Turma)
	if nome == "" {
		return nil, ErrInvalid("nome is required")
	}
	if turma == "" {
		return nil, ErrInvalid("turma is required")
	}
	week := strings.TrimSpace(req.SemanaInicio)
	if _, err := time.Parse(DateLayout, week); err != nil {
		return nil, ErrInvalid("semana_inicio must be a valid YYYY-MM-DD date")
	}
	if req.TotalAulas == nil || *req.TotalAulas < 1 {
		return nil, ErrInvalid("total_aulas must be >= 1")
	}
	if req.Faltas == nil || *req.Faltas < 0 {
		return nil, ErrInvalid("faltas must be >= 0")
	}
	total, faltas := *req.TotalAulas, *req.Faltas
	if faltas > total {
		return nil, ErrInvalid("faltas must not exceed total_aulas")
	}

	var ra *string
	if req.RA != nil {
		if v := strings.TrimSpace(*req.RA); v != "" {
			ra = &v
		}
	}

	percent := CalcPercent(total, faltas)
	below := percent < s.threshold

	recULID, err := s.id.New()
	if err != nil {
		return nil, asPersistence(err)
	}
	caseULID, err := s.id.New()
	if err != nil {
		return nil, asPersistence(err)
	}

	var out RecordResult
	err = s.store.InTx(ctx, func(ctx context.Context, tx Store) error {
		student, err := tx.GetOrCreateStudent(ctx, nome, ra, turma)
		if err != nil {
			return err
		}

		rec := &Attendance{
			ULID:         recULID,
			StudentID:    student.ID,
			WeekStart:    week,
			TotalClasses: total,
			Absences:     faltas,
			Percent:      percent,
			Below:        below,
		}
		created, err := tx.UpsertAttendance(ctx, rec)
		if err != nil {
			return err
		}

		var fu *FollowUp
		if below {
			// one case per record instance: an existing case in any
			// status (pending or terminal) suppresses creation
			fu, err = tx.FindFollowUpByAttendance(ctx, rec.ID)
			if err != nil {
				return err
			}
			if fu == nil {
				cand := &FollowUp{
					ULID:         caseULID,
					AttendanceID: rec.ID,
					Status:       StatusPending,
					CreatedAt:    s.clock.Now(),
				}
				inserted, err := tx.InsertFollowUp(ctx, cand)
				if err != nil {
					return err
				}
				if inserted {
					fu = cand
					out.BuscativaCreated = true
				} else {
					// lost a race to a concurrent submission; report theirs
					fu, err = tx.FindFollowUpByAttendance(ctx, rec.ID)
					if err != nil {
						return err
					}
				}
			}
		} else {
			// a correction upward never touches an existing case: outreach
			// may already be underway, so cancellation stays manual
			fu, err = tx.FindFollowUpByAttendance(ctx, rec.ID)
			if err != nil {
				return err
			}
		}

		out.Created = created
		out.Frequencia = rowToDTO(Row{Attendance: *rec, Student: *student, FollowUp: fu})
		return nil
	})
	if err != nil {
		return nil, asPersistence(err)
	}
	return &out, nil
}

// ResolveFollowUp closes a pending buscativa as completed, recording who
// handled it and whether the outreach succeeded. Not safely retriable
// after a PERSISTENCE failure of unknown commit outcome: re-query the
// case status before retrying.
func (s *Service) ResolveFollowUp(ctx context.Context, caseULID string, req ResolveFollowUpRequest) (*FollowUpResponse, error) {
	professor := strings.TrimSpace(req.ProfessorNome)
	if professor == "" {
		return nil, ErrInvalid("professor_nome is required")
	}
	if req.Sucesso == nil {
		return nil, ErrInvalid("sucesso must be true or false")
	}
	var obs *string
	if req.Observacoes != nil {
		if v := strings.TrimSpace(*req.Observacoes); v != "" {
			obs = &v
		}
	}
	return s.transition(ctx, caseULID, StatusCompleted, &professor, req.Sucesso, obs)
}

// CancelFollowUp administratively voids a pending buscativa. This is the
// only path to the cancelled status; resolution never produces it.
func (s *Service) CancelFollowUp(ctx context.Context, caseULID string) (*FollowUpResponse, error) {
	return s.transition(ctx, caseULID, StatusCancelled, nil, nil, nil)
}

func (s *Service) transition(ctx context.Context, caseULID string, to Status, professor *string, sucesso *bool, obs *string) (*FollowUpResponse, error) {
	if strings.TrimSpace(caseULID) == "" {
		return nil, ErrInvalid("buscativa id is required")
	}

	fu, err := s.store.GetFollowUpByULID(ctx, caseULID)
	if err != nil {
		return nil, asPersistence(err)
	}
	if fu == nil {
		return nil, ErrNotFound("buscativa not found")
	}
	if fu.Status.Terminal() {
		return nil, ErrInvalidState(fmt.Sprintf("buscativa is already %s", fu.Status))
	}

	now := s.clock.Now()
	ok, err := s.store.TransitionFollowUp(ctx, fu.ID, to, professor, sucesso, obs, now)
	if err != nil {
		return nil, asPersistence(err)
	}
	if !ok {
		// lost the pending -> terminal race; report the winner's state
		cur, err := s.store.GetFollowUpByULID(ctx, caseULID)
		if err != nil {
			return nil, asPersistence(err)
		}
		if cur == nil {
			return nil, ErrNotFound("buscativa not found")
		}
		return nil, ErrInvalidState(fmt.Sprintf("buscativa is already %s", cur.Status))
	}

	fu.Status = to
	fu.ProfessorNome = professor
	fu.Sucesso = sucesso
	fu.Observacoes = obs
	fu.ResolvedAt = &now
	return followUpToDTO(fu), nil
}

// DeleteAttendance is the deletion gate: a shared password authorizes the
// whole batch or none of it, and each removed record takes its buscativa
// along. Ids that do not exist are reported back, never silently skipped.
func (s *Service) DeleteAttendance(ctx context.Context, req DeleteAttendanceRequest) (*DeleteAttendanceResponse, error) {
	if len(req.IDs) == 0 {
		return nil, ErrInvalid("ids must not be empty")
	}
	pw := strings.TrimSpace(req.Password)
	if pw == "" {
		return nil, ErrUnauthorized("senha incorreta")
	}
	if err := bcrypt.CompareHashAndPassword(s.deletePasswordHash, []byte(pw)); err != nil {
		return nil, ErrUnauthorized("senha incorreta")
	}

	var out DeleteAttendanceResponse
	err := s.store.InTx(ctx, func(ctx context.Context, tx Store) error {
		deleted, err := tx.DeleteCascade(ctx, req.IDs)
		if err != nil {
			return err
		}
		got := make(map[string]bool, len(deleted))
		for _, id := range deleted {
			got[id] = true
		}
		out.Deleted = deleted
		for _, id := range req.IDs {
			if !got[id] {
				out.Missing = append(out.Missing, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, asPersistence(err)
	}
	return &out, nil
}

// List is the read path for the frequência panel: attendance joined with
// its case, filtered and ordered turma/nome (pt-BR collation), week desc.
// It never mutates state.
func (s *Service) List(ctx context.Context, f ListFilter) ([]AttendanceResponse, error) {
	if err := validateFilter(&f); err != nil {
		return nil, err
	}
	rows, err := s.store.Query(ctx, f)
	if err != nil {
		return nil, asPersistence(err)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if c := s.coll.CompareString(a.Student.Turma, b.Student.Turma); c != 0 {
			return c < 0
		}
		if c := s.coll.CompareString(a.Student.Nome, b.Student.Nome); c != 0 {
			return c < 0
		}
		return a.Attendance.WeekStart > b.Attendance.WeekStart
	})
	out := make([]AttendanceResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToDTO(r))
	}
	return out, nil
}

// ListFollowUps is the case-first read path for the buscativa panel.
func (s *Service) ListFollowUps(ctx context.Context, f ListFilter) ([]FollowUpListItem, error) {
	if err := validateFilter(&f); err != nil {
		return nil, err
	}
	rows, err := s.store.QueryFollowUps(ctx, f)
	if err != nil {
		return nil, asPersistence(err)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.FollowUp.Status != b.FollowUp.Status {
			return a.FollowUp.Status < b.FollowUp.Status
		}
		if a.Attendance.WeekStart != b.Attendance.WeekStart {
			return a.Attendance.WeekStart > b.Attendance.WeekStart
		}
		if c := s.coll.CompareString(a.Student.Turma, b.Student.Turma); c != 0 {
			return c < 0
		}
		return s.coll.CompareString(a.Student.Nome, b.Student.Nome) < 0
	})
	out := make([]FollowUpListItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToFollowUpItem(r))
	}
	return out, nil
}

func validateFilter(f *ListFilter) error {
	if f.WeekStart != nil {
		w := strings.TrimSpace(*f.WeekStart)
		if _, err := time.Parse(DateLayout, w); err != nil {
			return ErrInvalid("semana_inicio must be a valid YYYY-MM-DD date")
		}
		f.WeekStart = &w
	}
	if f.Status != nil && !f.Status.Valid() {
		return ErrInvalid("status must be pending, completed or cancelled")
	}
	return nil
}
