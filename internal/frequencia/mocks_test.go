package frequencia

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var errMockStorage = errors.New("mock storage error")

// memStore implements Store in memory. InTx serializes callers on one
// mutex (the unit-of-isolation the engine expects from MySQL) and rolls
// the data back when the callback fails, so atomicity assertions hold.
type memStore struct {
	mu   sync.Mutex
	data *memData
	inTx bool
}

type memData struct {
	nextID     int64
	students   map[int64]Student
	attendance map[int64]Attendance
	followUps  map[int64]FollowUp

	failInsertFollowUp error
	failUpsert         error
}

func newMemStore() *memStore {
	return &memStore{data: &memData{
		students:   make(map[int64]Student),
		attendance: make(map[int64]Attendance),
		followUps:  make(map[int64]FollowUp),
	}}
}

func (d *memData) clone() *memData {
	c := &memData{
		nextID:             d.nextID,
		students:           make(map[int64]Student, len(d.students)),
		attendance:         make(map[int64]Attendance, len(d.attendance)),
		followUps:          make(map[int64]FollowUp, len(d.followUps)),
		failInsertFollowUp: d.failInsertFollowUp,
		failUpsert:         d.failUpsert,
	}
	for k, v := range d.students {
		c.students[k] = v
	}
	for k, v := range d.attendance {
		c.attendance[k] = v
	}
	for k, v := range d.followUps {
		c.followUps[k] = v
	}
	return c
}

func (m *memStore) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if m.inTx {
		return fn(ctx, m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.data.clone()
	if err := fn(ctx, &memStore{data: m.data, inTx: true}); err != nil {
		*m.data = *snap
		return err
	}
	return nil
}

func (m *memStore) GetOrCreateStudent(ctx context.Context, nome string, ra *string, turma string) (*Student, error) {
	defer m.lock()()
	for id, st := range m.data.students {
		if st.Turma != turma {
			continue
		}
		if (ra != nil && st.RA != nil && *st.RA == *ra) || st.Nome == nome {
			st.Nome = nome
			if ra != nil {
				st.RA = ra
			}
			m.data.students[id] = st
			out := st
			return &out, nil
		}
	}
	m.data.nextID++
	st := Student{ID: m.data.nextID, Nome: nome, RA: ra, Turma: turma}
	m.data.students[st.ID] = st
	out := st
	return &out, nil
}

func (m *memStore) UpsertAttendance(ctx context.Context, rec *Attendance) (bool, error) {
	defer m.lock()()
	if m.data.failUpsert != nil {
		return false, m.data.failUpsert
	}
	for id, a := range m.data.attendance {
		if a.StudentID == rec.StudentID && a.WeekStart == rec.WeekStart {
			a.TotalClasses = rec.TotalClasses
			a.Absences = rec.Absences
			a.Percent = rec.Percent
			a.Below = rec.Below
			a.UpdatedAt = time.Now().UTC()
			m.data.attendance[id] = a
			*rec = a
			return false, nil
		}
	}
	m.data.nextID++
	rec.ID = m.data.nextID
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.CreatedAt
	m.data.attendance[rec.ID] = *rec
	return true, nil
}

func (m *memStore) FindFollowUpByAttendance(ctx context.Context, attendanceID int64) (*FollowUp, error) {
	defer m.lock()()
	for _, fu := range m.data.followUps {
		if fu.AttendanceID == attendanceID {
			out := fu
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memStore) InsertFollowUp(ctx context.Context, fu *FollowUp) (bool, error) {
	defer m.lock()()
	if m.data.failInsertFollowUp != nil {
		return false, m.data.failInsertFollowUp
	}
	for _, existing := range m.data.followUps {
		if existing.AttendanceID == fu.AttendanceID {
			return false, nil
		}
	}
	m.data.nextID++
	fu.ID = m.data.nextID
	m.data.followUps[fu.ID] = *fu
	return true, nil
}

func (m *memStore) GetFollowUpByULID(ctx context.Context, ulid string) (*FollowUp, error) {
	defer m.lock()()
	for _, fu := range m.data.followUps {
		if fu.ULID == ulid {
			out := fu
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memStore) TransitionFollowUp(ctx context.Context, id int64, to Status, professorNome *string, sucesso *bool, observacoes *string, at time.Time) (bool, error) {
	defer m.lock()()
	fu, ok := m.data.followUps[id]
	if !ok || fu.Status != StatusPending {
		return false, nil
	}
	fu.Status = to
	fu.ProfessorNome = professorNome
	fu.Sucesso = sucesso
	fu.Observacoes = observacoes
	fu.ResolvedAt = &at
	m.data.followUps[id] = fu
	return true, nil
}

func (m *memStore) DeleteCascade(ctx context.Context, ulids []string) ([]string, error) {
	defer m.lock()()
	var deleted []string
	for _, u := range ulids {
		for id, a := range m.data.attendance {
			if a.ULID != u {
				continue
			}
			delete(m.data.attendance, id)
			for fid, fu := range m.data.followUps {
				if fu.AttendanceID == id {
					delete(m.data.followUps, fid)
				}
			}
			deleted = append(deleted, u)
			break
		}
	}
	return deleted, nil
}

func (m *memStore) Query(ctx context.Context, f ListFilter) ([]Row, error) {
	defer m.lock()()
	var out []Row
	for _, a := range m.data.attendance {
		r := m.joinRow(a)
		if m.matches(r, f) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) QueryFollowUps(ctx context.Context, f ListFilter) ([]Row, error) {
	defer m.lock()()
	var out []Row
	for _, fu := range m.data.followUps {
		a, ok := m.data.attendance[fu.AttendanceID]
		if !ok {
			return nil, fmt.Errorf("orphan buscativa %d", fu.ID)
		}
		r := m.joinRow(a)
		if m.matches(r, f) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) joinRow(a Attendance) Row {
	r := Row{Attendance: a, Student: m.data.students[a.StudentID]}
	for _, fu := range m.data.followUps {
		if fu.AttendanceID == a.ID {
			out := fu
			r.FollowUp = &out
			break
		}
	}
	return r
}

func (m *memStore) matches(r Row, f ListFilter) bool {
	if f.Turma != nil && r.Student.Turma != *f.Turma {
		return false
	}
	if f.WeekStart != nil && r.Attendance.WeekStart != *f.WeekStart {
		return false
	}
	if f.Status != nil {
		if r.FollowUp == nil || r.FollowUp.Status != *f.Status {
			return false
		}
	}
	return true
}

// test seams for the service's Clock and IDGen

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("01TESTULID%016d", g.n), nil
}
