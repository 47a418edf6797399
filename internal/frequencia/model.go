package frequencia

import (
	"math"
	"time"
)

const DateLayout = "2006-01-02"

// Status is the engine-side lifecycle of a buscativa. The UI shows
// pendente/feita/cancelada; that mapping is a display concern.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Student is owned by the roster; the engine only references it.
type Student struct {
	ID    int64
	Nome  string
	RA    *string
	Turma string
}

// Attendance is one student's record for one week.
type Attendance struct {
	ID           int64
	ULID         string
	StudentID    int64
	WeekStart    string // YYYY-MM-DD
	TotalClasses int
	Absences     int
	Percent      float64
	Below        bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FollowUp is the buscativa opened when attendance breaches the threshold.
// At most one exists per Attendance row, enforced by the store.
type FollowUp struct {
	ID            int64
	ULID          string
	AttendanceID  int64
	Status        Status
	ProfessorNome *string
	Sucesso       *bool
	Observacoes   *string
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}

// ListFilter: nil field means "match all".
type ListFilter struct {
	Turma     *string
	WeekStart *string // YYYY-MM-DD
	Status    *Status
}

// Row is an attendance record joined with its student and (nullable) buscativa.
type Row struct {
	Attendance Attendance
	Student    Student
	FollowUp   *FollowUp
}

// CalcPercent returns the attendance percentage rounded half-up to two
// decimal places. Inputs must already be validated (total >= 1,
// 0 <= absences <= total), so the value is always in [0, 100].
func CalcPercent(totalClasses, absences int) float64 {
	present := totalClasses - absences
	raw := float64(present) / float64(totalClasses) * 100.0
	return math.Round(raw*100) / 100
}
