package frequencia

import "time"

// attendance submission; total_aulas and faltas are pointers so a missing
// field is distinguishable from zero. Field presence is checked by the
// service, which reports per-field messages.
type CreateAttendanceRequest struct {
	Nome         string  `json:"nome"`
	RA           *string `json:"ra,omitempty"`
	Turma        string  `json:"turma"`
	SemanaInicio string  `json:"semana_inicio"` // YYYY-MM-DD
	TotalAulas   *int    `json:"total_aulas"`
	Faltas       *int    `json:"faltas"`
}

type ResolveFollowUpRequest struct {
	ProfessorNome string  `json:"professor_nome"`
	Sucesso       *bool   `json:"sucesso"`
	Observacoes   *string `json:"observacoes,omitempty"`
}

type DeleteAttendanceRequest struct {
	IDs      []string `json:"ids"`
	Password string   `json:"password"`
}

type StudentDTO struct {
	ID    int64   `json:"id"`
	Nome  string  `json:"nome"`
	RA    *string `json:"ra,omitempty"`
	Turma string  `json:"turma"`
}

type FollowUpResponse struct {
	ID            string     `json:"id"`
	Status        Status     `json:"status"`
	ProfessorNome *string    `json:"professor_nome,omitempty"`
	Sucesso       *bool      `json:"sucesso,omitempty"`
	Observacoes   *string    `json:"observacoes,omitempty"`
	DataCriacao   time.Time  `json:"data_criacao"`
	DataRealizada *time.Time `json:"data_realizada,omitempty"`
}

type AttendanceResponse struct {
	ID                string            `json:"id"`
	Aluno             StudentDTO        `json:"aluno"`
	SemanaInicio      string            `json:"semana_inicio"`
	TotalAulas        int               `json:"total_aulas"`
	Faltas            int               `json:"faltas"`
	FrequenciaPercent float64           `json:"frequencia_percent"`
	AbaixoLimite      bool              `json:"abaixo_limite"`
	Buscativa         *FollowUpResponse `json:"buscativa"`
}

// RecordResult carries both writes back to the caller so the UI can show
// the escalation without a second query.
type RecordResult struct {
	Created          bool               `json:"created"`
	BuscativaCreated bool               `json:"buscativa_criada"`
	Frequencia       AttendanceResponse `json:"frequencia"`
}

type FollowUpListItem struct {
	FollowUpResponse
	Aluno      StudentDTO        `json:"aluno"`
	Frequencia attendanceSummary `json:"frequencia"`
}

type attendanceSummary struct {
	ID                string  `json:"id"`
	SemanaInicio      string  `json:"semana_inicio"`
	TotalAulas        int     `json:"total_aulas"`
	Faltas            int     `json:"faltas"`
	FrequenciaPercent float64 `json:"frequencia_percent"`
}

type DeleteAttendanceResponse struct {
	Deleted []string `json:"deleted"`
	Missing []string `json:"missing"`
}

func followUpToDTO(fu *FollowUp) *FollowUpResponse {
	if fu == nil {
		return nil
	}
	return &FollowUpResponse{
		ID:            fu.ULID,
		Status:        fu.Status,
		ProfessorNome: fu.ProfessorNome,
		Sucesso:       fu.Sucesso,
		Observacoes:   fu.Observacoes,
		DataCriacao:   fu.CreatedAt,
		DataRealizada: fu.ResolvedAt,
	}
}

func rowToDTO(r Row) AttendanceResponse {
	return AttendanceResponse{
		ID: r.Attendance.ULID,
		Aluno: StudentDTO{
			ID:    r.Student.ID,
			Nome:  r.Student.Nome,
			RA:    r.Student.RA,
			Turma: r.Student.Turma,
		},
		SemanaInicio:      r.Attendance.WeekStart,
		TotalAulas:        r.Attendance.TotalClasses,
		Faltas:            r.Attendance.Absences,
		FrequenciaPercent: r.Attendance.Percent,
		AbaixoLimite:      r.Attendance.Below,
		Buscativa:         followUpToDTO(r.FollowUp),
	}
}

func rowToFollowUpItem(r Row) FollowUpListItem {
	return FollowUpListItem{
		FollowUpResponse: *followUpToDTO(r.FollowUp),
		Aluno: StudentDTO{
			ID:    r.Student.ID,
			Nome:  r.Student.Nome,
			RA:    r.Student.RA,
			Turma: r.Student.Turma,
		},
		Frequencia: attendanceSummary{
			ID:                r.Attendance.ULID,
			SemanaInicio:      r.Attendance.WeekStart,
			TotalAulas:        r.Attendance.TotalClasses,
			Faltas:            r.Attendance.Absences,
			FrequenciaPercent: r.Attendance.Percent,
		},
	}
}
