package roster

import (
	"context"
	"database/sql"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Service is the read-only roster view. Students themselves come into
// existence through attendance submissions; this package never writes.
type Service struct {
	store *Store
	coll  *collate.Collator
}

func NewService(db *sql.DB) *Service {
	return &Service{
		store: NewStore(db),
		coll:  collate.New(language.BrazilianPortuguese, collate.IgnoreCase),
	}
}

func (s *Service) Turmas(ctx context.Context) ([]string, error) {
	turmas, err := s.store.ListTurmas(ctx)
	if err != nil {
		return nil, err
	}
	s.coll.SortStrings(turmas)
	return turmas, nil
}

func (s *Service) Students(ctx context.Context, turma *string) ([]Student, error) {
	students, err := s.store.ListStudents(ctx, turma)
	if err != nil {
		return nil, err
	}
	s.coll.Sort(byNome{s: students})
	return students, nil
}

// byNome sorts by turma then nome with pt-BR collation.
type byNome struct {
	s []Student
}

func (b byNome) Len() int      { return len(b.s) }
func (b byNome) Swap(i, j int) { b.s[i], b.s[j] = b.s[j], b.s[i] }
func (b byNome) Bytes(i int) []byte {
	return []byte(b.s[i].Turma + "\x00" + b.s[i].Nome)
}
