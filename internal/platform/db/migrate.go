package db

import (
	"context"
	"database/sql"
)

// Migrate creates the schema when it does not exist yet. The UNIQUE
// constraints and the cascading FKs are load-bearing: they serialize
// concurrent student creation per identity key and upserts per
// (aluno, semana), and guarantee at most one buscativa per frequencia
// row.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, q := range schema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS alunos (
		aluno_id   BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		nome       VARCHAR(200) NOT NULL,
		ra         VARCHAR(50)  NULL,
		turma      VARCHAR(50)  NOT NULL,
		ativo      TINYINT(1)   NOT NULL DEFAULT 1,
		criado_em  DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (aluno_id),
		UNIQUE KEY uq_aluno_ra_turma (ra, turma),
		UNIQUE KEY uq_aluno_nome_turma (turma, nome)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS frequencias (
		frequencia_id      BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		frequencia_ulid    CHAR(26)        NOT NULL,
		aluno_id           BIGINT UNSIGNED NOT NULL,
		semana_inicio      DATE            NOT NULL,
		total_aulas        INT             NOT NULL,
		faltas             INT             NOT NULL,
		frequencia_percent DECIMAL(5,2)    NOT NULL,
		abaixo_limite      TINYINT(1)      NOT NULL,
		criado_em          DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		atualizado_em      DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (frequencia_id),
		UNIQUE KEY uq_frequencia_ulid (frequencia_ulid),
		UNIQUE KEY uq_frequencia_aluno_semana (aluno_id, semana_inicio),
		CONSTRAINT fk_frequencia_aluno FOREIGN KEY (aluno_id)
			REFERENCES alunos (aluno_id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS buscativas (
		buscativa_id   BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		buscativa_ulid CHAR(26)        NOT NULL,
		frequencia_id  BIGINT UNSIGNED NOT NULL,
		status         VARCHAR(20)     NOT NULL DEFAULT 'pending',
		professor_nome VARCHAR(120)    NULL,
		sucesso        TINYINT(1)      NULL,
		observacoes    TEXT            NULL,
		data_criacao   DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		data_realizada DATETIME        NULL,
		PRIMARY KEY (buscativa_id),
		UNIQUE KEY uq_buscativa_ulid (buscativa_ulid),
		UNIQUE KEY uq_buscativa_frequencia (frequencia_id),
		CONSTRAINT fk_buscativa_frequencia FOREIGN KEY (frequencia_id)
			REFERENCES frequencias (frequencia_id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}
