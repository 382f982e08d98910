package db_test

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/atinyakov/FinKeeper/internal/db"
)

func TestInitPostgres_UnreachableDSN(t *testing.T) {
	for name, dsn := range map[string]string{
		"invalid DSN": "some=random",
		"empty DSN":   "",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := db.InitPostgres(dsn); err == nil || !strings.Contains(err.Error(), "ping postgres") {
				t.Errorf("InitPostgres(%q) error = %v; want ping failure", dsn, err)
			}
		})
	}
}

func TestApplySchema(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer conn.Close()

	var tables []string
	for _, table := range []string{"users", "sessions", "categories", "transactions"} {
		tables = append(tables, regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS "+table))
	}
	// one statement, tables in dependency order
	mock.ExpectExec(strings.Join(tables, "(?s:.*)")).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := db.ApplySchema(conn); err != nil {
		t.Fatalf("ApplySchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestApplySchema_Error(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer conn.Close()

	boom := errors.New("permission denied")
	mock.ExpectExec("CREATE TABLE").WillReturnError(boom)

	err = db.ApplySchema(conn)
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "create schema") {
		t.Errorf("ApplySchema error = %v; want wrapped %v", err, boom)
	}
}
