package app

import (
	"bytes"
	"strings"
	"testing"
)

func TestRun_ServeCommand_FailsWhenDatabaseUnreachable(t *testing.T) {
	setRequiredEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run(serve) should fail when the database is unreachable")
	}
	if !strings.Contains(err.Error(), "database") {
		t.Errorf("error = %v, want database related error", err)
	}
}

func TestRun_WorkerCommand_RequiresPostgres(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATA_STORE", "memory")

	var buf bytes.Buffer
	err := Run(&buf, []string{"worker"})
	if err == nil || !strings.Contains(err.Error(), "DATA_STORE=postgres") {
		t.Fatalf("err = %v, want DATA_STORE=postgres error", err)
	}
}

func TestRun_MigrateCommand_NoopForMemoryStore(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATA_STORE", "memory")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"migrate"}); err != nil {
		t.Fatalf("Run(migrate) with memory store returned error: %v", err)
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	t.Setenv("DATA_STORE", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("GOOGLE_CLIENT_SECRET", "")
	t.Setenv("GOOGLE_REDIRECT_URL", "")
	t.Setenv("BASE_URL", "")

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run with missing env should return error")
	}
}
