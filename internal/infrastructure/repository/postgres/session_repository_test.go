package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*SessionRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewSessionRepository(db), mock, func() { _ = db.Close() }
}

func TestAppendTurnUpsertsSessionAndInsertsTurn(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chat_sessions").
		WithArgs("s-1", "first question", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO chat_turns").
		WithArgs(sqlmock.AnyArg(), "s-1", "first question", "answer", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.AppendTurn(context.Background(), "s-1", domain.ChatTurn{User: "first question", Assistant: "answer", Timestamp: ts})
	if err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendTurnRollsBackOnInsertFailure(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chat_sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO chat_turns").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.AppendTurn(context.Background(), "s-1", domain.ChatTurn{User: "q", Assistant: "a"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecentTurnsReturnsChronologicalOrder(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"user_message", "assistant_message", "created_at"}).
		AddRow("q3", "a3", base.Add(3*time.Minute)).
		AddRow("q2", "a2", base.Add(2*time.Minute)).
		AddRow("q1", "a1", base.Add(1*time.Minute))
	mock.ExpectQuery("SELECT user_message, assistant_message, created_at").
		WithArgs("s-1", 5).
		WillReturnRows(rows)

	turns, err := repo.RecentTurns(context.Background(), "s-1", 5)
	if err != nil {
		t.Fatalf("RecentTurns() error = %v", err)
	}
	if len(turns) != 3 || turns[0].User != "q1" || turns[2].User != "q3" {
		t.Fatalf("expected chronological order, got %#v", turns)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListSessionsHandlesSessionsWithoutTurns(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"session_id", "title", "last_updated"}).
		AddRow("s-1", "Tesla board", ts).
		AddRow("s-2", untitledChat, nil)
	mock.ExpectQuery("SELECT s.session_id").
		WithArgs(untitledChat).
		WillReturnRows(rows)

	sessions, err := repo.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].LastUpdated == nil || !sessions[0].LastUpdated.Equal(ts) {
		t.Fatalf("unexpected last_updated %#v", sessions[0].LastUpdated)
	}
	if sessions[1].LastUpdated != nil || sessions[1].Title != untitledChat {
		t.Fatalf("unexpected empty session %#v", sessions[1])
	}
}

func TestDeleteSessionReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM chat_sessions").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteSession(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPurgeDropsAndRecreatesUnderLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(schemaLockKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DROP TABLE IF EXISTS chat_turns, chat_sessions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS chat_sessions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.Purge(context.Background()); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
