package auditstore

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Store{db: db}, mock
}

func TestRecordParserEventInsertsRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO parser_audit_log").
		WithArgs("syslog-rfc3164", "registered", "priority 70").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.RecordParserEvent(context.Background(), ParserEvent{
		ParserID: "syslog-rfc3164", Action: "registered", Detail: "priority 70",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordBreakerEventInsertsRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO breaker_audit_log").
		WithArgs("dispatch", "closed", "open").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.RecordBreakerEvent(context.Background(), BreakerEvent{
		BreakerName: "dispatch", FromState: "closed", ToState: "open",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentParserEventsScansRows(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"parser_id", "action", "detail", "created_at"}).
		AddRow("syslog-rfc3164", "registered", "priority 70", now)
	mock.ExpectQuery("SELECT parser_id, action, detail, created_at FROM parser_audit_log").
		WithArgs(10).
		WillReturnRows(rows)

	events, err := s.RecentParserEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "syslog-rfc3164", events[0].ParserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNilStoreMethodsAreNoOps(t *testing.T) {
	var s *Store
	assert.NoError(t, s.RecordParserEvent(context.Background(), ParserEvent{}))
	assert.NoError(t, s.RecordBreakerEvent(context.Background(), BreakerEvent{}))
	events, err := s.RecentParserEvents(context.Background(), 10)
	assert.NoError(t, err)
	assert.Nil(t, events)
	assert.NoError(t, s.Close())
}
