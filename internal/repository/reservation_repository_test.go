package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/explanation-reservation/internal/model"
)

var reservationCols = []string{
	"id", "schedule_id", "applicant_name", "applicant_phone", "student_name", "student_phone",
	"gender", "academic_track", "school_name", "grade", "memo", "is_marketing_agree", "client_ip", "status",
	"canceled_by", "canceled_at", "created_at", "updated_at",
}

func reservationRow(id uint64, status string) *sqlmock.Rows {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(reservationCols).AddRow(
		id, 10, "Hong Gildong", "010-1234-5678", "Hong Junior", nil,
		"MALE", "UNDECIDED", "Seoul High", "2", nil, true, "127.0.0.1", status,
		nil, nil, ts, ts,
	)
}

func TestReservationRepo_CreateTx(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		mock    func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "inserts confirmed row and reloads it",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO explanation_reservations`).
					WithArgs(uint64(10), "Hong Gildong", "010-1234-5678", "Hong Junior", nil,
						nil, "UNDECIDED", "Seoul High", "2", nil, true, "127.0.0.1").
					WillReturnResult(sqlmock.NewResult(42, 1))
				mock.ExpectQuery(`SELECT .+ FROM explanation_reservations WHERE id = \?$`).
					WithArgs(uint64(42)).
					WillReturnRows(reservationRow(42, "CONFIRMED"))
			},
		},
		{
			name: "unique key violation becomes ErrDuplicate",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO explanation_reservations`).
					WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
			},
			wantErr: ErrDuplicate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			mock.ExpectBegin()
			tt.mock(mock)
			mock.ExpectRollback()

			tx, err := db.BeginTx(ctx, nil)
			require.NoError(t, err)
			res := model.Reservation{
				ScheduleID:     10,
				ApplicantName:  "Hong Gildong",
				ApplicantPhone: "010-1234-5678",
				StudentName:    "Hong Junior",
				SchoolName:     "Seoul High",
				Grade:          "2",
				MarketingAgree: true,
				ClientIP:       "127.0.0.1",
			}
			err = NewReservationRepo(db).CreateTx(ctx, tx, &res)
			require.NoError(t, tx.Rollback())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				require.Equal(t, uint64(42), res.ID)
				require.Equal(t, model.ReservationConfirmed, res.Status)
				require.NotNil(t, res.Gender)
				require.Equal(t, model.GenderMale, *res.Gender)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestReservationRepo_ExistsConfirmedTx(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM explanation_reservations\s+WHERE schedule_id = \? AND applicant_phone = \? AND status = 'CONFIRMED'`).
		WithArgs(uint64(10), "010-1234-5678").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(`SELECT 1 FROM explanation_reservations`).
		WithArgs(uint64(10), "010-0000-0000").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectCommit()

	repo := NewReservationRepo(db)
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	ok, err := repo.ExistsConfirmedTx(ctx, tx, 10, "010-1234-5678")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.ExistsConfirmedTx(ctx, tx, 10, "010-0000-0000")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepo_CancelTx(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE explanation_reservations\s+SET status = 'CANCELED'`).
		WithArgs("ADMIN", at, uint64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE explanation_reservations`).
		WithArgs("USER", at, uint64(43)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	repo := NewReservationRepo(db)
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, repo.CancelTx(ctx, tx, 42, model.CanceledByAdmin, at))
	require.ErrorIs(t, repo.CancelTx(ctx, tx, 43, model.CanceledByUser, at), ErrNoChange)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}
