package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uc-timetable-api/internal/models"
)

func newTimetableStoreMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestPostgresTimetableStoreLoadAll(t *testing.T) {
	db, mock, cleanup := newTimetableStoreMock(t)
	defer cleanup()
	store := NewPostgresTimetableStore(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM students")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow("202301", "Ana").
			AddRow("202302", "Bruno"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT uc_code, section_code, capacity FROM sections")).
		WillReturnRows(sqlmock.NewRows([]string{"uc_code", "section_code", "capacity"}).
			AddRow("L.EIC001", "1LEIC01", 30).
			AddRow("L.EIC001", "1LEIC02", 30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT uc_code, section_code, weekday, begin_time, duration, kind FROM section_slots")).
		WillReturnRows(sqlmock.NewRows([]string{"uc_code", "section_code", "weekday", "begin_time", "duration", "kind"}).
			AddRow("L.EIC001", "1LEIC01", 1, 9.5, 1.5, "TP").
			AddRow("L.EIC001", "1LEIC02", 2, 14.0, 2.0, "TP"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT student_id, uc_code, section_code FROM enrollments")).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "uc_code", "section_code"}).
			AddRow("202301", "L.EIC001", "1LEIC01").
			AddRow("202302", "L.EIC001", "1LEIC02"))

	snapshot, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot.Students, 2)
	require.Len(t, snapshot.Sections, 2)

	assert.Equal(t, models.SectionKey{UCCode: "L.EIC001", SectionCode: "1LEIC01"}, snapshot.Students[0].Enrollments["L.EIC001"])
	require.Len(t, snapshot.Sections[0].Slots, 1)
	assert.Equal(t, models.Monday, snapshot.Sections[0].Slots[0].Weekday)
	assert.Equal(t, 9.5, snapshot.Sections[0].Slots[0].Begin)
	assert.Equal(t, 30, snapshot.Sections[1].Capacity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTimetableStoreLoadAllUnknownStudent(t *testing.T) {
	db, mock, cleanup := newTimetableStoreMock(t)
	defer cleanup()
	store := NewPostgresTimetableStore(db, nil)

	mock.ExpectQuery("SELECT id, name FROM students").WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	mock.ExpectQuery("SELECT uc_code, section_code, capacity FROM sections").
		WillReturnRows(sqlmock.NewRows([]string{"uc_code", "section_code", "capacity"}))
	mock.ExpectQuery("FROM section_slots").
		WillReturnRows(sqlmock.NewRows([]string{"uc_code", "section_code", "weekday", "begin_time", "duration", "kind"}))
	mock.ExpectQuery("FROM enrollments").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "uc_code", "section_code"}).AddRow("ghost", "UC", "S1"))

	_, err := store.LoadAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown student ghost")
}

func TestPostgresTimetableStoreSaveAll(t *testing.T) {
	db, mock, cleanup := newTimetableStoreMock(t)
	defer cleanup()
	store := NewPostgresTimetableStore(db, nil)

	student := models.NewStudent("202301", "Ana")
	student.Enrollments["L.EIC001"] = models.SectionKey{UCCode: "L.EIC001", SectionCode: "1LEIC02"}
	student.Enrollments["L.EIC002"] = models.SectionKey{UCCode: "L.EIC002", SectionCode: "1LEIC05"}

	insert := regexp.QuoteMeta("INSERT INTO enrollments (student_id, uc_code, section_code) VALUES ($1, $2, $3)")
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM enrollments").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(insert).WithArgs("202301", "L.EIC001", "1LEIC02").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).WithArgs("202301", "L.EIC002", "1LEIC05").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.SaveAll(context.Background(), models.Snapshot{Students: []*models.Student{student}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTimetableStoreSaveAllRollsBack(t *testing.T) {
	db, mock, cleanup := newTimetableStoreMock(t)
	defer cleanup()
	store := NewPostgresTimetableStore(db, nil)

	student := models.NewStudent("202301", "Ana")
	student.Enrollments["L.EIC001"] = models.SectionKey{UCCode: "L.EIC001", SectionCode: "1LEIC02"}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM enrollments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO enrollments").WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	err := store.SaveAll(context.Background(), models.Snapshot{Students: []*models.Student{student}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
