package attendance

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"campusattend/internal/dbtx"
)

// PostgresRepository persists entries in Postgres.
type PostgresRepository struct {
	db dbtx.DBTX
}

func NewPostgresRepository(db dbtx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const entryColumns = `id, student_id, day, status, check_in_at, check_out_at, lat_e7, lng_e7, location_id`

func scanEntry(s interface{ Scan(...any) error }) (Entry, error) {
	var e Entry
	var checkOut sql.NullTime
	err := s.Scan(&e.ID, &e.StudentID, &e.Day, &e.Status, &e.CheckInAt, &checkOut,
		&e.Coordinates.LatE7, &e.Coordinates.LngE7, &e.LocationID)
	if checkOut.Valid {
		e.CheckOutAt = &checkOut.Time
	}
	return e, err
}

// InsertIfAbsent relies on the (student_id, day) unique key. The loser of a
// concurrent insert gets no row back and reads the winner's entry.
func (r *PostgresRepository) InsertIfAbsent(ctx context.Context, e Entry) (Entry, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, NULL, $6, $7, $8)
		ON CONFLICT (student_id, day) DO NOTHING
		RETURNING `+entryColumns,
		e.ID, e.StudentID, e.Day, e.Status, e.CheckInAt, e.Coordinates.LatE7, e.Coordinates.LngE7, e.LocationID)
	stored, err := scanEntry(row)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, errors.Wrap(err, "insert attendance entry")
	}
	existing, err := r.Get(ctx, e.StudentID, e.Day)
	if err != nil {
		return Entry{}, false, err
	}
	return existing, false, nil
}

func (r *PostgresRepository) Get(ctx context.Context, studentID string, day time.Time) (Entry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM attendance_entries
		WHERE student_id = $1 AND day = $2
	`, studentID, day))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, entryNotFound(studentID, day)
	}
	if err != nil {
		return Entry{}, errors.Wrap(err, "get attendance entry")
	}
	return e, nil
}

// SetCheckOut only touches rows still open, so concurrent check-outs keep
// the first timestamp.
func (r *PostgresRepository) SetCheckOut(ctx context.Context, studentID string, day, at time.Time) (Entry, bool, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx, `
		UPDATE attendance_entries
		SET check_out_at = $3
		WHERE student_id = $1 AND day = $2 AND check_out_at IS NULL
		RETURNING `+entryColumns,
		studentID, day, at))
	if err == nil {
		return e, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, errors.Wrap(err, "check out")
	}
	existing, err := r.Get(ctx, studentID, day)
	if err != nil {
		return Entry{}, false, err
	}
	return existing, false, nil
}

func filterWhere(f Filter) *dbtx.Where {
	w := &dbtx.Where{}
	if f.StudentID != "" {
		w.Add("student_id = ?", f.StudentID)
	}
	if f.LocationID != "" {
		w.Add("location_id = ?", f.LocationID)
	}
	if !f.From.IsZero() {
		w.Add("day >= ?", f.From)
	}
	if !f.To.IsZero() {
		w.Add("day <= ?", f.To)
	}
	return w
}

func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]Entry, error) {
	f = f.normalized()
	w := filterWhere(f)
	query := `SELECT ` + entryColumns + ` FROM attendance_entries` + w.String() +
		` ORDER BY day DESC, check_in_at DESC LIMIT ` + w.Next(f.Limit) + ` OFFSET ` + w.Next(f.Offset)

	rows, err := r.db.QueryContext(ctx, query, w.Args()...)
	if err != nil {
		return nil, errors.Wrap(err, "list attendance entries")
	}
	defer rows.Close()
	var res []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan attendance entry")
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// Summary aggregates in two grouped scans; the totals are the sum of the
// per-day rows.
func (r *PostgresRepository) Summary(ctx context.Context, f Filter) (Summary, error) {
	var sum Summary

	w := filterWhere(f)
	rows, err := r.db.QueryContext(ctx, `SELECT day, COUNT(*), COUNT(check_out_at) FROM attendance_entries`+
		w.String()+` GROUP BY day ORDER BY day DESC`, w.Args()...)
	if err != nil {
		return Summary{}, errors.Wrap(err, "summarize attendance by day")
	}
	defer rows.Close()
	for rows.Next() {
		var d DayCount
		if err := rows.Scan(&d.Day, &d.Present, &d.CheckedOut); err != nil {
			return Summary{}, errors.Wrap(err, "scan day count")
		}
		sum.Present += d.Present
		sum.CheckedOut += d.CheckedOut
		sum.ByDay = append(sum.ByDay, d)
	}
	if err := rows.Err(); err != nil {
		return Summary{}, errors.Wrap(err, "summarize attendance by day")
	}

	w = filterWhere(f)
	locRows, err := r.db.QueryContext(ctx, `SELECT location_id, COUNT(*) FROM attendance_entries`+
		w.String()+` GROUP BY location_id ORDER BY location_id`, w.Args()...)
	if err != nil {
		return Summary{}, errors.Wrap(err, "summarize attendance by location")
	}
	defer locRows.Close()
	for locRows.Next() {
		var l LocationCount
		if err := locRows.Scan(&l.LocationID, &l.Present); err != nil {
			return Summary{}, errors.Wrap(err, "scan location count")
		}
		sum.ByLocation = append(sum.ByLocation, l)
	}
	return sum, errors.Wrap(locRows.Err(), "summarize attendance by location")
}
