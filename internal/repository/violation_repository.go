package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/seat-reservation/internal/model"
)

// ViolationRepo appends to and reads the violations ledger.
type ViolationRepo struct{ db *sql.DB }

// NewViolationRepo returns a ViolationRepo over db.
func NewViolationRepo(db *sql.DB) *ViolationRepo { return &ViolationRepo{db: db} }

// InsertViolation appends v and sets its ID.
func (r *ViolationRepo) InsertViolation(ctx context.Context, v *model.Violation) error {
	var bookingID sql.NullInt64
	if v.BookingID != nil {
		bookingID = sql.NullInt64{Int64: int64(*v.BookingID), Valid: true}
	}
	res, err := conn(ctx, r.db).ExecContext(ctx,
		"INSERT INTO violations (member_id, booking_id, create_time, type, content) VALUES (?,?,?,?,?)",
		v.MemberID, bookingID, v.CreateTime, v.Type, v.Content)
	if err != nil {
		return mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	v.ID = uint64(id)
	return nil
}

// ListViolationsByMember returns a member's violations, newest first.
func (r *ViolationRepo) ListViolationsByMember(ctx context.Context, memberID uint64) ([]model.Violation, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT id, member_id, booking_id, create_time, type, content
		 FROM violations WHERE member_id = ? ORDER BY create_time DESC, id DESC`, memberID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []model.Violation
	for rows.Next() {
		var (
			v         model.Violation
			bookingID sql.NullInt64
		)
		if err := rows.Scan(&v.ID, &v.MemberID, &bookingID, &v.CreateTime, &v.Type, &v.Content); err != nil {
			return nil, err
		}
		if bookingID.Valid {
			id := uint64(bookingID.Int64)
			v.BookingID = &id
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
