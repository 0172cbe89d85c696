package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/seat-reservation/internal/model"
	"github.com/iliyamo/seat-reservation/internal/service"
)

// MemberRepo reads and writes the 'members' table.
type MemberRepo struct{ db *sql.DB }

// NewMemberRepo returns a MemberRepo over db.
func NewMemberRepo(db *sql.DB) *MemberRepo { return &MemberRepo{db: db} }

const memberColumns = "id,name,email,password_hash,role,credit,created_at"

func scanMember(row interface{ Scan(...any) error }) (model.Member, error) {
	var m model.Member
	err := row.Scan(&m.ID, &m.Name, &m.Email, &m.PasswordHash, &m.Role, &m.Credit, &m.CreatedAt)
	return m, mapError(err)
}

// CreateMember inserts a member and fills ID. Duplicate name or email
// returns service.ErrDuplicate.
func (r *MemberRepo) CreateMember(ctx context.Context, m *model.Member) error {
	m.Email = strings.ToLower(strings.TrimSpace(m.Email))
	res, err := conn(ctx, r.db).ExecContext(ctx,
		"INSERT INTO members (name, email, password_hash, role, credit) VALUES (?,?,?,?,?)",
		m.Name, m.Email, m.PasswordHash, m.Role, m.Credit)
	if err != nil {
		return mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	got, err := r.GetMember(ctx, m.ID)
	if err != nil {
		return err
	}
	m.CreatedAt = got.CreatedAt
	return nil
}

// GetMember fetches a member by id.
func (r *MemberRepo) GetMember(ctx context.Context, id uint64) (model.Member, error) {
	return scanMember(conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT "+memberColumns+" FROM members WHERE id=? LIMIT 1", id))
}

// GetMemberByName fetches a member by unique name.
func (r *MemberRepo) GetMemberByName(ctx context.Context, name string) (model.Member, error) {
	return scanMember(conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT "+memberColumns+" FROM members WHERE name=? LIMIT 1", name))
}

// GetMemberByEmail fetches a member by normalized email.
func (r *MemberRepo) GetMemberByEmail(ctx context.Context, email string) (model.Member, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanMember(conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT "+memberColumns+" FROM members WHERE email=? LIMIT 1", email))
}

// AddCredit applies delta clamped to [0,100] in one statement. The DSN
// sets clientFoundRows so an unchanged saturated row still counts.
func (r *MemberRepo) AddCredit(ctx context.Context, memberID uint64, delta int) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		"UPDATE members SET credit = LEAST(GREATEST(credit + ?, 0), 100) WHERE id = ?",
		delta, memberID)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return service.ErrNotFound
	}
	return nil
}
