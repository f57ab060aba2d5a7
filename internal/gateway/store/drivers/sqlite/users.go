package sqlite

import (
	"context"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/internal/gateway/store"
)

type usersRepo struct {
	q dbtx
}

const userColumns = `subject_id, email, role, tier, monthly_usage, max_usage,
	billing_period, status, created_at_ms, last_active_ms, created_by, updated_by`

func scanUser(row interface{ Scan(dest ...any) error }) (domain.UserRecord, error) {
	var (
		u                       domain.UserRecord
		role, tier              string
		createdMs, lastActiveMs int64
	)
	err := row.Scan(
		&u.SubjectID, &u.Email, &role, &tier, &u.MonthlyUsage, &u.MaxUsage,
		&u.BillingPeriod, &u.Status, &createdMs, &lastActiveMs, &u.CreatedBy, &u.UpdatedBy,
	)
	if err != nil {
		return domain.UserRecord{}, err
	}
	u.Role = domain.Role(role)
	u.Tier = domain.Tier(tier)
	u.CreatedAt = fromMillis(createdMs)
	u.LastActiveAt = fromMillis(lastActiveMs)
	return u, nil
}

func (r *usersRepo) GetUserBySubject(ctx context.Context, subjectID string) (domain.UserRecord, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE subject_id = ?`, subjectID)

	u, err := scanUser(row)
	if err != nil {
		return domain.UserRecord{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.UserRecord) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.SubjectID, u.Email, string(u.Role), string(u.Tier), u.MonthlyUsage, u.MaxUsage,
		u.BillingPeriod, u.Status, toMillis(u.CreatedAt), toMillis(u.LastActiveAt),
		u.CreatedBy, u.UpdatedBy,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *usersRepo) ListUsers(ctx context.Context) ([]domain.UserRecord, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at_ms DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UserRecord
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *usersRepo) UpdateRole(ctx context.Context, subjectID string, role domain.Role, updatedBy string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_by = ? WHERE subject_id = ?`,
		string(role), updatedBy, subjectID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *usersRepo) UpdateTier(ctx context.Context, subjectID string, tier domain.Tier, maxUsage int, updatedBy string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET tier = ?, max_usage = ?, updated_by = ? WHERE subject_id = ?`,
		string(tier), maxUsage, updatedBy, subjectID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// IncrementUsage rolls the counter over when the stored billing period is
// older than the given one, then bumps it by one, all in a single statement
// so concurrent meters never lose increments.
func (r *usersRepo) IncrementUsage(ctx context.Context, subjectID, billingPeriod string) (int, error) {
	var usage int
	err := r.q.QueryRowContext(ctx,
		`UPDATE users
		 SET monthly_usage = CASE WHEN billing_period = ? THEN monthly_usage + 1 ELSE 1 END,
		     billing_period = ?
		 WHERE subject_id = ?
		 RETURNING monthly_usage`,
		billingPeriod, billingPeriod, subjectID,
	).Scan(&usage)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return usage, nil
}

func (r *usersRepo) ResetUsage(ctx context.Context, subjectID, updatedBy string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET monthly_usage = 0, updated_by = ? WHERE subject_id = ?`,
		updatedBy, subjectID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *usersRepo) TouchLastActive(ctx context.Context, subjectID string, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE users SET last_active_ms = ? WHERE subject_id = ?`,
		toMillis(at), subjectID)
	return err
}

func (r *usersRepo) DeleteUser(ctx context.Context, subjectID string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM users WHERE subject_id = ?`, subjectID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}
