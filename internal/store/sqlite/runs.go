package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"signup_engine/internal/model"
)

// RunRecord 是 runs 表的一行，FinishedAt 为零值表示还没收尾。
type RunRecord struct {
	ID         string
	InviteLink string
	Total      int
	Successful int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// BeginRun 在启动时落一行，返回本次运行 ID。
func (s *Store) BeginRun(ctx context.Context, inviteLink string, total int) (string, error) {
	if total <= 0 {
		return "", errors.New("total must be positive")
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, invite_link, total, started_at)
		VALUES (?, ?, ?, ?)
	`, id, inviteLink, total, time.Now().UnixMilli())
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishRun 用最终汇总回填成功/失败数。
func (s *Store) FinishRun(ctx context.Context, runID string, successful, failed int) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET successful = ?, failed = ?, finished_at = ?
		WHERE id = ?
	`, successful, failed, time.Now().UnixMilli(), runID)
	return err
}

// InsertResult 每个账号出终态就立即写入，进程中途被杀也不丢已完成的记录。
func (s *Store) InsertResult(ctx context.Context, runID string, r model.AccountResult) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	success := 0
	if r.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_results (id, run_id, account_index, attempt, success, email, password, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), runID, r.AccountIndex, r.Attempt, success, r.Email, r.Password, r.Error, r.Duration.Milliseconds(), time.Now().UnixMilli())
	return err
}

// CountSuccessfulAccounts 跨所有历史运行统计成功账号数。
func (s *Store) CountSuccessfulAccounts(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM account_results WHERE success = 1`).Scan(&n)
	return n, err
}

// RecentRuns 按启动时间倒序取最近 limit 次运行。
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invite_link, total, successful, failed, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var startedAt, finishedAt int64
		if err := rows.Scan(&rec.ID, &rec.InviteLink, &rec.Total, &rec.Successful, &rec.Failed, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		rec.StartedAt = time.UnixMilli(startedAt)
		if finishedAt > 0 {
			rec.FinishedAt = time.UnixMilli(finishedAt)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ResultsForRun 取一次运行的全部账号终态，按序号升序。
func (s *Store) ResultsForRun(ctx context.Context, runID string) ([]model.AccountResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_index, attempt, success, email, password, error, duration_ms
		FROM account_results WHERE run_id = ? ORDER BY account_index ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AccountResult
	for rows.Next() {
		var r model.AccountResult
		var success int
		var durationMs int64
		if err := rows.Scan(&r.AccountIndex, &r.Attempt, &success, &r.Email, &r.Password, &r.Error, &durationMs); err != nil {
			return nil, err
		}
		r.Success = success == 1
		r.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}
