package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
	"github.com/uptrace/bun"
)

type threadRow struct {
	bun.BaseModel `bun:"table:chat_threads,alias:t"`

	ID         string    `bun:"id,pk"`
	ResourceID string    `bun:"resource_id,notnull"`
	Channel    string    `bun:"channel,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

type messageRow struct {
	bun.BaseModel `bun:"table:chat_messages,alias:m"`

	ID        int64     `bun:"id,pk,autoincrement"`
	ThreadID  string    `bun:"thread_id,notnull"`
	Role      string    `bun:"role,notnull"`
	Content   string    `bun:"content,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func (r threadRow) toThread() contractx.Thread {
	return contractx.Thread{
		ID:         r.ID,
		ResourceID: r.ResourceID,
		Channel:    contractx.Channel(r.Channel),
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

// BunStore persists threads and messages through bun, on Postgres in
// production and SQLite in tests.
type BunStore struct {
	db  *bun.DB
	now func() time.Time
}

// NewBunStore creates the schema if it does not exist yet.
func NewBunStore(ctx context.Context, db *bun.DB) (*BunStore, error) {
	s := &BunStore{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *BunStore) migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*threadRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create chat_threads: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*messageRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create chat_messages: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*messageRow)(nil)).
		Index("chat_messages_thread_id_idx").
		IfNotExists().
		Column("thread_id", "id").
		Exec(ctx); err != nil {
		return fmt.Errorf("create chat_messages index: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*threadRow)(nil)).
		Index("chat_threads_resource_id_idx").
		IfNotExists().
		Column("resource_id").
		Exec(ctx); err != nil {
		return fmt.Errorf("create chat_threads index: %w", err)
	}
	return nil
}

func (s *BunStore) LoadHistory(ctx context.Context, threadID, resourceID string, limit int) ([]contractx.Message, error) {
	if resourceID != "" {
		var owner threadRow
		err := s.db.NewSelect().Model(&owner).Where("id = ?", threadID).Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return nil, fmt.Errorf("read thread=%s: %w", threadID, err)
		default:
			if err := checkOwner(threadID, owner.ResourceID, resourceID); err != nil {
				return nil, err
			}
		}
	}

	var rows []messageRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("thread_id = ?", threadID).
		OrderExpr("id DESC").
		Limit(normalizeLimit(limit)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history thread=%s: %w", threadID, err)
	}

	out := make([]contractx.Message, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = contractx.Message{
			ThreadID:  r.ThreadID,
			Role:      contractx.Role(r.Role),
			Content:   r.Content,
			CreatedAt: r.CreatedAt.UTC(),
		}
	}
	return out, nil
}

// AppendTurn creates the thread on first reference and appends msgs in a
// single transaction.
func (s *BunStore) AppendTurn(ctx context.Context, thread contractx.Thread, msgs ...contractx.Message) error {
	if err := validateAppend(thread, msgs); err != nil {
		return err
	}
	now := s.now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := threadRow{
			ID:         thread.ID,
			ResourceID: thread.ResourceID,
			Channel:    string(thread.Channel),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if _, err := tx.NewInsert().Model(&row).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("ensure thread=%s: %w", thread.ID, err)
		}

		var existing threadRow
		if err := tx.NewSelect().Model(&existing).Where("id = ?", thread.ID).Scan(ctx); err != nil {
			return fmt.Errorf("read thread=%s: %w", thread.ID, err)
		}
		if err := checkOwner(thread.ID, existing.ResourceID, thread.ResourceID); err != nil {
			return err
		}

		if len(msgs) == 0 {
			return nil
		}
		stamped := stamp(msgs, thread.ID, now)
		rows := make([]messageRow, len(stamped))
		for i, m := range stamped {
			rows[i] = messageRow{
				ThreadID:  m.ThreadID,
				Role:      string(m.Role),
				Content:   m.Content,
				CreatedAt: m.CreatedAt,
			}
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("append messages thread=%s: %w", thread.ID, err)
		}

		if _, err := tx.NewUpdate().
			Model((*threadRow)(nil)).
			Set("updated_at = ?", now).
			Where("id = ?", thread.ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("touch thread=%s: %w", thread.ID, err)
		}
		return nil
	})
}

func (s *BunStore) ListThreads(ctx context.Context, limit int) ([]contractx.Thread, error) {
	var rows []threadRow
	q := s.db.NewSelect().Model(&rows).OrderExpr("updated_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	out := make([]contractx.Thread, len(rows))
	for i, r := range rows {
		out[i] = r.toThread()
	}
	return out, nil
}
