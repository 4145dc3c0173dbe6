package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var errQueryNotRecorded = errors.New("queries are not recorded")

type execStmt struct {
	sql  string
	args []any
}

// sqlRecorder 记录 gorm 发出的写语句，查询语句一律报错
type sqlRecorder struct {
	stmts     []execStmt
	commits   int
	rollbacks int
}

type recordingConn struct{ rec *sqlRecorder }

func (c recordingConn) PrepareContext(context.Context, string) (*sql.Stmt, error) {
	return nil, errQueryNotRecorded
}

func (c recordingConn) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	c.rec.stmts = append(c.rec.stmts, execStmt{sql: query, args: args})
	return driver.RowsAffected(1), nil
}

func (c recordingConn) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errQueryNotRecorded
}

func (c recordingConn) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

type recordingPool struct{ recordingConn }

func (p recordingPool) BeginTx(context.Context, *sql.TxOptions) (gorm.ConnPool, error) {
	return &recordingTx{p.recordingConn}, nil
}

// recordingTx 必须是指针，gorm 会对事务连接做 IsNil 判断
type recordingTx struct{ recordingConn }

func (t *recordingTx) Commit() error {
	t.rec.commits++
	return nil
}

func (t *recordingTx) Rollback() error {
	t.rec.rollbacks++
	return nil
}

func newRecordingStore(t *testing.T) (*GormStore, *sqlRecorder) {
	t.Helper()
	rec := &sqlRecorder{}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: recordingPool{recordingConn{rec}}}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)
	return NewGormStore(db), rec
}

func TestGormIncrementActivityUsesAtomicExpressions(t *testing.T) {
	s, rec := newRecordingStore(t)

	err := s.Blogs().IncrementActivity(context.Background(), "blog-1", ActivityDelta{Comments: -3, ParentComments: -1})
	require.NoError(t, err)

	require.Len(t, rec.stmts, 1)
	stmt := rec.stmts[0]
	assert.Contains(t, stmt.sql, `UPDATE "blogs" SET`)
	assert.Contains(t, stmt.sql, `"activity_total_comments"=activity_total_comments + $1`)
	assert.Contains(t, stmt.sql, `"activity_total_parent_comments"=activity_total_parent_comments + $3`)
	assert.Contains(t, stmt.sql, `WHERE id = $5`)
	assert.Equal(t, []any{int64(-3), int64(0), int64(-1), int64(0), "blog-1"}, stmt.args)
}

func TestGormRemoveCommentsKeepsOrder(t *testing.T) {
	s, rec := newRecordingStore(t)

	err := s.Blogs().RemoveComments(context.Background(), "blog-1", []string{"c1", "c2"})
	require.NoError(t, err)

	require.Len(t, rec.stmts, 1)
	stmt := rec.stmts[0]
	assert.Contains(t, stmt.sql,
		`"comments"=ARRAY(SELECT c FROM unnest(comments) WITH ORDINALITY AS t(c, n) WHERE c <> ALL($1) ORDER BY n)`)
	assert.Contains(t, stmt.sql, `WHERE id = $2`)
	assert.Equal(t, []any{pq.StringArray{"c1", "c2"}, "blog-1"}, stmt.args)
}

func TestGormRemoveChild(t *testing.T) {
	s, rec := newRecordingStore(t)

	require.NoError(t, s.Comments().RemoveChild(context.Background(), "parent", "child"))

	require.Len(t, rec.stmts, 1)
	assert.Contains(t, rec.stmts[0].sql, `UPDATE "comments" SET "children"=array_remove(children, $1) WHERE id = $2`)
	assert.Equal(t, []any{"child", "parent"}, rec.stmts[0].args)
}

func TestGormDeleteNotificationsByComment(t *testing.T) {
	s, rec := newRecordingStore(t)

	require.NoError(t, s.Notifications().DeleteByComment(context.Background(), "c1"))

	require.Len(t, rec.stmts, 1)
	assert.Contains(t, rec.stmts[0].sql, `DELETE FROM "notifications" WHERE`)
	assert.Contains(t, rec.stmts[0].sql, `comment = $1 OR replied_on_comment = $2`)
	assert.Equal(t, []any{"c1", "c1"}, rec.stmts[0].args)
}

func TestGormRecountCommentsLocksThenUpdatesInOneStatement(t *testing.T) {
	s, rec := newRecordingStore(t)

	require.NoError(t, s.Blogs().RecountComments(context.Background(), "blog-1"))

	require.Len(t, rec.stmts, 2)
	assert.Equal(t, "SELECT 1 FROM blogs WHERE id = $1 FOR UPDATE", rec.stmts[0].sql)
	assert.Equal(t, []any{"blog-1"}, rec.stmts[0].args)

	update := rec.stmts[1]
	assert.Contains(t, update.sql,
		`"activity_total_comments"=(SELECT COUNT(*) FROM "comments" WHERE comments.blog_id = blogs.id)`)
	assert.Contains(t, update.sql,
		`"activity_total_parent_comments"=(SELECT COUNT(*) FROM "comments" WHERE comments.blog_id = blogs.id AND comments.is_reply = $1)`)
	assert.Contains(t, update.sql, `WHERE id = $2`)
	assert.Equal(t, []any{false, "blog-1"}, update.args)
	assert.Equal(t, 1, rec.commits)
}

func TestGormWithTxRollsBackOnError(t *testing.T) {
	s, rec := newRecordingStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, tx Store) error {
		require.NoError(t, tx.Comments().Delete(ctx, "c1"))
		require.NoError(t, tx.Notifications().DeleteByComment(ctx, "c1"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, rec.stmts, 2)
	assert.Equal(t, 0, rec.commits)
	assert.Equal(t, 1, rec.rollbacks)

	err = s.WithTx(ctx, func(ctx context.Context, tx Store) error {
		return tx.Blogs().RemoveComments(ctx, "blog-1", []string{"c1"})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.commits)
}
