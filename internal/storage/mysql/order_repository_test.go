package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"DexAI-Chain/internal/bridge"
)

func sampleOrder(id, session string, createdAt int64) *bridge.OrderRecord {
	return &bridge.OrderRecord{
		ID:               id,
		SessionID:        session,
		SourceChain:      "bsc",
		DestinationChain: "sonic",
		GiveToken:        "BNB",
		TakeToken:        "USDC",
		GiveAmount:       "2000000000000000000",
		TakeAmount:       "1199000000",
		AmountUSD:        1200.5,
		Sender:           "0x1111111111111111111111111111111111111111",
		Recipient:        "0x2222222222222222222222222222222222222222",
		TxHash:           "0xabc",
		CreatedAt:        time.Unix(createdAt, 0).UTC(),
	}
}

func TestMemoryOrderRepository(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, err := NewMemoryOrderRepository(dir)
	if err != nil {
		t.Fatalf("failed to create memory repo: %v", err)
	}

	ctx := context.Background()
	for i, session := range []string{"s1", "s2", "s1"} {
		order := sampleOrder(fmt.Sprintf("o%d", i+1), session, int64(1000+i))
		if err := repo.RecordOrder(ctx, order); err != nil {
			t.Fatalf("record order failed: %v", err)
		}
	}

	latest, err := repo.ListLatest(ctx, 2)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(latest) != 2 || latest[0].ID != "o3" {
		t.Fatalf("unexpected latest orders: %+v", latest)
	}

	bySession, err := repo.ListBySession(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("list by session failed: %v", err)
	}
	if len(bySession) != 2 || bySession[0].ID != "o3" || bySession[1].ID != "o1" {
		t.Fatalf("unexpected session orders: %+v", bySession)
	}

	// 重新打开仓库应从磁盘恢复记录。
	reopened, err := NewMemoryOrderRepository(dir)
	if err != nil {
		t.Fatalf("failed to reopen memory repo: %v", err)
	}
	restored, err := reopened.ListLatest(ctx, 10)
	if err != nil {
		t.Fatalf("list after reopen failed: %v", err)
	}
	if len(restored) != 3 || restored[0].ID != "o3" {
		t.Fatalf("unexpected restored orders: %+v", restored)
	}
}

func TestSQLOrderRepositoryRecord(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, []mockOperation{
		execOp(insertOrderSQL(), mockResult{rowsAffected: 1}),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	repo := &SQLOrderRepository{db: db}
	if err := repo.RecordOrder(context.Background(), sampleOrder("o1", "s1", 1000)); err != nil {
		t.Fatalf("record order failed: %v", err)
	}
}

func TestSQLOrderRepositoryListLatest(t *testing.T) {
	t.Parallel()

	rows := mockRowsData{
		columns: orderColumns(),
		values: [][]driver.Value{
			orderRow("o2", "s2", int64(2000)),
			orderRow("o1", "s1", int64(1000)),
		},
	}
	db, drv := newMockDB(t, []mockOperation{
		queryOp(`SELECT id, session_id, source_chain, destination_chain, give_token, take_token,
        give_amount, take_amount, amount_usd, sender, recipient, tx_hash, created_at
        FROM bridge_orders ORDER BY created_at DESC LIMIT ?`, rows),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	repo := &SQLOrderRepository{db: db}
	list, err := repo.ListLatest(context.Background(), 2)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "o2" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if !list[1].CreatedAt.Equal(time.Unix(1000, 0).UTC()) {
		t.Fatalf("created_at not restored: %v", list[1].CreatedAt)
	}
}

func TestSQLOrderRepositoryListBySession(t *testing.T) {
	t.Parallel()

	rows := mockRowsData{
		columns: orderColumns(),
		values:  [][]driver.Value{orderRow("o1", "s1", int64(1000))},
	}
	db, drv := newMockDB(t, []mockOperation{
		queryOp(`SELECT id, session_id, source_chain, destination_chain, give_token, take_token,
        give_amount, take_amount, amount_usd, sender, recipient, tx_hash, created_at
        FROM bridge_orders WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`, rows),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	repo := &SQLOrderRepository{db: db}
	list, err := repo.ListBySession(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("list by session failed: %v", err)
	}
	if len(list) != 1 || list[0].SessionID != "s1" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestSQLOrderRepositoryRunMigrations(t *testing.T) {
	t.Parallel()

	ops := []mockOperation{
		execOp(`CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        applied_at BIGINT NOT NULL
)`, mockResult{}),
		queryOp(`SELECT version FROM schema_migrations`, mockRowsData{columns: []string{"version"}}),
		beginOp(),
		execOp(readMigrationStatement(), mockResult{}),
		execOp(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, mockResult{rowsAffected: 1}),
		commitOp(),
	}
	db, drv := newMockDB(t, ops)
	defer drv.assertConsumed(t)
	defer db.Close()

	if err := runMigrations(context.Background(), db); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}

func insertOrderSQL() string {
	return `INSERT INTO bridge_orders
        (id, session_id, source_chain, destination_chain, give_token, take_token,
         give_amount, take_amount, amount_usd, sender, recipient, tx_hash, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
}

func orderColumns() []string {
	return []string{"id", "session_id", "source_chain", "destination_chain", "give_token",
		"take_token", "give_amount", "take_amount", "amount_usd", "sender", "recipient",
		"tx_hash", "created_at"}
}

func orderRow(id, session string, createdAt int64) []driver.Value {
	return []driver.Value{id, session, "bsc", "sonic", "BNB", "USDC",
		"2000000000000000000", "1199000000", float64(1200.5),
		"0x1111111111111111111111111111111111111111",
		"0x2222222222222222222222222222222222222222", "0xabc", createdAt}
}

func readMigrationStatement() string {
	content, err := embeddedMigrations.ReadFile("0001_create_bridge_orders.sql")
	if err != nil {
		panic(fmt.Sprintf("failed to read migration: %v", err))
	}
	statements := splitSQLStatements(string(content))
	if len(statements) == 0 {
		panic("no statements in migration")
	}
	return statements[0]
}

type operationType int

const (
	opExec operationType = iota
	opQuery
	opBegin
	opCommit
	opRollback
)

type mockOperation struct {
	typ    operationType
	query  string
	result mockResult
	rows   mockRowsData
	err    error
}

type mockResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r mockResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r mockResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type mockRowsData struct {
	columns []string
	values  [][]driver.Value
}

type queueDriver struct {
	ops []mockOperation
	idx int32
}

var driverSeq atomic.Int32

func newMockDB(t *testing.T, ops []mockOperation) (*sql.DB, *queueDriver) {
	t.Helper()

	drv := &queueDriver{ops: ops}
	name := fmt.Sprintf("mock-mysql-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open mock db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, drv
}

func execOp(query string, result mockResult) mockOperation {
	return mockOperation{typ: opExec, query: query, result: result}
}

func queryOp(query string, rows mockRowsData) mockOperation {
	return mockOperation{typ: opQuery, query: query, rows: rows}
}

func beginOp() mockOperation { return mockOperation{typ: opBegin} }

func commitOp() mockOperation { return mockOperation{typ: opCommit} }

func (d *queueDriver) assertConsumed(t *testing.T) {
	t.Helper()

	if int(atomic.LoadInt32(&d.idx)) != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", atomic.LoadInt32(&d.idx), len(d.ops))
	}
}

func (d *queueDriver) Open(name string) (driver.Conn, error) {
	return &mockConn{driver: d}, nil
}

type mockConn struct {
	driver *queueDriver
}

func (c *mockConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *mockConn) Close() error { return nil }

func (c *mockConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *mockConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	op, err := c.next(opBegin, "")
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockTx{driver: c.driver}, nil
}

func (c *mockConn) Exec(query string, args []driver.Value) (driver.Result, error) {
	return c.ExecContext(context.Background(), query, named(args))
}

func (c *mockConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	op, err := c.next(opExec, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return op.result, nil
}

func (c *mockConn) Query(query string, args []driver.Value) (driver.Rows, error) {
	return c.QueryContext(context.Background(), query, named(args))
}

func (c *mockConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	op, err := c.next(opQuery, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockRows{columns: op.rows.columns, values: op.rows.values}, nil
}

func (c *mockConn) Ping(ctx context.Context) error { return nil }

func (c *mockConn) next(expected operationType, query string) (*mockOperation, error) {
	idx := int(atomic.LoadInt32(&c.driver.idx))
	if idx >= len(c.driver.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &c.driver.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", expected, op.typ)
	}
	atomic.AddInt32(&c.driver.idx, 1)
	if op.query != "" {
		expectedSQL := normalizeSQL(op.query)
		actualSQL := normalizeSQL(query)
		if expectedSQL != actualSQL {
			return nil, fmt.Errorf("unexpected query. want %q got %q", expectedSQL, actualSQL)
		}
	}
	return op, nil
}

type mockTx struct {
	driver *queueDriver
}

func (t *mockTx) Commit() error {
	op, err := t.next(opCommit)
	if err != nil {
		return err
	}
	return op.err
}

func (t *mockTx) Rollback() error {
	op, err := t.next(opRollback)
	if err != nil {
		return err
	}
	return op.err
}

func (t *mockTx) next(expected operationType) (*mockOperation, error) {
	idx := int(atomic.LoadInt32(&t.driver.idx))
	if idx >= len(t.driver.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &t.driver.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", expected, op.typ)
	}
	atomic.AddInt32(&t.driver.idx, 1)
	return op, nil
}

type mockRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *mockRows) Columns() []string { return r.columns }
func (r *mockRows) Close() error      { return nil }

func (r *mockRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func named(args []driver.Value) []driver.NamedValue {
	namedArgs := make([]driver.NamedValue, len(args))
	for i, arg := range args {
		namedArgs[i] = driver.NamedValue{Ordinal: i + 1, Value: arg}
	}
	return namedArgs
}

func normalizeSQL(query string) string {
	fields := strings.Fields(query)
	return strings.Join(fields, " ")
}
