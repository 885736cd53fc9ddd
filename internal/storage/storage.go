// Package storage 是基于 SQLite 的只追加账本：K线、模拟成交、资产快照和衍生品快照。
package storage

import (
	"binance-signal-bots-go/internal/models"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // 纯 Go 的 sqlite 驱动
)

// Store 封装账本数据库连接
type Store struct {
	db *sql.DB
}

// InitDB 打开数据库并创建所需的表
func InitDB(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite 单写者；:memory: 每个连接是独立数据库
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err = createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS prices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			open REAL, high REAL, low REAL, close REAL, volume REAL,
			UNIQUE(ts, symbol)
		);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trade_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			bot_name TEXT NOT NULL,
			symbol TEXT NOT NULL,
			action TEXT NOT NULL,
			target_position REAL DEFAULT 0,
			prev_position REAL DEFAULT 0,
			price REAL NOT NULL,
			effective_price REAL NOT NULL,
			quantity REAL NOT NULL,
			balance REAL NOT NULL,
			position REAL NOT NULL,
			profit_loss REAL DEFAULT 0,
			confidence REAL DEFAULT 0,
			note TEXT DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_bot ON trades(bot_name, symbol, id);`,
		`CREATE TABLE IF NOT EXISTS balances (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			bot_name TEXT NOT NULL,
			balance REAL NOT NULL,
			total_position_value REAL DEFAULT 0,
			total_asset REAL NOT NULL,
			daily_pnl REAL DEFAULT 0,
			total_pnl REAL DEFAULT 0,
			trade_count INTEGER DEFAULT 0,
			is_active INTEGER DEFAULT 1
		);`,
		`CREATE INDEX IF NOT EXISTS idx_balances_bot ON balances(bot_name, ts);`,
		`CREATE TABLE IF NOT EXISTS derivatives (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			funding_rate REAL,
			open_interest REAL,
			UNIQUE(ts, symbol)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// InsertBars 批量写入K线，(时间戳, 交易对) 重复的行被忽略。返回新写入的行数。
func (s *Store) InsertBars(bars []models.PriceBar) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO prices (ts, symbol, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare price insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, b := range bars {
		res, err := stmt.Exec(toMillis(b.Timestamp), b.Symbol, b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return 0, fmt.Errorf("failed to insert bar %s@%s: %w", b.Symbol, b.Timestamp, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// RecentBars 返回最近 limit 根K线，按时间升序
func (s *Store) RecentBars(symbol string, limit int) ([]models.PriceBar, error) {
	rows, err := s.db.Query(`
	SELECT ts, symbol, open, high, low, close, volume FROM (
		SELECT * FROM prices WHERE symbol = ? ORDER BY ts DESC LIMIT ?
	) ORDER BY ts ASC`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var bars []models.PriceBar
	for rows.Next() {
		var b models.PriceBar
		var ts int64
		if err := rows.Scan(&ts, &b.Symbol, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		b.Timestamp = fromMillis(ts)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// LatestBar 返回最新一根K线，没有数据时返回 (nil, nil)
func (s *Store) LatestBar(symbol string) (*models.PriceBar, error) {
	bars, err := s.RecentBars(symbol, 1)
	if err != nil || len(bars) == 0 {
		return nil, err
	}
	return &bars[0], nil
}

// SaveTrade 追加一笔成交，并回填自增 ID
func (s *Store) SaveTrade(t *models.TradeRecord) error {
	res, err := s.db.Exec(`
	INSERT INTO trades (trade_id, ts, bot_name, symbol, action, target_position, prev_position,
		price, effective_price, quantity, balance, position, profit_loss, confidence, note)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, toMillis(t.Timestamp), t.BotName, t.Symbol, string(t.Action), t.TargetPosition, t.PrevPosition,
		t.Price, t.EffectivePrice, t.Quantity, t.BalanceAfter, t.PositionAfter, t.ProfitLoss, t.Confidence, t.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade for %s: %w", t.BotName, err)
	}
	t.ID, _ = res.LastInsertId()
	return nil
}

const tradeColumns = `id, trade_id, ts, bot_name, symbol, action, target_position, prev_position,
	price, effective_price, quantity, balance, position, profit_loss, confidence, note`

func scanTrades(rows *sql.Rows) ([]models.TradeRecord, error) {
	defer rows.Close()
	var trades []models.TradeRecord
	for rows.Next() {
		var t models.TradeRecord
		var ts int64
		var action string
		if err := rows.Scan(&t.ID, &t.TradeID, &ts, &t.BotName, &t.Symbol, &action, &t.TargetPosition, &t.PrevPosition,
			&t.Price, &t.EffectivePrice, &t.Quantity, &t.BalanceAfter, &t.PositionAfter, &t.ProfitLoss, &t.Confidence, &t.Note); err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		t.Timestamp = fromMillis(ts)
		t.Action = models.Action(action)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// LatestPositions 每个交易对最新一笔成交后的持仓数量
func (s *Store) LatestPositions(botName string) (map[string]float64, error) {
	rows, err := s.db.Query(`
	SELECT symbol, position FROM trades
	WHERE bot_name = ? AND id IN (SELECT MAX(id) FROM trades WHERE bot_name = ? GROUP BY symbol)`,
		botName, botName)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := make(map[string]float64)
	for rows.Next() {
		var symbol string
		var qty float64
		if err := rows.Scan(&symbol, &qty); err != nil {
			return nil, err
		}
		positions[symbol] = qty
	}
	return positions, rows.Err()
}

// BotTrades 返回某个 bot 自 since 起的成交，since 为零值时返回全部
func (s *Store) BotTrades(botName string, since time.Time) ([]models.TradeRecord, error) {
	rows, err := s.db.Query(`SELECT `+tradeColumns+` FROM trades WHERE bot_name = ? AND ts >= ? ORDER BY ts ASC, id ASC`,
		botName, sinceMillis(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	return scanTrades(rows)
}

// TradesSince 返回所有 bot 自 since 起的成交
func (s *Store) TradesSince(since time.Time) ([]models.TradeRecord, error) {
	rows, err := s.db.Query(`SELECT `+tradeColumns+` FROM trades WHERE ts >= ? ORDER BY ts ASC, id ASC`, sinceMillis(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	return scanTrades(rows)
}

func sinceMillis(since time.Time) int64 {
	if since.IsZero() {
		return 0
	}
	return toMillis(since)
}

// CountTrades 统计 [from, to) 内的非 HOLD 成交数
func (s *Store) CountTrades(botName string, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE bot_name = ? AND ts >= ? AND ts < ? AND action != 'HOLD'`,
		botName, toMillis(from), toMillis(to)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return n, nil
}

// SaveBalanceSnapshot 追加一条资产快照
func (s *Store) SaveBalanceSnapshot(b *models.BalanceSnapshot) error {
	_, err := s.db.Exec(`
	INSERT INTO balances (ts, bot_name, balance, total_position_value, total_asset, daily_pnl, total_pnl, trade_count, is_active)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		toMillis(b.Timestamp), b.BotName, b.Balance, b.PositionValue, b.TotalAsset, b.DailyPnL, b.TotalPnL, b.TradeCount, b.IsActive)
	if err != nil {
		return fmt.Errorf("failed to insert balance snapshot for %s: %w", b.BotName, err)
	}
	return nil
}

const snapshotColumns = `ts, bot_name, balance, total_position_value, total_asset, daily_pnl, total_pnl, trade_count, is_active`

func scanSnapshot(scan func(dest ...any) error) (models.BalanceSnapshot, error) {
	var b models.BalanceSnapshot
	var ts int64
	err := scan(&ts, &b.BotName, &b.Balance, &b.PositionValue, &b.TotalAsset, &b.DailyPnL, &b.TotalPnL, &b.TradeCount, &b.IsActive)
	b.Timestamp = fromMillis(ts)
	return b, err
}

// RecentSnapshots 返回某个 bot 自 since 起的快照，按时间升序
func (s *Store) RecentSnapshots(botName string, since time.Time) ([]models.BalanceSnapshot, error) {
	rows, err := s.db.Query(`SELECT `+snapshotColumns+` FROM balances WHERE bot_name = ? AND ts >= ? ORDER BY ts ASC, id ASC`,
		botName, sinceMillis(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var out []models.BalanceSnapshot
	for rows.Next() {
		b, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// FirstSnapshotSince 返回 since 之后的第一条快照，没有时返回 (nil, nil)
func (s *Store) FirstSnapshotSince(botName string, since time.Time) (*models.BalanceSnapshot, error) {
	row := s.db.QueryRow(`SELECT `+snapshotColumns+` FROM balances WHERE bot_name = ? AND ts >= ? ORDER BY ts ASC, id ASC LIMIT 1`,
		botName, sinceMillis(since))
	b, err := scanSnapshot(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// SaveDerivative 写入衍生品快照，同一时间戳重复写入被忽略
func (s *Store) SaveDerivative(d *models.DerivativeSnapshot) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO derivatives (ts, symbol, funding_rate, open_interest) VALUES (?, ?, ?, ?)`,
		toMillis(d.Timestamp), d.Symbol, d.FundingRate, d.OpenInterest)
	if err != nil {
		return fmt.Errorf("failed to insert derivative snapshot for %s: %w", d.Symbol, err)
	}
	return nil
}

// LatestDerivative 返回最新的衍生品快照，没有时返回 (nil, nil)
func (s *Store) LatestDerivative(symbol string) (*models.DerivativeSnapshot, error) {
	var d models.DerivativeSnapshot
	var ts int64
	err := s.db.QueryRow(`SELECT ts, symbol, funding_rate, open_interest FROM derivatives WHERE symbol = ? ORDER BY ts DESC, id DESC LIMIT 1`, symbol).
		Scan(&ts, &d.Symbol, &d.FundingRate, &d.OpenInterest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query derivatives: %w", err)
	}
	d.Timestamp = fromMillis(ts)
	return &d, nil
}
