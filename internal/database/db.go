package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect はカタログに使うデータベースの種類。
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Target はカタログURLを解釈した接続先。
type Target struct {
	Dialect Dialect
	DSN     string
}

// ParseCatalogURL はカタログURLを解釈する。
//
//	postgres://... / postgresql://...  PostgreSQL
//	sqlite://path/to/catalog.db          SQLite
//	path/to/catalog.db                   SQLite（スキームなし）
func ParseCatalogURL(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return Target{}, fmt.Errorf("カタログURLが空です")
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return Target{Dialect: DialectPostgres, DSN: raw}, nil
	case strings.HasPrefix(raw, "sqlite://"):
		path := strings.TrimPrefix(raw, "sqlite://")
		if path == "" {
			return Target{}, fmt.Errorf("SQLiteのファイルパスが指定されていません: %s", raw)
		}
		return Target{Dialect: DialectSQLite, DSN: path}, nil
	case strings.Contains(raw, "://"):
		return Target{}, fmt.Errorf("サポートされていないカタログURLです: %s", raw)
	default:
		return Target{Dialect: DialectSQLite, DSN: raw}, nil
	}
}

// Open はカタログのデータベース接続を開く。
// sql.Openは接続を試行しないため、実際の接続確認にはdb.Ping()を使用すること。
func Open(t Target) (*sql.DB, error) {
	db, err := sql.Open(string(t.Dialect), t.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLiteは単一ライターのため接続を1本に絞る
	if t.Dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	return db, nil
}

// Redacted はログ出力用に認証情報を伏せた接続先を返す。
func (t Target) Redacted() string {
	if t.Dialect != DialectPostgres {
		return string(t.Dialect) + "://" + t.DSN
	}
	at := strings.LastIndex(t.DSN, "@")
	scheme := strings.Index(t.DSN, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return t.DSN
	}
	return t.DSN[:scheme+3] + "***" + t.DSN[at:]
}
