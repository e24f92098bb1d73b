package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"time"

	"github.com/gigapi/gigaview/utils/logger"
	"github.com/marcboeker/go-duckdb/v2"
)

// Pool is a bounded set of DuckDB connections sharing one database instance.
type Pool struct {
	*sql.DB
	stop chan struct{}
	log  *slog.Logger
}

// ConnectDuckDB opens a DuckDB instance at filePath ("" for in-memory) with at
// most poolSize open connections. initQueries run on every new connection.
func ConnectDuckDB(filePath string, poolSize int, initQueries []string) (*Pool, error) {
	connector, err := duckdb.NewConnector(filePath, func(execer driver.ExecerContext) error {
		for _, q := range initQueries {
			if _, err := execer.ExecContext(context.Background(), q, nil); err != nil {
				return fmt.Errorf("init query %q failed: %w", q, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}
	db := sql.OpenDB(connector)
	if poolSize > 0 {
		db.SetMaxOpenConns(poolSize)
		db.SetMaxIdleConns(poolSize)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	// Test the connection
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to DuckDB: %w", err)
	}

	p := &Pool{DB: db, stop: make(chan struct{}), log: logger.With("duckdb")}
	go p.reportStats(30 * time.Second)
	return p, nil
}

func (p *Pool) reportStats(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-t.C:
			stats := p.Stats()
			// Print when usage is high
			if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections-2 {
				p.log.Info("pool stats",
					"in_use", stats.InUse,
					"idle", stats.Idle,
					"max_open", stats.MaxOpenConnections,
					"wait_count", stats.WaitCount)
			}
		}
	}
}

func (p *Pool) Close() error {
	close(p.stop)
	return p.DB.Close()
}
