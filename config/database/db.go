package database

import (
	"database/sql"
	"fmt"
	"time"

	"editpdf/config"
	"editpdf/pkg/logger"

	_ "github.com/lib/pq"
)

const (
	pingAttempts = 5
	pingBackoff  = 2 * time.Second
)

// Connect opens the feedback database and waits for it to answer a ping.
func Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for i := 0; i < pingAttempts; i++ {
		if err = db.Ping(); err == nil {
			logger.Sugar.Infof("Connected to database %s on %s", cfg.Name, cfg.Host)
			return db, nil
		}
		logger.Sugar.Infof("Database connection failed, retrying in %s... (%v)", pingBackoff, err)
		time.Sleep(pingBackoff)
	}
	db.Close()
	return nil, fmt.Errorf("database unreachable after %d attempts: %w", pingAttempts, err)
}
