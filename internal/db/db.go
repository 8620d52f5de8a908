// Package db stores scan and signal history in SQLite.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/celltower/internal/monitoring"
)

type DB struct {
	*sql.DB
	path string
}

// pragmas are applied to every pooled connection.
const pragmas = "_pragma=journal_mode(WAL)" +
	"&_pragma=busy_timeout(5000)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=foreign_keys(1)"

// NewDB opens the database at path and brings its schema up to date.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", "file:"+path+"?"+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db := &DB{DB: sqlDB, path: path}

	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	version, _, err := db.MigrateVersion()
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	monitoring.Logf("Database %s ready at schema version %d", path, version)
	return db, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Cell tower DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("celltower-backup-%d.db", time.Now().UnixNano())
	backupPath := filepath.Join(os.TempDir(), name)
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		backupFile.Close()
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("Failed to remove backup file: %v", err)
		}
	}()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")

	gzipWriter := gzip.NewWriter(w)
	defer gzipWriter.Close()
	if _, err := io.Copy(gzipWriter, backupFile); err != nil {
		// headers are already out
		monitoring.Logf("Failed to write backup: %v", err)
	}
}
