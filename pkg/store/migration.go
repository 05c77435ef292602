package store

import (
	"database/sql"
	"io/fs"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

// Migrate runs the goose migrations in fsys against the store described
// by config. Both replica stores run the same migration set.
func Migrate(config Config, fsys fs.FS, dir string) error {
	dialect := "sqlite3"
	driver := "sqlite3"
	if config.Driver == DriverPostgres {
		dialect = "postgres"
		driver = "postgres"
	}

	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	goose.SetBaseFS(fsys)

	db, err := sql.Open(driver, config.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	return goose.Up(db, dir)
}
