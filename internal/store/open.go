package store

import "fmt"

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open builds the Store selected by driver. dsn is a file path for sqlite
// and a connection string for postgres; memory ignores it.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewInMemoryStore(), nil
	case DriverSQLite:
		if dsn == "" {
			dsn = "data/relay.db"
		}
		return OpenSQLite(dsn)
	case DriverPostgres:
		return OpenPostgres(dsn)
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}
