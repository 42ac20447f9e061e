package oracle

import "database/sql"

// sqlOpen opens a database/sql handle through go-ora's registered driver,
// used for every adapter call, including the ping Open makes.
func sqlOpen(url string) (*sql.DB, error) {
	return sql.Open("oracle", url)
}
