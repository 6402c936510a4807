package migration

import (
	"strconv"
	"strings"
)

type dialect struct {
	name       string
	driverName string
	numbered   bool
}

var (
	dialectSQLite   = dialect{name: "sqlite", driverName: "sqlite"}
	dialectPostgres = dialect{name: "postgres", driverName: "pgx", numbered: true}
)

func dialectFor(driver string) (dialect, bool) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		return dialectSQLite, true
	case "postgres":
		return dialectPostgres, true
	default:
		return dialect{}, false
	}
}

// rebind rewrites '?' placeholders into $n for dialects that number them.
// Queries in this package never contain literal question marks.
func (d dialect) rebind(query string) string {
	if !d.numbered || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
