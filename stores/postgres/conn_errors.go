package postgres

// connErrorStrings identifies connectivity failures in pgx error
// messages, matched case-insensitively by containment. SQL errors such
// as constraint violations are deliberately absent; they must not
// trigger failover.
var connErrorStrings = []string{
	"connection refused",
	"connection timeout",
	"connection reset",
	"network is unreachable",
	"no such host",
	"i/o timeout",
	"broken pipe",
	"pool exhausted",
	"too many connections",
	"terminating connection",
	"the database system is starting up",
	"the database system is shutting down",
}
