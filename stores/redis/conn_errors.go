package redis

// connErrorStrings identifies connectivity failures in go-redis error
// messages, matched case-insensitively by containment. Operational
// errors such as NOSCRIPT or WRONGTYPE are deliberately absent; they
// must not trigger failover.
var connErrorStrings = []string{
	"connection refused",
	"connection timeout",
	"connection reset",
	"network is unreachable",
	"no such host",
	"timeout",
	"i/o timeout",
	"broken pipe",
	"connection pool exhausted",
}
