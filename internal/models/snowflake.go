package models

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Snowflake is a Discord object identifier. It is persisted as a JSON number
// so the state document stays compatible with earlier deployments, and is
// converted to and from the decimal strings the Discord API uses.
type Snowflake int64

// ParseSnowflake parses a decimal Discord identifier. An empty string parses to zero.
func ParseSnowflake(id string) (Snowflake, error) {
	if id == "" {
		return 0, nil
	}
	parsed, err := snowflake.ParseString(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSnowflake, id)
	}
	return Snowflake(parsed.Int64()), nil
}

// MustSnowflake is ParseSnowflake for identifiers known to be well formed.
func MustSnowflake(id string) Snowflake {
	s, err := ParseSnowflake(id)
	if err != nil {
		panic(err)
	}
	return s
}

// String returns the decimal form used by the Discord API, or "" for zero.
func (s Snowflake) String() string {
	if s == 0 {
		return ""
	}
	return snowflake.ParseInt64(int64(s)).String()
}

// IsZero reports whether the identifier is unset.
func (s Snowflake) IsZero() bool {
	return s == 0
}
