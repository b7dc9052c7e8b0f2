package config

import "net/url"

// RedactURL replaces the password in a PostgreSQL connection URL with
// "xxxxx" so the DSN can be logged. URLs that cannot be parsed or carry
// no password are returned unchanged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}

	if _, hasPassword := u.User.Password(); !hasPassword {
		return raw
	}

	u.User = url.UserPassword(u.User.Username(), "xxxxx")

	return u.String()
}
