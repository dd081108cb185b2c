package redis

import "net/url"

func hashKeyFrom(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Query().Get("key")
}

// stripKeyParam removes our own parameter; go-redis rejects unknown ones.
func stripKeyParam(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if !q.Has("key") {
		return raw
	}
	q.Del("key")
	u.RawQuery = q.Encode()
	return u.String()
}
