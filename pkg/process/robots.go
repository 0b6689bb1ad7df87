package process

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/benjaminestes/robots"
)

// RobotsCache holds parsed robots.txt files per robots URL. A nil value means
// the file could not be fetched and the host is treated as fully allowed.
type RobotsCache map[string]*robots.Robots

// CheckRobots resolves and caches the robots.txt governing url, returning nil
// when the host has none (or it could not be parsed).
func CheckRobots(url string, cache RobotsCache) *robots.Robots {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("panic in robots.txt parsing, assuming allowed", slog.String("url", url), slog.Any("panic", r))
		}
	}()

	robotsURL, err := robots.Locate(url)
	if err != nil {
		return nil
	}

	if r, ok := cache[robotsURL]; ok {
		return r
	}

	r, err := getRobots(robotsURL)
	if err != nil {
		slog.Warn("failed to fetch robots.txt", slog.String("url", robotsURL), slog.Any("err", err))
		cache[robotsURL] = nil
		return nil
	}

	cache[robotsURL] = r
	return r
}

// Allowed reports whether agent may fetch url under the cached robots rules.
func Allowed(url, agent string, cache RobotsCache) bool {
	r := CheckRobots(url, cache)
	if r == nil {
		return true
	}
	return r.Test(agent, url)
}

func getRobots(url string) (*robots.Robots, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return robots.From(resp.StatusCode, bytes.NewReader(body))
}
