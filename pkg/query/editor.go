// Package query edits the query string of feature-service URLs.
//
// Edits are textual: only the targeted parameter is rewritten, every other
// parameter keeps its position and escaping.
package query

import (
	"net/url"
	"strings"
)

// Tautology is the predicate used in place of an empty where clause.
const Tautology = "1=1"

// SetParameter replaces the value of every occurrence of name in rawURL with
// fn(current). Name matching is case-insensitive. If name is absent,
// name=fn("") is appended. The current value is passed unescaped and the
// replacement is escaped on the way back in.
func SetParameter(rawURL, name string, fn func(current string) string) string {
	base, fragment := rawURL, ""
	if i := strings.IndexByte(base, '#'); i >= 0 {
		base, fragment = base[:i], base[i:]
	}

	path, rawQuery, hasQuery := strings.Cut(base, "?")
	if !hasQuery || rawQuery == "" {
		sep := "?"
		if hasQuery {
			sep = ""
			path += "?"
		}
		return path + sep + encodePair(name, fn("")) + fragment
	}

	pairs := strings.Split(rawQuery, "&")
	found := false
	for i, pair := range pairs {
		key, value, _ := strings.Cut(pair, "=")
		decodedKey, err := url.QueryUnescape(key)
		if err != nil {
			decodedKey = key
		}
		if !strings.EqualFold(decodedKey, name) {
			continue
		}
		current, err := url.QueryUnescape(value)
		if err != nil {
			current = value
		}
		pairs[i] = key + "=" + url.QueryEscape(fn(current))
		found = true
	}
	if !found {
		sep := "&"
		if strings.HasSuffix(rawQuery, "&") {
			sep = ""
		}
		return path + "?" + rawQuery + sep + encodePair(name, fn("")) + fragment
	}

	return path + "?" + strings.Join(pairs, "&") + fragment
}

// Set overwrites name with a constant value.
func Set(rawURL, name, value string) string {
	return SetParameter(rawURL, name, func(string) string { return value })
}

// Get returns the unescaped value of the first occurrence of name, matched
// case-insensitively.
func Get(rawURL, name string) (string, bool) {
	base, _, _ := strings.Cut(rawURL, "#")
	_, rawQuery, ok := strings.Cut(base, "?")
	if !ok {
		return "", false
	}
	for _, pair := range strings.Split(rawQuery, "&") {
		key, value, _ := strings.Cut(pair, "=")
		decodedKey, err := url.QueryUnescape(key)
		if err != nil {
			decodedKey = key
		}
		if strings.EqualFold(decodedKey, name) {
			v, err := url.QueryUnescape(value)
			if err != nil {
				return value, true
			}
			return v, true
		}
	}
	return "", false
}

// NormalizeWhere maps a blank where clause to Tautology.
func NormalizeWhere(where string) string {
	if strings.TrimSpace(where) == "" {
		return Tautology
	}
	return where
}

// AndWhere combines an existing where clause with an additional predicate:
// (<existing>) AND <clause>.
func AndWhere(existing, clause string) string {
	return "(" + NormalizeWhere(existing) + ") AND " + clause
}

func encodePair(name, value string) string {
	return url.QueryEscape(name) + "=" + url.QueryEscape(value)
}
