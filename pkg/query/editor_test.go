package query

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetParameter(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		param    string
		fn       func(string) string
		expected string
	}{
		{
			name:     "append with question mark",
			url:      "https://example.com/layer/0/query",
			param:    "f",
			fn:       func(string) string { return "json" },
			expected: "https://example.com/layer/0/query?f=json",
		},
		{
			name:     "append with ampersand",
			url:      "https://example.com/query?token=abc",
			param:    "f",
			fn:       func(string) string { return "json" },
			expected: "https://example.com/query?token=abc&f=json",
		},
		{
			name:     "trailing question mark",
			url:      "https://example.com/query?",
			param:    "f",
			fn:       func(string) string { return "json" },
			expected: "https://example.com/query?f=json",
		},
		{
			name:     "replace keeps neighbours untouched",
			url:      "https://example.com/query?a=%2F&f=html&b=x+y",
			param:    "f",
			fn:       func(string) string { return "json" },
			expected: "https://example.com/query?a=%2F&f=json&b=x+y",
		},
		{
			name:     "case insensitive match keeps existing key",
			url:      "https://example.com/query?WHERE=STATE%3D%27CA%27",
			param:    "where",
			fn:       func(cur string) string { return AndWhere(cur, "ID >= 0") },
			expected: "https://example.com/query?WHERE=" + url.QueryEscape("(STATE='CA') AND ID >= 0"),
		},
		{
			name:     "absent value passes empty string",
			url:      "https://example.com/query",
			param:    "where",
			fn:       func(cur string) string { return AndWhere(cur, "ID < 5") },
			expected: "https://example.com/query?where=" + url.QueryEscape("(1=1) AND ID < 5"),
		},
		{
			name:     "fragment preserved",
			url:      "https://example.com/query?f=html#top",
			param:    "f",
			fn:       func(string) string { return "json" },
			expected: "https://example.com/query?f=json#top",
		},
		{
			name:     "every occurrence replaced",
			url:      "https://example.com/query?f=html&x=1&F=pjson",
			param:    "f",
			fn:       func(string) string { return "json" },
			expected: "https://example.com/query?f=json&x=1&F=json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SetParameter(tt.url, tt.param, tt.fn)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSetParameter_Idempotent(t *testing.T) {
	u := "https://example.com/query?where=a%3D1&outFields=*"
	once := Set(u, "outFields", "")
	twice := Set(once, "outFields", "")
	assert.Equal(t, once, twice)
}

func TestSetParameter_OrderIndependent(t *testing.T) {
	base := "https://example.com/query?token=abc&where=STATE%3D%27CA%27"
	where := func(cur string) string { return AndWhere(cur, "OBJECTID >= 0 AND OBJECTID < 50") }
	outFields := func(string) string { return "*" }
	format := func(string) string { return "json" }

	forward := SetParameter(SetParameter(SetParameter(base, "where", where), "outFields", outFields), "f", format)
	reverse := SetParameter(SetParameter(SetParameter(base, "f", format), "outFields", outFields), "where", where)

	fu, err := url.Parse(forward)
	require.NoError(t, err)
	ru, err := url.Parse(reverse)
	require.NoError(t, err)
	assert.Equal(t, fu.Query(), ru.Query())
	assert.Equal(t, "(STATE='CA') AND OBJECTID >= 0 AND OBJECTID < 50", fu.Query().Get("where"))
}

func TestGet(t *testing.T) {
	v, ok := Get("https://example.com/query?Where=a%3D1&f=json", "where")
	require.True(t, ok)
	assert.Equal(t, "a=1", v)

	_, ok = Get("https://example.com/query?f=json", "where")
	assert.False(t, ok)

	_, ok = Get("https://example.com/query", "f")
	assert.False(t, ok)
}

func TestNormalizeWhere(t *testing.T) {
	assert.Equal(t, Tautology, NormalizeWhere(""))
	assert.Equal(t, Tautology, NormalizeWhere("   "))
	assert.Equal(t, "POP > 10", NormalizeWhere("POP > 10"))
}
