package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_RedactsSensitiveKeys(t *testing.T) {
	s := New(4096, 8)

	in := map[string]any{
		"password":      "hunter2",
		"API_Key":       "sk-123",
		"github_token":  "ghp_abc",
		"authorization": map[string]any{"bearer": "xyz"},
		"publicData":    "ok",
		"count":         3,
	}
	out := s.Map(in)

	assert.Equal(t, Redacted, out["password"])
	assert.Equal(t, Redacted, out["API_Key"])
	assert.Equal(t, Redacted, out["github_token"])
	assert.Equal(t, Redacted, out["authorization"], "sensitive keys redact non-string values too")
	assert.Equal(t, "ok", out["publicData"])
	assert.Equal(t, 3, out["count"])

	// Input untouched.
	assert.Equal(t, "hunter2", in["password"])
}

func TestMap_NestedAndSlices(t *testing.T) {
	s := New(4096, 8)

	out := s.Map(map[string]any{
		"outer": map[string]any{
			"secret_key": "deep",
			"list":       []any{"a", map[string]any{"db_password": "x"}},
		},
	})

	outer := out["outer"].(map[string]any)
	assert.Equal(t, Redacted, outer["secret_key"])
	list := outer["list"].([]any)
	assert.Equal(t, "a", list[0])
	assert.Equal(t, Redacted, list[1].(map[string]any)["db_password"])
}

func TestMap_DepthLimit(t *testing.T) {
	s := New(4096, 3)

	deep := map[string]any{"l1": map[string]any{"l2": map[string]any{"l3": map[string]any{"l4": "x"}}}}
	out := s.Map(deep)

	l2 := out["l1"].(map[string]any)["l2"].(map[string]any)
	assert.Equal(t, DepthLimit, l2["l3"])
}

func TestMap_TruncatesLongStrings(t *testing.T) {
	s := New(10, 8)

	out := s.Map(map[string]any{"msg": strings.Repeat("x", 25)})
	got := out["msg"].(string)
	assert.True(t, strings.HasSuffix(got, TruncatedSuffix))
	assert.Equal(t, strings.Repeat("x", 10)+TruncatedSuffix, got)
}

func TestMap_TruncationKeepsValidUTF8(t *testing.T) {
	s := New(5, 8)

	// "é" is two bytes; a byte cut at 5 would land mid-rune.
	out := s.Map(map[string]any{"msg": strings.Repeat("é", 10)})
	got := out["msg"].(string)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", 2)+TruncatedSuffix, got)
}

func TestMap_Idempotent(t *testing.T) {
	s := New(10, 3)

	in := map[string]any{
		"password": "hunter2",
		"long":     strings.Repeat("y", 50),
		"nested":   map[string]any{"deep": map[string]any{"deeper": map[string]any{"x": 1}}},
		"ok":       "short",
	}

	once := s.Map(in)
	twice := s.Map(once)
	require.Equal(t, once, twice)
}

func TestMap_Nil(t *testing.T) {
	s := New(10, 3)
	assert.Nil(t, s.Map(nil))
}

func TestSensitiveKey(t *testing.T) {
	assert.True(t, SensitiveKey("Password"))
	assert.True(t, SensitiveKey("x-auth-header"))
	assert.True(t, SensitiveKey("AWS_SECRET_ACCESS_KEY"))
	assert.False(t, SensitiveKey("project_path"))
	assert.False(t, SensitiveKey("message"))
}
