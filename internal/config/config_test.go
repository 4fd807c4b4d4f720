package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseTokensDefaultsOnEmpty(t *testing.T) {
	tokens, err := parseTokens("")
	require.NoError(t, err)
	require.Equal(t, defaultTokens(), tokens)

	tokens, err = parseTokens("   ")
	require.NoError(t, err)
	require.Equal(t, defaultTokens(), tokens)
}

func TestParseTokens(t *testing.T) {
	raw := `[{"mint":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","symbol":"usdc","decimals":6,"stable":true}]`
	tokens, err := parseTokens(raw)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	require.Equal(t, "USDC", tokens[0].Symbol, "symbols are upper-cased")
	require.Equal(t, uint8(6), tokens[0].Decimals)
	require.True(t, tokens[0].Stable)
}

func TestParseTokensRejectsBadInput(t *testing.T) {
	_, err := parseTokens("{not json")
	require.Error(t, err)

	_, err = parseTokens(`[{"mint":"not-a-key","symbol":"X"}]`)
	require.Error(t, err)

	_, err = parseTokens(`[{"mint":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","symbol":""}]`)
	require.Error(t, err)
}

func TestParseFeedIDs(t *testing.T) {
	ids, err := parseFeedIDs("")
	require.NoError(t, err)
	require.Equal(t, defaultPriceFeedIDs(), ids)

	ids, err = parseFeedIDs(`{"btc":"ABCDEF01"}`)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"BTC": "abcdef01"}, ids)

	_, err = parseFeedIDs(`{"":"abc"}`)
	require.Error(t, err)
}

func TestNormalizeKeySegment(t *testing.T) {
	cases := map[string]string{
		"rpc-url":       "RPC_URL",
		"  pollSecs  ":  "POLLSECS",
		"db.dsn":        "DB_DSN",
		"a//b":          "A_B",
		"--leading":     "LEADING",
		"trailing--":    "TRAILING",
		"":              "",
		"___":           "",
	}
	for in, want := range cases {
		require.Equal(t, want, normalizeKeySegment(in), "input %q", in)
	}
}

func TestFlattenConfig(t *testing.T) {
	flat, err := flattenConfig(map[string]any{
		"monitor": map[string]any{
			"poll-interval": "5s",
			"db": map[string]any{
				"dsn": "postgres://localhost/perpdesk",
			},
		},
		"symbols": []any{"BTC", "ETH", ""},
		"depth":   7,
	})
	require.NoError(t, err)

	require.Equal(t, "5s", flat["MONITOR_POLL_INTERVAL"])
	require.Equal(t, "postgres://localhost/perpdesk", flat["MONITOR_DB_DSN"])
	require.Equal(t, "BTC,ETH", flat["SYMBOLS"])
	require.Equal(t, "7", flat["DEPTH"])
}

func TestFlattenConfigRejectsStructuredListItems(t *testing.T) {
	_, err := flattenConfig(map[string]any{
		"bad": []any{map[string]any{"nested": true}},
	})
	require.Error(t, err)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_DURATION_KEY", "750ms")
	d, err := envDuration("TEST_DURATION_KEY", time.Second)
	require.NoError(t, err)
	require.Equal(t, 750*time.Millisecond, d)

	d, err = envDuration("TEST_DURATION_KEY_UNSET", time.Second)
	require.NoError(t, err)
	require.Equal(t, time.Second, d)

	t.Setenv("TEST_DURATION_BAD", "-5s")
	_, err = envDuration("TEST_DURATION_BAD", time.Second)
	require.Error(t, err)

	t.Setenv("TEST_UINT_KEY", "42")
	v, err := envUint64("TEST_UINT_KEY", 7)
	require.NoError(t, err)
	require.Equal(t, uint64(42), v)

	t.Setenv("TEST_BOOL_KEY", "true")
	b, err := envBool("TEST_BOOL_KEY", false)
	require.NoError(t, err)
	require.True(t, b)

	require.Equal(t, "fallback", envOrDefault("TEST_MISSING_KEY", "fallback"))
}

func TestEnvCommitment(t *testing.T) {
	t.Setenv("TEST_COMMITMENT", "finalized")
	c, err := envCommitment("TEST_COMMITMENT", "confirmed")
	require.NoError(t, err)
	require.Equal(t, "finalized", string(c))

	t.Setenv("TEST_COMMITMENT_BAD", "eventually")
	_, err = envCommitment("TEST_COMMITMENT_BAD", "confirmed")
	require.Error(t, err)
}
