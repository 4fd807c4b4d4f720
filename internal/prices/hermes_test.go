package prices

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildHermesStreamURL(t *testing.T) {
	raw, err := buildHermesStreamURL("https://hermes.pyth.network/v2/updates/price/stream", map[string]string{
		"BTC": "E62DF6C8B4A85FE1A67DB44DC12DE5DB330F7AC66B72DC658AFEDF0F4A415B43",
		"SOL": " ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d ",
	})
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "/v2/updates/price/stream", parsed.Path)

	ids := parsed.Query()["ids[]"]
	require.Len(t, ids, 2)
	require.ElementsMatch(t, []string{
		"e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
		"ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d",
	}, ids)
	require.Equal(t, "true", parsed.Query().Get("parsed"))
}

func TestBuildHermesStreamURLReplacesStaleFeedIDs(t *testing.T) {
	raw, err := buildHermesStreamURL("https://hermes.example.com/stream?ids[]=deadbeef&parsed=false", map[string]string{
		"BTC": "aa11",
	})
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, []string{"aa11"}, parsed.Query()["ids[]"])
	require.Equal(t, "false", parsed.Query().Get("parsed"))
}

func TestBuildHermesStreamURLRejectsBadEndpoint(t *testing.T) {
	_, err := buildHermesStreamURL("hermes.pyth.network/stream", map[string]string{"BTC": "aa11"})
	require.Error(t, err)

	_, err = buildHermesStreamURL("://nope", map[string]string{"BTC": "aa11"})
	require.Error(t, err)
}

func TestScaleByExpo(t *testing.T) {
	price, err := scaleByExpo("6000000000000", -8)
	require.NoError(t, err)
	require.InDelta(t, 60000.0, price, 1e-9)

	price, err = scaleByExpo("42", 0)
	require.NoError(t, err)
	require.InDelta(t, 42.0, price, 1e-9)

	price, err = scaleByExpo("3", 2)
	require.NoError(t, err)
	require.InDelta(t, 300.0, price, 1e-9)

	_, err = scaleByExpo("", -8)
	require.Error(t, err)

	_, err = scaleByExpo("not-a-number", -8)
	require.Error(t, err)
}
