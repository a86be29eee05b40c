package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoerceRunRequestTolerantTypes(t *testing.T) {
	// 数字字段用字符串、整数字段用浮点，一律宽松转换。
	body := `{
		"symbol": "BTCUSDT",
		"timeframe": "1h",
		"start_ts": "1700000000000",
		"end_ts": 1700086400000.0,
		"strategy_id": "sma_cross",
		"initial_cash": "50000",
		"lever": 3,
		"deal_mode": "next_bar_open",
		"params": {"fast": 5, "slow": 20.0, "label": "a"}
	}`
	req, err := coerceRunRequest([]byte(body))
	assert.NoError(t, err)
	assert.Equal(t, "BTCUSDT", req.Symbol)
	assert.Equal(t, int64(1_700_000_000_000), req.StartTS)
	assert.Equal(t, int64(1_700_086_400_000), req.EndTS)
	assert.Equal(t, 50_000.0, req.InitialCash)
	assert.Equal(t, 3.0, req.Lever)
	assert.Equal(t, "sma_cross", req.StrategyID)
	assert.Equal(t, float64(5), req.Params["fast"])
	assert.Equal(t, float64(20), req.Params["slow"])
	assert.Equal(t, "a", req.Params["label"])
}

func TestCoerceRunRequestRejectsBadBodies(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"空请求体", "   "},
		{"非法 json", `{"symbol":`},
		{"根节点非对象", `[1,2,3]`},
		{"params 非对象", `{"symbol":"BTCUSDT","params":[1]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := coerceRunRequest([]byte(tc.body))
			assert.Error(t, err)
		})
	}
}

func TestCoerceRunRequestOmitsMissingFields(t *testing.T) {
	req, err := coerceRunRequest([]byte(`{"symbol":"ETHUSDT"}`))
	assert.NoError(t, err)
	assert.Equal(t, "ETHUSDT", req.Symbol)
	assert.Zero(t, req.StartTS)
	assert.Zero(t, req.InitialCash)
	assert.Nil(t, req.Params)
}
