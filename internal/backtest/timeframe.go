package backtest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Timeframe 是回测周期：Key 是规范写法，SourceInterval 是数据源侧的写法。
type Timeframe struct {
	Key            string
	Duration       time.Duration
	SourceInterval string
}

// 单位表与各单位允许的倍数。数据源只有交易所真实提供的档位，
// 不接受任意倍数。
var (
	timeframeUnits = map[byte]time.Duration{
		'm': time.Minute,
		'h': time.Hour,
		'd': 24 * time.Hour,
		'w': 7 * 24 * time.Hour,
	}
	timeframeSteps = map[byte][]int{
		'm': {1, 5, 15, 30},
		'h': {1, 4},
		'd': {1},
		'w': {1},
	}
)

// ParseTimeframe 解析 "15m"/"4h" 这类写法并校验档位。
func ParseTimeframe(input string) (Timeframe, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	if len(key) < 2 {
		return Timeframe{}, fmt.Errorf("不支持的周期: %q", input)
	}
	unit := key[len(key)-1]
	base, ok := timeframeUnits[unit]
	if !ok {
		return Timeframe{}, fmt.Errorf("不支持的周期单位: %q", input)
	}
	n, err := strconv.Atoi(key[:len(key)-1])
	if err != nil || !allowedStep(unit, n) {
		return Timeframe{}, fmt.Errorf("不支持的周期档位: %q", input)
	}
	return Timeframe{Key: key, Duration: time.Duration(n) * base, SourceInterval: key}, nil
}

func allowedStep(unit byte, n int) bool {
	for _, s := range timeframeSteps[unit] {
		if s == n {
			return true
		}
	}
	return false
}

// SupportedTimeframes 列出全部可用档位，短周期在前。
func SupportedTimeframes() []string {
	var out []string
	for unit, steps := range timeframeSteps {
		for _, n := range steps {
			out = append(out, fmt.Sprintf("%d%c", n, unit))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := ParseTimeframe(out[i])
		b, _ := ParseTimeframe(out[j])
		return a.Duration < b.Duration
	})
	return out
}

// Step 是周期宽度（毫秒），K 线按 open_time 对齐到它的整数倍。
func (tf Timeframe) Step() int64 {
	return tf.Duration.Milliseconds()
}

// AlignRange 把毫秒时间戳对齐到周期网格并保证 start <= end。
func (tf Timeframe) AlignRange(start, end int64) (int64, int64) {
	if end < start {
		start, end = end, start
	}
	return tf.floor(start), tf.floor(end)
}

func (tf Timeframe) floor(ts int64) int64 {
	step := tf.Step()
	if step <= 0 {
		return ts
	}
	rem := ts % step
	if rem < 0 {
		rem += step
	}
	return ts - rem
}

// ExpectedCandles 是 [start, end] 闭区间上按网格应有的 K 线数。
func (tf Timeframe) ExpectedCandles(start, end int64) int64 {
	step := tf.Step()
	if step <= 0 || end < start {
		return 0
	}
	return (end-start)/step + 1
}
