package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"kelpie/internal/market"
	"kelpie/internal/portfolio"
)

// Input 汇集一次回测的可视化素材。Trades 用账本的已平仓历史。
type Input struct {
	Symbol   string
	Title    string
	Subtitle string
	Candles  []market.Candle
	Curve    []portfolio.EquitySnapshot
	Trades   []*portfolio.Position
}

type ImageResult struct {
	Bytes    []byte `json:"-"`
	Base64   string `json:"base64"`
	Filename string `json:"filename"`
}

func (r *ImageResult) DataURI() string {
	if r == nil {
		return ""
	}
	if r.Base64 == "" && len(r.Bytes) > 0 {
		r.Base64 = base64.StdEncoding.EncodeToString(r.Bytes)
	}
	if r.Base64 == "" {
		return ""
	}
	return "data:image/png;base64," + r.Base64
}

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorEquity        = "#3b82f6"
	colorCash          = "#fbbf24"

	chartWidthPx   = 1600
	klineHeightPx  = 600
	equityHeightPx = 360
)

// BuildHTML 生成资金曲线 + K 线标记成交的组合页面。
func BuildHTML(input Input) ([]byte, error) {
	if input.Symbol == "" {
		return nil, fmt.Errorf("symbol required for report")
	}
	if len(input.Curve) == 0 {
		return nil, fmt.Errorf("equity curve is empty for %s", input.Symbol)
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	page.AddCharts(buildEquityChart(input))
	if len(input.Candles) > 0 {
		page.AddCharts(buildKlineChart(input))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderPNG 把报表页面交给 headless Chrome 截图。
func RenderPNG(ctx context.Context, input Input) (ImageResult, error) {
	if err := EnsureHeadlessAvailable(ctx); err != nil {
		return ImageResult{}, err
	}
	html, err := BuildHTML(input)
	if err != nil {
		return ImageResult{}, err
	}
	height := equityHeightPx + 120
	if len(input.Candles) > 0 {
		height += klineHeightPx
	}
	png, err := renderHTMLToPNG(ctx, html, chartWidthPx, height)
	if err != nil {
		return ImageResult{}, err
	}
	return ImageResult{
		Bytes:    png,
		Base64:   base64.StdEncoding.EncodeToString(png),
		Filename: fmt.Sprintf("%s_report.png", strings.ToLower(input.Symbol)),
	}, nil
}

var (
	headlessOnce sync.Once
	headlessErr  error
)

func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		if cancel != nil {
			defer cancel()
		}
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

func buildEquityChart(input Input) *charts.Line {
	line := charts.NewLine()
	title := input.Title
	if title == "" {
		title = fmt.Sprintf("%s 资金曲线", strings.ToUpper(input.Symbol))
	}
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", equityHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         title,
			Subtitle:      input.Subtitle,
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
	)
	x := make([]string, len(input.Curve))
	equity := make([]opts.LineData, len(input.Curve))
	cash := make([]opts.LineData, len(input.Curve))
	for i, snap := range input.Curve {
		x[i] = snap.Time.UTC().Format("01-02 15:04")
		equity[i] = opts.LineData{Value: round(snap.Equity, 2)}
		cash[i] = opts.LineData{Value: round(snap.Cash, 2)}
	}
	line.SetXAxis(x)
	line.AddSeries("Equity", equity, charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}))
	line.AddSeries("Cash", cash, charts.WithLineStyleOpts(opts.LineStyle{Color: colorCash, Width: 1}))
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}

func buildKlineChart(input Input) *charts.Kline {
	candles := input.Candles
	minPrice, maxPrice := priceBounds(candles)
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxPrice)*0.01)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", klineHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      fmt.Sprintf("%s 成交回放", strings.ToUpper(input.Symbol)),
			Left:       "left",
			Top:        "10",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minPrice-padding, 4),
			Max:       round(maxPrice+padding, 4),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	x := make([]string, len(candles))
	data := make([]opts.KlineData, len(candles))
	for i, c := range candles {
		x[i] = time.UnixMilli(c.CloseTime).UTC().Format("01-02 15:04")
		data[i] = opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}}
	}
	kline.SetXAxis(x)
	kline.AddSeries("Price", data)

	if markers := buildTradeMarkers(candles, input.Trades); markers != nil {
		markers.SetXAxis(x)
		kline.Overlap(markers)
	}
	return kline
}

// buildTradeMarkers 把每笔平仓的开/平时刻映射到 K 线横轴上。
func buildTradeMarkers(candles []market.Candle, trades []*portfolio.Position) *charts.Scatter {
	if len(trades) == 0 {
		return nil
	}
	index := make(map[int64]int, len(candles))
	for i, c := range candles {
		index[c.CloseTime] = i
	}
	entries := make([]opts.ScatterData, len(candles))
	exits := make([]opts.ScatterData, len(candles))
	found := false
	for _, tr := range trades {
		if i, ok := nearestBar(index, candles, tr.OpenTime.UnixMilli()); ok {
			entries[i] = opts.ScatterData{Value: round(tr.AvgPrice, 4), Symbol: "triangle", SymbolSize: 12}
			found = true
		}
		if i, ok := nearestBar(index, candles, tr.CloseTime.UnixMilli()); ok {
			exits[i] = opts.ScatterData{Value: round(tr.ClosePrice, 4), Symbol: "diamond", SymbolSize: 12}
			found = true
		}
	}
	if !found {
		return nil
	}
	scatter := charts.NewScatter()
	scatter.AddSeries("Entry", entries, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBull}))
	scatter.AddSeries("Exit", exits, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBear}))
	return scatter
}

func nearestBar(index map[int64]int, candles []market.Candle, ts int64) (int, bool) {
	if i, ok := index[ts]; ok {
		return i, true
	}
	for i, c := range candles {
		if c.OpenTime <= ts && ts <= c.CloseTime {
			return i, true
		}
	}
	return 0, false
}

func priceBounds(candles []market.Candle) (minVal, maxVal float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	minVal = candles[0].Low
	maxVal = candles[0].High
	for _, c := range candles {
		if c.Low < minVal {
			minVal = c.Low
		}
		if c.High > maxVal {
			maxVal = c.High
		}
	}
	return minVal, maxVal
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
