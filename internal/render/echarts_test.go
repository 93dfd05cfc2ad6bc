package render

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartengine/internal/model"
)

func payload(n int, title string) model.Payload {
	candle := model.Trace{Type: "candlestick", Name: "price"}
	vol := model.Trace{Type: "bar", Name: "volume"}
	ema := model.Trace{Type: "scatter", Mode: "lines", Name: "EMA 3"}
	rsi := model.Trace{Type: "scatter", Mode: "lines", Name: "RSI 3", YAxis: "y2"}
	for i := 0; i < n; i++ {
		c := float64(100 + i)
		candle.X = append(candle.X, "2024-01-"+string(rune('a'+i%26)))
		candle.Open = append(candle.Open, c-1)
		candle.High = append(candle.High, c+1)
		candle.Low = append(candle.Low, c-2)
		candle.Close = append(candle.Close, c)
		vol.Y = append(vol.Y, float64(1000+i))
		if i < 2 {
			ema.Y = append(ema.Y, model.Null)
			rsi.Y = append(rsi.Y, model.Null)
			continue
		}
		ema.Y = append(ema.Y, c-0.5)
		rsi.Y = append(rsi.Y, 55)
	}
	vol.X, ema.X, rsi.X = candle.X, candle.X, candle.X
	return model.Payload{
		Data:   []model.Trace{candle, vol, ema, rsi},
		Layout: map[string]any{"title": title},
	}
}

func readPlot(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestPlotter_PrepareCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots", "nested")
	p := New(dir)
	require.NoError(t, p.Prepare(context.Background()))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "probe file is removed")
}

func TestPlotter_PrepareCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, New(t.TempDir()).Prepare(ctx), context.Canceled)
}

func TestPlot_CreateUpdateDestroy(t *testing.T) {
	p := New(t.TempDir())
	require.NoError(t, p.Prepare(context.Background()))

	pl, err := p.NewPlot("chart-AAPL", payload(10, "AAPL basic"), model.PlotConfig{Title: "AAPL basic"})
	require.NoError(t, err)

	html := readPlot(t, p.Path("chart-AAPL"))
	assert.Contains(t, html, "AAPL basic")
	assert.Contains(t, html, "EMA 3")
	assert.Contains(t, html, "RSI 3")

	require.NoError(t, pl.Update(payload(10, "AAPL full"), model.PlotConfig{Title: "AAPL full", Large: true}))
	html = readPlot(t, p.Path("chart-AAPL"))
	assert.Contains(t, html, "AAPL full")

	require.NoError(t, pl.Destroy())
	_, err = os.Stat(p.Path("chart-AAPL"))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, pl.Destroy(), "destroying twice is harmless")
}

func TestBuildPage_Layout(t *testing.T) {
	page, err := buildPage("chart-AAPL", payload(10, "t"), model.PlotConfig{})
	require.NoError(t, err)
	require.Len(t, page.Charts, 3, "price, volume panel, y2 panel")

	price, ok := page.Charts[0].(*charts.Kline)
	require.True(t, ok)
	assert.Empty(t, price.DataZoomList)
	assert.Equal(t, "chart-AAPL", page.PageTitle, "no cfg title falls back to target")
}

func TestBuildPage_LargeModeAddsZoom(t *testing.T) {
	page, err := buildPage("chart-AAPL", payload(10, "t"), model.PlotConfig{Large: true})
	require.NoError(t, err)
	price := page.Charts[0].(*charts.Kline)
	assert.Len(t, price.DataZoomList, 2)
}

func TestBuildPage_LineMain(t *testing.T) {
	p := model.Payload{Data: []model.Trace{{Type: "scatter", Name: "close", Y: model.Series{1, 2, 3}}}}
	page, err := buildPage("x", p, model.PlotConfig{})
	require.NoError(t, err)
	require.Len(t, page.Charts, 1)
	_, ok := page.Charts[0].(*charts.Line)
	assert.True(t, ok)
	assert.Equal(t, "x", page.PageTitle, "target is the fallback title")
}

func TestPlot_EmptyPayload(t *testing.T) {
	p := New(t.TempDir())
	_, err := p.NewPlot("x", model.Payload{}, model.PlotConfig{})
	assert.Error(t, err)
}

func TestPath_Sanitized(t *testing.T) {
	p := New("/plots")
	assert.Equal(t, filepath.Join("/plots", "chart-BRK_B.html"), p.Path("chart-BRK.B"))
	assert.Equal(t, filepath.Join("/plots", "______etc.html"), p.Path("../../etc"))
	assert.Equal(t, filepath.Join("/plots", "_.html"), p.Path(""))
}

func TestPlot_DeclaresValidChartIdentifiers(t *testing.T) {
	p := New(t.TempDir())
	_, err := p.NewPlot("chart-BRK.B", payload(10, "BRK.B"), model.PlotConfig{})
	require.NoError(t, err)

	html := readPlot(t, p.Path("chart-BRK.B"))
	decl := regexp.MustCompile(`(?:let|var|const)\s+(goecharts_[^\s=]+)\s*=`)
	ident := regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

	matches := decl.FindAllStringSubmatch(html, -1)
	require.NotEmpty(t, matches)
	for _, m := range matches {
		assert.Regexp(t, ident, m[1])
	}
	assert.Contains(t, html, "goecharts_chart_BRK_B")
	assert.Contains(t, html, "goecharts_chart_BRK_B_y2")
}

func TestChartID(t *testing.T) {
	assert.Equal(t, "chart_AAPL", chartID("chart-AAPL"))
	assert.Equal(t, "chart_BRK_B_y2", chartID("chart-BRK.B-y2"))
	assert.Equal(t, "_", chartID(""))
}

func TestItems_NullsBecomeGaps(t *testing.T) {
	line := lineItems(model.Series{model.Null, 2})
	assert.Equal(t, missing, line[0].Value)
	assert.Equal(t, 2.0, line[1].Value)

	k := klineItems(model.Trace{
		Open:  model.Series{1, model.Null},
		High:  model.Series{3, 3},
		Low:   model.Series{0, 0},
		Close: model.Series{2, 2},
	})
	assert.Equal(t, [4]float64{1, 2, 0, 3}, k[0].Value, "open, close, low, high")
	assert.Equal(t, missing, k[1].Value)
}

func TestAxisDates_FallsBackToPositions(t *testing.T) {
	assert.Equal(t, []string{"0", "1", "2"}, axisDates(model.Trace{Y: model.Series{5, 6, 7}}))
}
