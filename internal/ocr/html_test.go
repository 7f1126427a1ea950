package ocr

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bulletinPage = `<!DOCTYPE html>
<html><head><title>全国急性呼吸道传染病哨点监测情况</title><style>.x{}</style></head>
<body>
<header><nav><a href="/">首页</a></nav></header>
<div class="TRS_Editor">
<h2>全国急性呼吸道传染病哨点监测情况（2025年第6周）</h2>
<p>2025年第6周（2月3日-2月9日），哨点医院监测结果如下。</p>
<p><strong>表1</strong> 哨点医院病原体阳性率</p>
<table>
<tr><td rowspan="2">病原体</td><td colspan="2">ILI</td></tr>
<tr><td>第6周</td><td>较上周</td></tr>
<tr><td>新型冠状病毒</td><td>2.8</td><td>-0.3</td></tr>
</table>
<script>track()</script>
</div>
<footer>版权所有</footer>
</body></html>`

func TestHTMLConverter_Convert(t *testing.T) {
	md, err := NewHTMLConverter().Convert(bulletinPage)
	require.NoError(t, err)

	assert.Contains(t, md, "全国急性呼吸道传染病哨点监测情况（2025年第6周）")
	assert.Contains(t, md, "2025年第6周（2月3日-2月9日）")
	assert.Contains(t, md, "**表1**")
	assert.Contains(t, md, `<td rowspan="2">病原体</td>`, "tables stay html")
	assert.Contains(t, md, `<td colspan="2">ILI</td>`)
	assert.NotContains(t, md, "首页")
	assert.NotContains(t, md, "版权所有")
	assert.NotContains(t, md, "track()")
	assert.NotContains(t, md, "SURVEILTABLE")
}

func TestHTMLConverter_FallsBackToBody(t *testing.T) {
	md, err := NewHTMLConverter().Convert(`<html><body><p>2024年第46周</p><table><tr><td>a</td></tr></table><table><tr><td>b</td></tr></table></body></html>`)
	require.NoError(t, err)
	assert.Contains(t, md, "2024年第46周")
	assert.Contains(t, md, "<td>a</td>")
	assert.Contains(t, md, "<td>b</td>")
}

func TestHTMLConverter_ExtractText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t20250212_1.html")
	require.NoError(t, os.WriteFile(path, []byte(bulletinPage), 0o644))

	md, err := NewHTMLConverter().ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, md, "新型冠状病毒")

	_, err = NewHTMLConverter().ExtractText(context.Background(), filepath.Join(t.TempDir(), "none.html"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ocr: read html")
}
