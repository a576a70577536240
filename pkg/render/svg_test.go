package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/orphanrun/pkg/core"
	"github.com/username/orphanrun/pkg/layout"
)

func sampleRun() core.Run {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return core.Run{
		StartHeight: 100,
		EndHeight:   102,
		OrphanBlocks: []core.BlockRecord{
			{Height: 100, Hash: "0xaaaa000011112222", IsOrphan: true, Timestamp: ts},
			{Height: 101, Hash: "0xbbbb000011112222", IsOrphan: true, Timestamp: ts},
			{Height: 102, Hash: "0xcccc000011112222", IsOrphan: true, Timestamp: ts},
		},
		MainchainWindow: []core.BlockRecord{
			{Height: 99, Hash: "0x9999000011112222", Timestamp: ts},
			{Height: 100, Hash: "0x1000000011112222", IsQubic: true, Timestamp: ts},
			{Height: 101, Hash: "0x1010000011112222", IsQubic: true, Timestamp: ts},
			{Height: 102, Hash: "0x1020000011112222", IsQubic: true, Timestamp: ts},
			{Height: 103, Hash: "0x1030000011112222", Timestamp: ts},
		},
	}
}

func TestSVG(t *testing.T) {
	l := layout.New(sampleRun(), layout.DefaultConfig())

	var buf bytes.Buffer
	require.NoError(t, SVG(&buf, l))
	out := buf.String()

	assert.Contains(t, out, `width="833" height="147"`)
	assert.Contains(t, out, "100~102")
	assert.Contains(t, out, "2024-05-01")
	assert.Contains(t, out, `d="M195 43 L325 43 L455 43 L585 43 L715 43"`)
	assert.Contains(t, out, `d="M195 61 L195 109 L265 109"`)
	assert.Contains(t, out, `points="787,37 802,43 787,49"`)
	assert.Contains(t, out, `href="https://blocks.p2pool.observer/block/0xbbbb000011112222"`)
	assert.Contains(t, out, `x="260" y="25" width="390" height="120"`)
	assert.Contains(t, out, "Orphan · h=101")
	assert.Contains(t, out, ">0xbbbb0000<")
	assert.Contains(t, out, `fill="#ffd166"`)
	assert.Equal(t, 8, bytes.Count(buf.Bytes(), []byte("<rect x=")) - 1, "one rect per cell besides the band")
}

func TestSVG_EscapesHash(t *testing.T) {
	run := core.Run{
		StartHeight:  5,
		EndHeight:    6,
		OrphanBlocks: []core.BlockRecord{{Height: 5, Hash: "<script>", IsOrphan: true}, {Height: 6, IsOrphan: true}},
	}
	var buf bytes.Buffer
	require.NoError(t, SVG(&buf, layout.New(run, layout.DefaultConfig())))
	assert.NotContains(t, buf.String(), "<script>")
}

func TestPage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Page(&buf, "Selfish mining runs", nil))
	assert.Contains(t, buf.String(), "No runs to display.")

	buf.Reset()
	ls := layout.All([]core.Run{sampleRun(), sampleRun()}, layout.DefaultConfig())
	require.NoError(t, Page(&buf, "Selfish mining runs", ls))
	out := buf.String()
	assert.Contains(t, out, "<h1>Selfish mining runs</h1>")
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("<svg ")))
	assert.NotContains(t, out, "No runs to display.")
}

func TestSVG_AnchorsOnlyLinkedCells(t *testing.T) {
	run := core.Run{
		StartHeight:  5,
		EndHeight:    6,
		OrphanBlocks: []core.BlockRecord{{Height: 5, Hash: "0xabc", IsOrphan: true}, {Height: 6, IsOrphan: true}},
	}
	var buf bytes.Buffer
	require.NoError(t, SVG(&buf, layout.New(run, layout.DefaultConfig())))
	out := buf.String()
	assert.NotContains(t, out, `href=""`)
	assert.Equal(t, 1, strings.Count(out, "<a href="))
	assert.Equal(t, 1, strings.Count(out, "</a>"))
	assert.Contains(t, out, `data-height="6"`)
}
