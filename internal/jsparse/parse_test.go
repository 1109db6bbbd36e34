package jsparse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, path, src string) *File {
	t.Helper()
	f, err := Parse(context.Background(), path, []byte(src))
	require.NoError(t, err)
	return f
}

func TestParse_Barrel(t *testing.T) {
	src := `/* This bundle contains all functionality that is needed for admins */
export * from "../course-import";
export * from "../schedule";
export { VideoSectionsAdmin, VideoSectionUpdater as Updater } from "../video-sections";
`
	f := parse(t, "admins.ts", src)

	assert.Equal(t, "This bundle contains all functionality that is needed for admins", f.LeadingComment)
	assert.Zero(t, f.SyntaxErrorLine)
	require.Len(t, f.Statements, 3)

	assert.Equal(t, KindExportStar, f.Statements[0].Kind)
	assert.Equal(t, "../course-import", f.Statements[0].Source)
	assert.Equal(t, 2, f.Statements[0].Line)

	named := f.Statements[2]
	assert.Equal(t, KindExportFrom, named.Kind)
	assert.Equal(t, "../video-sections", named.Source)
	assert.Equal(t, []Specifier{
		{Local: "VideoSectionsAdmin", Exported: "VideoSectionsAdmin"},
		{Local: "VideoSectionUpdater", Exported: "Updater"},
	}, named.Specifiers)

	assert.Equal(t, []string{"../course-import", "../schedule"}, f.StarSources())
	assert.Equal(t, []string{"VideoSectionsAdmin", "Updater"}, f.Exports())
}

func TestParse_ModuleExports(t *testing.T) {
	src := `import { api } from "./api";

export const loadStats = () => api.get("/stats");
export let a = 1, b = 2;
export function renderChart() {}
export class StatsView {}
export interface StatsOptions { days: number }
export type Range = [number, number];
export enum Mode { Live, Vod }
const hidden = 1;
export { hidden as visible };
export default StatsView;
`
	f := parse(t, "stats/index.ts", src)

	assert.Equal(t, []string{
		"loadStats", "a", "b", "renderChart", "StatsView",
		"StatsOptions", "Range", "Mode", "visible", "default",
	}, f.Exports())
	assert.Empty(t, f.StarSources())
	assert.Equal(t, KindImport, f.Statements[0].Kind)
	assert.Equal(t, "./api", f.Statements[0].Source)
}

func TestParse_ImportForwarding(t *testing.T) {
	src := `import Chart, { render as draw, theme } from "./charts";
import * as fmt from "./format";
import "./polyfills";
import { unused } from "./unused";
export { draw, Chart as DefaultChart };
export { formatDate } from "../shared";
export { theme as palette } from "./charts";
`
	f := parse(t, "index.ts", src)

	imp := f.Statements[0]
	assert.Equal(t, KindImport, imp.Kind)
	assert.Equal(t, []Specifier{
		{Local: "default", Exported: "Chart"},
		{Local: "render", Exported: "draw"},
		{Local: "theme", Exported: "theme"},
	}, imp.Specifiers)
	assert.Empty(t, f.Statements[1].Specifiers, "namespace imports bind the whole module")
	assert.Empty(t, f.Statements[2].Specifiers)

	src2, name, ok := f.ImportOf("draw")
	require.True(t, ok)
	assert.Equal(t, "./charts", src2)
	assert.Equal(t, "render", name)

	_, _, ok = f.ImportOf("fmt")
	assert.False(t, ok)

	assert.Equal(t, []string{"./charts", "../shared"}, f.ForwardedSources())
	assert.Equal(t, []string{"draw", "DefaultChart", "formatDate", "palette"}, f.Exports())
}

func TestParse_NamespaceExport(t *testing.T) {
	f := parse(t, "index.js", `export * as charts from "./charts";`)
	require.Len(t, f.Statements, 1)
	assert.Equal(t, KindExportNamespace, f.Statements[0].Kind)
	assert.Equal(t, []string{"charts"}, f.Exports())
	assert.Empty(t, f.StarSources())
}

func TestParse_DestructuredExport(t *testing.T) {
	f := parse(t, "config.js", `export const { host, port: listenPort } = settings;`)
	assert.Equal(t, []string{"host", "listenPort"}, f.Exports())
}

func TestParse_OtherStatements(t *testing.T) {
	f := parse(t, "side-effect.ts", `window.registerAdmin = true;`)
	require.Len(t, f.Statements, 1)
	assert.Equal(t, KindOther, f.Statements[0].Kind)
}

func TestParse_SyntaxError(t *testing.T) {
	f := parse(t, "broken.ts", "export * from \"./a\";\nexport { from\n")
	assert.Positive(t, f.SyntaxErrorLine)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.ts"))
	assert.True(t, Supported("a.TSX"))
	assert.True(t, Supported("a.mjs"))
	assert.False(t, Supported("a.css"))
	assert.False(t, Supported("a.yaml"))
}
