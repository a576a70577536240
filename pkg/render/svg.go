// Package render draws resolved layouts as SVG.
package render

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"sync"

	"github.com/username/orphanrun/pkg/layout"
)

var funcMap = template.FuncMap{
	"num": layout.FormatNumber,
	"points": func(ps []layout.Point) string {
		parts := make([]string, len(ps))
		for i, p := range ps {
			parts[i] = layout.FormatNumber(p.X) + "," + layout.FormatNumber(p.Y)
		}
		return strings.Join(parts, " ")
	},
	"lines": func(t layout.Tooltip) string { return strings.Join(t.Lines(), "\n") },
}

const svgTemplateStr = `{{define "svg"}}<svg xmlns="http://www.w3.org/2000/svg" width="{{num .Width}}" height="{{num .Height}}" viewBox="0 0 {{num .Width}} {{num .Height}}" font-family="sans-serif">
<text x="14" y="14" font-size="13"><tspan font-weight="700">{{.Title.Range}}</tspan><tspan fill="#6b7280"> (length {{.Title.Length}})  date: {{.Title.Date}}</tspan></text>
{{- $grid := .GridColor}}
{{- range .Ticks}}
<text x="{{num .X}}" y="{{num .LabelY}}" text-anchor="middle" font-size="11" fill="#6b7280">{{.Height}}</text>
<line x1="{{num .X}}" y1="{{num .GridTop}}" x2="{{num .X}}" y2="{{num .GridBottom}}" stroke="{{$grid}}" stroke-width="1"/>
{{- end}}
<rect x="{{num .Band.X}}" y="{{num .Band.Y}}" width="{{num .Band.W}}" height="{{num .Band.H}}" fill="{{.BandColor}}"/>
{{- range .Lanes}}
<text x="{{num .Label.X}}" y="{{num .Label.Y}}" font-weight="700" fill="{{.Color}}" dominant-baseline="middle">{{.Name}}</text>
{{- end}}
{{- range .Connectors}}
<path d="{{.D}}" fill="none" stroke="{{.Stroke}}" stroke-width="{{num .Width}}" stroke-linecap="round" stroke-linejoin="round" opacity="{{num .Opacity}}"/>
{{- end}}
{{- with .Fork}}
<path d="{{.D}}" fill="none" stroke="{{.Stroke}}" stroke-width="{{num .Width}}" stroke-linecap="round" opacity="{{num .Opacity}}"/>
{{- end}}
{{- with .Continuation}}
{{- $c := .Color}}
<path d="{{.Lead.D}}" stroke="{{$c}}" stroke-width="{{num .Lead.Width}}" stroke-linecap="round" opacity="{{num .Lead.Opacity}}"/>
{{- range .Dots}}
<circle cx="{{num .Center.X}}" cy="{{num .Center.Y}}" r="{{num .R}}" fill="{{$c}}" opacity="0.95"/>
{{- end}}
<path d="{{.Arrow.D}}" stroke="{{$c}}" stroke-width="{{num .Arrow.Width}}" stroke-linecap="round"/>
<polygon points="{{points .Arrowhead}}" fill="{{$c}}"/>
{{- end}}
{{- range .Cells}}
{{- if .Href}}
<a href="{{.Href}}" target="_blank" rel="noopener">
{{- end}}
<rect x="{{num .Rect.X}}" y="{{num .Rect.Y}}" width="{{num .Rect.W}}" height="{{num .Rect.H}}" rx="{{num .Radius}}" ry="{{num .Radius}}" fill="{{.Color}}" stroke="{{.Stroke}}" stroke-width="1" data-lane="{{.Lane}}" data-height="{{.Height}}"><title>{{lines .Tooltip}}</title></rect>
<text x="{{num .LabelAt.X}}" y="{{num .LabelAt.Y}}" text-anchor="middle" dominant-baseline="middle" font-size="12" font-weight="700" fill="{{.LabelColor}}">{{.Label}}</text>
{{- if .Href}}
</a>
{{- end}}
{{- end}}
</svg>{{end}}
{{define "page"}}<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Heading}}</title></head>
<body>
<h1>{{.Heading}}</h1>
{{- if not .Layouts}}
<div class="empty card">No runs to display.</div>
{{- end}}
{{- range .Layouts}}
<div class="card">{{template "svg" .}}</div>
{{- end}}
</body></html>{{end}}`

var (
	tmpl     *template.Template
	tmplOnce sync.Once
)

func getTemplate() *template.Template {
	tmplOnce.Do(func() {
		tmpl = template.Must(template.New("render").Funcs(funcMap).Parse(svgTemplateStr))
	})
	return tmpl
}

// SVG writes one layout as a standalone SVG document
func SVG(w io.Writer, l *layout.Layout) error {
	if err := getTemplate().ExecuteTemplate(w, "svg", l); err != nil {
		return fmt.Errorf("failed to render svg: %w", err)
	}
	return nil
}

// Page writes an HTML page with one SVG card per layout
func Page(w io.Writer, heading string, layouts []*layout.Layout) error {
	data := struct {
		Heading string
		Layouts []*layout.Layout
	}{heading, layouts}
	if err := getTemplate().ExecuteTemplate(w, "page", data); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	return nil
}
