package server

import (
	"html/template"
	"io"
)

var statusTmpl = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head>
<title>faststreams status</title>
<style>
body { font-family: monospace; margin: 2em; background: #111; color: #ddd; }
h1 { color: #6fc; }
table { border-collapse: collapse; margin-top: 1em; }
th, td { border: 1px solid #444; padding: 4px 10px; text-align: left; }
th { background: #222; }
.ok { color: #6fc; }
.fail { color: #f66; }
</style>
</head>
<body>
<h1>faststreams</h1>
<p>uptime {{.Uptime}} | cache ttl {{.CacheTTL}}{{if .HasResult}} | cache age {{.CacheAge}}{{end}}</p>
{{if .HasResult}}
<p>{{.Channels}} channels | EPG {{.EPGMatched}}/{{.EPGTotal}} ({{.EPGCoverage}}) | last cycle {{.LastCycle.Format "2006-01-02 15:04:05 MST"}}</p>
<table>
<tr><th>provider</th><th>channels</th><th>dropped</th><th>elapsed</th><th>status</th></tr>
{{range .Providers}}
<tr>
<td>{{.Provider}}</td>
<td>{{.Channels}}</td>
<td>{{.Dropped}}</td>
<td>{{.Elapsed}}</td>
{{if .Failed}}<td class="fail">failed: {{.Reason}}</td>{{else}}<td class="ok">ok</td>{{end}}
</tr>
{{end}}
</table>
{{else}}
<p>no aggregation result yet</p>
{{end}}
<p>
<a href="/playlist">playlist</a> |
<a href="/epg">epg</a> |
<a href="/channels">channels</a> |
<a href="/debug">debug</a> |
<a href="/metrics">metrics</a>
</p>
</body>
</html>
`))

func writeStatusHTML(w io.Writer, payload statusPayload) {
	_ = statusTmpl.Execute(w, payload)
}
