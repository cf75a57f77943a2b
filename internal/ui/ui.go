// Package ui provides the browser dashboard served next to the control API.
package ui

import (
	"html/template"
	"log"
	"net/http"
	"os/exec"
	"runtime"
)

// Page is the data the dashboard template renders.
type Page struct {
	Title   string
	Version string
}

// Handler serves the dashboard. The page itself holds no macro data; its
// script reads the token from the URL and calls the API.
func Handler(version string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if err := tmpl.Execute(w, Page{Title: "hkmacro", Version: version}); err != nil {
			log.Printf("UI: Failed to render dashboard: %v", err)
		}
	})
}

// OpenBrowser opens url in the default browser.
func OpenBrowser(url string) {
	var err error
	switch runtime.GOOS {
	case "darwin":
		err = exec.Command("open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		err = exec.Command("xdg-open", url).Start()
	}
	if err != nil {
		log.Printf("Failed to open browser: %v", err)
	}
}

var tmpl = template.Must(template.New("index").Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: linear-gradient(135deg, #1a1a2e 0%, #16213e 100%);
            color: #e2e8f0;
            min-height: 100vh;
            padding: 2rem;
        }
        .container { max-width: 900px; margin: 0 auto; }
        h1 { font-size: 1.75rem; margin-bottom: 1.5rem; color: #a5b4fc; }
        h1 small { font-size: 0.8rem; color: #64748b; }
        .card {
            background: rgba(255,255,255,0.05);
            border: 1px solid rgba(255,255,255,0.1);
            border-radius: 16px;
            padding: 1.25rem;
            margin-bottom: 1.25rem;
        }
        .card h2 { font-size: 1.1rem; margin-bottom: 0.75rem; color: #a5b4fc; }
        table { width: 100%; border-collapse: collapse; }
        td, th { text-align: left; padding: 0.4rem; border-bottom: 1px solid rgba(255,255,255,0.06); }
        .muted { color: #64748b; }
        button {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            border: none; color: white; border-radius: 8px;
            padding: 0.35rem 0.9rem; cursor: pointer;
        }
        button.secondary { background: rgba(255,255,255,0.1); }
        #status { font-weight: 600; }
        #log { font-family: monospace; font-size: 0.85rem; max-height: 240px; overflow-y: auto; }
    </style>
</head>
<body>
<div class="container">
    <h1>{{.Title}} <small>{{.Version}}</small></h1>
    <div class="card">
        <h2>Status: <span id="status">idle</span></h2>
        <button class="secondary" onclick="control('pause')">Pause</button>
        <button class="secondary" onclick="control('resume')">Resume</button>
        <button class="secondary" onclick="control('stop')">Stop</button>
    </div>
    <div class="card">
        <h2>Macros</h2>
        <table>
            <thead><tr><th>Name</th><th>Category</th><th>Hotkey</th><th>Actions</th><th></th></tr></thead>
            <tbody id="macros"></tbody>
        </table>
    </div>
    <div class="card">
        <h2>Events</h2>
        <div id="log"></div>
    </div>
</div>
<script>
const token = new URLSearchParams(location.search).get('token') || '';
const headers = { 'Content-Type': 'application/json' };
if (token) headers['Authorization'] = 'Bearer ' + token;

async function api(method, path) {
    const res = await fetch(path, { method, headers });
    if (!res.ok) { logLine(method + ' ' + path + ': ' + (await res.text())); return null; }
    return res.status === 204 ? null : res.json();
}

function logLine(text) {
    const log = document.getElementById('log');
    const div = document.createElement('div');
    div.textContent = new Date().toLocaleTimeString() + '  ' + text;
    log.prepend(div);
}

async function loadMacros() {
    const list = await api('GET', '/api/macros') || [];
    const body = document.getElementById('macros');
    body.innerHTML = '';
    for (const m of list) {
        const tr = document.createElement('tr');
        for (const v of [m.name, m.category, m.hotkey || '-', m.action_count]) {
            const td = document.createElement('td');
            td.textContent = v;
            if (!m.enabled) td.className = 'muted';
            tr.appendChild(td);
        }
        const td = document.createElement('td');
        const btn = document.createElement('button');
        btn.textContent = 'Run';
        btn.disabled = !m.enabled;
        btn.onclick = () => api('POST', '/api/macros/' + m.id + '/execute');
        td.appendChild(btn);
        tr.appendChild(td);
        body.appendChild(tr);
    }
}

async function control(op) {
    const st = await api('POST', '/api/' + op);
    if (st) document.getElementById('status').textContent = st.status;
}

function connect() {
    const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
    const ws = new WebSocket(proto + '//' + location.host + '/ws?token=' + encodeURIComponent(token));
    ws.onmessage = (e) => {
        const msg = JSON.parse(e.data);
        if (msg.type === 'event') {
            const ev = msg.payload;
            document.getElementById('status').textContent = ev.status;
            if (ev.type === 'action_executed') logLine(ev.macro_name + ': ' + ev.description);
            else if (ev.type === 'error') logLine(ev.macro_name + ': ' + ev.error);
            else if (ev.type !== 'progress') logLine(ev.macro_name + ' ' + ev.type + ' (' + ev.status + ')');
        } else if (msg.type === 'macros_changed') {
            loadMacros();
        } else if (msg.type === 'error') {
            logLine(msg.payload.request + ': ' + msg.payload.message);
        }
    };
    ws.onclose = () => setTimeout(connect, 2000);
}

loadMacros();
api('GET', '/api/status').then(st => { if (st) document.getElementById('status').textContent = st.status; });
connect();
</script>
</body>
</html>
`
