package web

const indexTemplate = `
{{define "index"}}
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Pictor</title>
    <script src="https://unpkg.com/htmx.org@1.9.10"></script>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; background: #0f0f13; color: #e0e0e0; }
        header { background: #1a1a22; padding: 1rem 2rem; display: flex; align-items: center; gap: 2rem; border-bottom: 1px solid #2a2a35; }
        header h1 { font-size: 1.3rem; color: #8ab4f8; }
        header nav a { color: #aaa; text-decoration: none; margin-right: 1rem; }
        header nav a:hover { color: #fff; }
        .search-box { flex: 1; max-width: 500px; }
        .search-box input { width: 100%; padding: 0.5rem 1rem; border-radius: 20px; border: 1px solid #333; background: #22222c; color: #e0e0e0; }
        main { padding: 2rem; }
        .stats-bar { display: flex; gap: 2rem; margin-bottom: 1.5rem; color: #888; font-size: 0.9rem; }
        .tag-cloud { margin-bottom: 1.5rem; }
        .tag-pill { display: inline-block; padding: 0.2rem 0.7rem; margin: 0.15rem; border-radius: 12px; background: #22222c; color: #8ab4f8; font-size: 0.85rem; text-decoration: none; cursor: pointer; }
        .tag-pill:hover { background: #2a2a38; }
        .media-grid { display: grid; grid-template-columns: repeat(auto-fill, minmax(220px, 1fr)); gap: 1rem; }
        .media-card { background: #1a1a22; border-radius: 8px; overflow: hidden; transition: transform 0.15s; }
        .media-card:hover { transform: translateY(-2px); }
        .media-card img { width: 100%; height: 200px; object-fit: cover; display: block; }
        .media-card .info { padding: 0.6rem 0.8rem; }
        .media-card .title { font-size: 0.9rem; white-space: nowrap; overflow: hidden; text-overflow: ellipsis; }
        .media-card .meta { font-size: 0.75rem; color: #777; margin-top: 0.2rem; }
        .pagination { display: flex; justify-content: center; gap: 1rem; margin-top: 2rem; align-items: center; }
        .pagination button { padding: 0.4rem 1rem; border-radius: 6px; border: 1px solid #333; background: #22222c; color: #e0e0e0; cursor: pointer; }
        .pagination button:disabled { opacity: 0.4; cursor: default; }
        .upload-form { margin-bottom: 1.5rem; padding: 1rem; background: #1a1a22; border-radius: 8px; display: flex; gap: 1rem; align-items: center; }
        .upload-form input[type=text] { padding: 0.4rem 0.8rem; border-radius: 6px; border: 1px solid #333; background: #22222c; color: #e0e0e0; }
        .upload-form button { padding: 0.4rem 1rem; border-radius: 6px; border: none; background: #2d5fa6; color: #fff; cursor: pointer; }
        #progress-banner { display: none; padding: 0.6rem 1rem; background: #203050; border-radius: 6px; margin-bottom: 1rem; font-size: 0.9rem; }
    </style>
</head>
<body>
    <header>
        <h1>Pictor</h1>
        <nav>
            <a href="/">Gallery</a>
            <a href="/stats">Stats</a>
            <a href="/tags">Tags</a>
        </nav>
        <div class="search-box">
            <input type="search" name="search" placeholder="Search prompts, tags, titles..."
                   hx-get="/media-grid" hx-target="#grid-container" hx-trigger="keyup changed delay:400ms">
        </div>
    </header>
    <main>
        <div id="progress-banner"></div>
        <form class="upload-form" hx-post="/api/upload" hx-encoding="multipart/form-data" hx-swap="none"
              hx-on::after-request="htmx.trigger('#grid-container', 'refresh')">
            <input type="file" name="file" required>
            <input type="text" name="title" placeholder="Title (optional)">
            <input type="text" name="uploader" placeholder="Uploader (optional)">
            <button type="submit">Upload</button>
        </form>
        <div class="stats-bar">
            <span>{{index .Stats "total_media"}} items</span>
            <span>{{index .Stats "with_generation_data"}} with generation data</span>
        </div>
        <div class="tag-cloud">
            {{range .Tags}}
            <a class="tag-pill" hx-get="/media-grid?tag={{index . "name"}}" hx-target="#grid-container">{{index . "name"}} ({{index . "media_count"}})</a>
            {{end}}
        </div>
        <div id="grid-container" hx-get="/media-grid" hx-trigger="load, refresh"></div>
    </main>
    <script>
        (function() {
            var proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            var ws = new WebSocket(proto + location.host + '/ws/progress');
            var banner = document.getElementById('progress-banner');
            ws.onmessage = function(ev) {
                var st = JSON.parse(ev.data);
                if (st.is_running) {
                    banner.style.display = 'block';
                    banner.textContent = st.current_operation + ' (' + st.files_processed + ' files, ' + st.media_stored + ' stored)';
                } else {
                    banner.style.display = 'none';
                }
            };
        })();
    </script>
</body>
</html>
{{end}}
`

const mediaGridTemplate = `
{{define "media-grid"}}
<div class="media-grid">
    {{range .Media}}
    <div class="media-card">
        <a href="{{index . "serve_url"}}" target="_blank">
            <img src="{{index . "thumb_url"}}" alt="{{index . "title"}}" loading="lazy">
        </a>
        <div class="info">
            <div class="title">{{index . "title"}}</div>
            <div class="meta">{{index . "uploader"}} &middot; {{formatFileSize (index . "file_size")}}</div>
        </div>
    </div>
    {{else}}
    <p style="color:#777">No media found.</p>
    {{end}}
</div>
{{if gt .TotalPages 1}}
<div class="pagination">
    <button hx-get="/media-grid?offset={{sub .Offset .Limit}}&limit={{.Limit}}" hx-target="#grid-container" {{if not .HasPrev}}disabled{{end}}>Previous</button>
    <span>Page {{.Page}} of {{.TotalPages}}</span>
    <button hx-get="/media-grid?offset={{add .Offset .Limit}}&limit={{.Limit}}" hx-target="#grid-container" {{if not .HasNext}}disabled{{end}}>Next</button>
</div>
{{end}}
{{end}}
`

const statsTemplate = `
{{define "stats"}}
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Pictor - Statistics</title>
    <style>
        body { font-family: -apple-system, sans-serif; background: #0f0f13; color: #e0e0e0; padding: 2rem; }
        a { color: #8ab4f8; }
        h1 { margin-bottom: 1.5rem; }
        h2 { margin: 1.5rem 0 0.8rem; font-size: 1.1rem; color: #aaa; }
        .card { background: #1a1a22; border-radius: 8px; padding: 1rem 1.5rem; margin-bottom: 1rem; }
        table { width: 100%; border-collapse: collapse; }
        td { padding: 0.3rem 0.5rem; border-bottom: 1px solid #2a2a35; }
    </style>
</head>
<body>
    <a href="/">&larr; Back to gallery</a>
    <h1>Library Statistics</h1>
    <div class="card">
        <table>
            <tr><td>Total media</td><td>{{index .Stats "total_media"}}</td></tr>
            <tr><td>With generation data</td><td>{{index .Stats "with_generation_data"}}</td></tr>
            <tr><td>Total storage</td><td>{{formatFileSize (index .Stats "total_bytes")}}</td></tr>
        </table>
    </div>
    <h2>Top Checkpoints</h2>
    <div class="card">
        <table>
            {{with index .Models "top_checkpoints"}}{{range .}}
            <tr><td>{{index . "checkpoint"}}</td><td>{{index . "count"}}</td></tr>
            {{end}}{{end}}
        </table>
    </div>
    <h2>Top Samplers</h2>
    <div class="card">
        <table>
            {{with index .Models "top_samplers"}}{{range .}}
            <tr><td>{{index . "sampler"}}</td><td>{{index . "count"}}</td></tr>
            {{end}}{{end}}
        </table>
    </div>
</body>
</html>
{{end}}
`

const tagsTemplate = `
{{define "tags"}}
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Pictor - Tags</title>
    <style>
        body { font-family: -apple-system, sans-serif; background: #0f0f13; color: #e0e0e0; padding: 2rem; }
        a { color: #8ab4f8; }
        h1 { margin-bottom: 1.5rem; }
        table { width: 100%; max-width: 700px; border-collapse: collapse; }
        td, th { padding: 0.4rem 0.6rem; border-bottom: 1px solid #2a2a35; text-align: left; }
        .swatch { display: inline-block; width: 14px; height: 14px; border-radius: 3px; vertical-align: middle; margin-right: 0.4rem; }
    </style>
</head>
<body>
    <a href="/">&larr; Back to gallery</a>
    <h1>Tags</h1>
    <table>
        <tr><th>Tag</th><th>Source</th><th>Media</th></tr>
        {{range .Tags}}
        <tr>
            <td><span class="swatch" style="background:{{index . "color"}}"></span>{{index . "name"}}</td>
            <td>{{index . "source"}}</td>
            <td>{{index . "media_count"}}</td>
        </tr>
        {{end}}
    </table>
</body>
</html>
{{end}}
`
