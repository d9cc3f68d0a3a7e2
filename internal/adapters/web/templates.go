package web

// layoutTemplate - базовый layout с навигацией
const layoutTemplate = `{{define "layout"}}
<!DOCTYPE html>
<html lang="ru">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}} - Telegram Parser</title>
    <script src="https://cdn.tailwindcss.com"></script>
    <script src="https://unpkg.com/htmx.org@1.9.10"></script>
</head>
<body class="bg-gray-50">
    <nav class="bg-white shadow-lg">
        <div class="max-w-7xl mx-auto px-4">
            <div class="flex justify-between h-16">
                <div class="flex space-x-8">
                    <div class="flex items-center">
                        <span class="text-xl font-bold text-blue-600">👥 Telegram Parser</span>
                    </div>
                    <div class="hidden md:flex items-center space-x-4">
                        <a href="/" class="px-3 py-2 rounded-md text-sm font-medium {{if eq .Page "dashboard"}}bg-blue-100 text-blue-700{{else}}text-gray-700 hover:bg-gray-100{{end}}">Parser</a>
                        <a href="/logs" class="px-3 py-2 rounded-md text-sm font-medium {{if eq .Page "logs"}}bg-blue-100 text-blue-700{{else}}text-gray-700 hover:bg-gray-100{{end}}">Logs</a>
                    </div>
                </div>
            </div>
        </div>
    </nav>

    <main class="max-w-7xl mx-auto px-4 py-6">
        {{if eq .Page "dashboard"}}{{template "dashboard" .}}{{end}}
        {{if eq .Page "logs"}}{{template "logs" .}}{{end}}
    </main>
</body>
</html>
{{end}}`

// dashboardTemplate - главная страница: форма запуска, состояние, журнал, результаты
const dashboardTemplate = `{{define "dashboard"}}
<div class="space-y-6">
    <div class="grid grid-cols-1 md:grid-cols-2 gap-6">
        <div class="bg-white rounded-lg shadow-md p-6">
            <h2 class="text-xl font-bold mb-4">🚀 Запуск</h2>
            <form hx-post="/api/start" hx-target="#start-result" hx-swap="innerHTML" class="space-y-3">
                <input name="link" required placeholder="https://t.me/group или @group"
                       class="w-full border rounded px-3 py-2">
                <div class="grid grid-cols-3 gap-2">
                    <input name="max_members" type="number" min="0" placeholder="Макс. (0 — все)"
                           class="border rounded px-3 py-2">
                    <input name="api_id" type="number" placeholder="API ID" class="border rounded px-3 py-2">
                    <input name="api_hash" type="password" placeholder="API Hash" class="border rounded px-3 py-2">
                </div>
                <div class="flex gap-2">
                    <button class="flex-1 bg-blue-600 hover:bg-blue-700 text-white px-4 py-2 rounded transition">Начать парсинг</button>
                    <button type="button" hx-post="/api/stop" hx-target="#start-result" hx-swap="innerHTML"
                            class="flex-1 bg-red-600 hover:bg-red-700 text-white px-4 py-2 rounded transition">Остановить</button>
                </div>
            </form>
            <div id="start-result" class="mt-3 text-sm"></div>
        </div>

        <div class="bg-white rounded-lg shadow-md p-6">
            <h2 class="text-xl font-bold mb-4">📊 Состояние</h2>
            <div id="status-panel" hx-get="/api/status" hx-trigger="load, every 5s, refresh" hx-swap="innerHTML">
                <p class="text-gray-500">Loading...</p>
            </div>
        </div>
    </div>

    <div class="bg-white rounded-lg shadow-md p-6">
        <h2 class="text-xl font-bold mb-4">📜 Журнал</h2>
        <div id="events-panel" class="font-mono text-sm max-h-72 overflow-y-auto"
             hx-get="/api/events" hx-trigger="load" hx-swap="innerHTML"></div>
    </div>

    <div class="bg-white rounded-lg shadow-md p-6">
        <div class="flex justify-between items-center mb-4">
            <h2 class="text-xl font-bold">📋 Результаты</h2>
            <div class="flex gap-2 text-sm">
                <a href="/export.csv" class="bg-green-600 hover:bg-green-700 text-white px-3 py-1 rounded">CSV</a>
                <a href="/export.xlsx" class="bg-green-600 hover:bg-green-700 text-white px-3 py-1 rounded">Excel</a>
                <button hx-post="/api/save" hx-target="#save-result" hx-swap="innerHTML"
                        class="bg-gray-600 hover:bg-gray-700 text-white px-3 py-1 rounded">Сохранить на сервере</button>
                <button hx-post="/api/clear" hx-target="#results-panel" hx-swap="innerHTML"
                        hx-confirm="Очистить таблицу результатов?"
                        class="bg-gray-200 hover:bg-gray-300 px-3 py-1 rounded">Очистить</button>
            </div>
        </div>
        <div id="save-result" class="text-sm mb-2"></div>
        <div id="results-panel" class="overflow-x-auto"
             hx-get="/api/results" hx-trigger="load, refresh" hx-swap="innerHTML"></div>
    </div>

    <div class="grid grid-cols-1 md:grid-cols-2 gap-6">
        <div class="bg-white rounded-lg shadow-md p-6">
            <h2 class="text-xl font-bold mb-4">🔑 Учётные данные</h2>
            <form hx-post="/api/creds" hx-target="#creds-result" hx-swap="innerHTML" class="flex gap-2">
                <input name="api_id" type="number" placeholder="API ID" class="border rounded px-3 py-2 w-32">
                <input name="api_hash" type="password" placeholder="API Hash" class="border rounded px-3 py-2 flex-1">
                <button class="bg-blue-600 hover:bg-blue-700 text-white px-4 py-2 rounded">OK</button>
            </form>
            <div id="creds-result" class="mt-2 text-sm"></div>
            <button hx-post="/api/clear-session" hx-target="#creds-result" hx-swap="innerHTML"
                    hx-confirm="Удалить сохранённую сессию? Потребуется повторный вход."
                    class="mt-4 w-full bg-orange-600 hover:bg-orange-700 text-white px-4 py-2 rounded transition">
                Удалить сессию
            </button>
        </div>

        <div class="bg-white rounded-lg shadow-md p-6">
            <h2 class="text-xl font-bold mb-4">⚙️ System Info</h2>
            <div hx-get="/api/whoami" hx-trigger="load" hx-swap="innerHTML"></div>
            <div hx-get="/api/version" hx-trigger="load" hx-swap="innerHTML"></div>
        </div>
    </div>
</div>

<script>
    (function() {
        const events = document.getElementById('events-panel');
        function append(msg) {
            const line = document.createElement('div');
            line.textContent = '[' + msg.time + '] ' + msg.message;
            if (msg.type === 'failed') line.className = 'text-red-700';
            if (msg.type === 'finished') line.className = 'text-green-700 font-semibold';
            if (msg.type === 'prompt') line.className = 'text-blue-700';
            events.appendChild(line);
            events.scrollTop = events.scrollHeight;
        }
        function connect() {
            const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const ws = new WebSocket(proto + location.host + '/ws');
            ws.onmessage = function(e) {
                const msg = JSON.parse(e.data);
                if (msg.type !== 'progress' && msg.message) append(msg);
                if (msg.type === 'prompt' || msg.terminal || msg.type === 'progress') {
                    htmx.trigger('#status-panel', 'refresh');
                }
                if (msg.type === 'finished') htmx.trigger('#results-panel', 'refresh');
            };
            ws.onclose = function() {
                setTimeout(function() {
                    htmx.ajax('GET', '/api/events', {target: '#events-panel', swap: 'innerHTML'});
                    connect();
                }, 3000);
            };
        }
        connect();
        document.body.addEventListener('htmx:afterRequest', function(e) {
            if (e.detail.pathInfo.requestPath === '/api/start') {
                events.innerHTML = '';
            }
        });
    })();
</script>
{{end}}`

// statusTemplate - панель состояния с формой ответа на запрос авторизации
const statusTemplate = `{{define "status"}}
<div class="space-y-2 text-sm">
    {{if .JobID}}
    <p><span class="font-semibold">Задача:</span> #{{.JobID}} ({{if .Running}}выполняется{{else}}{{.State}}{{end}})</p>
    <p><span class="font-semibold">Ссылка:</span> {{.Link}}</p>
    {{if .Chat}}<p><span class="font-semibold">Группа:</span> {{.Chat}}</p>{{end}}
    {{if .Account}}<p><span class="font-semibold">Аккаунт:</span> {{.Account}}</p>{{end}}
    {{if .Target}}
    <div class="w-full bg-gray-200 rounded h-3">
        <div class="bg-blue-600 h-3 rounded" style="width: {{.Percent}}%"></div>
    </div>
    <p class="text-gray-600">{{.Collected}} / {{.Target}}</p>
    {{end}}
    <p class="text-gray-500">Начало: {{.Started}}{{if .Finished}}, конец: {{.Finished}}{{end}}</p>
    {{else}}
    <p class="text-gray-500">Задач ещё не было</p>
    {{end}}

    {{with .Prompt}}
    <form hx-post="/api/answer" hx-target="#answer-result" hx-swap="innerHTML"
          class="mt-3 p-3 bg-blue-50 rounded space-y-2">
        <p class="font-semibold text-blue-900">{{.Message}}</p>
        <input type="hidden" name="kind" value="{{.Kind}}">
        <div class="flex gap-2">
            <input name="value" autofocus autocomplete="off" type="{{if .Secret}}password{{else}}text{{end}}"
                   class="flex-1 border rounded px-3 py-2">
            <button class="bg-blue-600 hover:bg-blue-700 text-white px-4 py-2 rounded">OK</button>
        </div>
        <div id="answer-result"></div>
    </form>
    {{end}}

    <hr class="my-2">
    <p><span class="font-semibold">Результатов:</span> {{.ResultsCount}}{{if .ResultsChat}} ({{.ResultsChat}}, {{.ResultsUpdated}}){{end}}</p>
    <p class="text-gray-500">
        API: {{if .HasCredentials}}заданы{{else}}<span class="text-red-600">не заданы</span>{{end}},
        сессия: {{if .SessionExists}}сохранена{{else}}нет{{end}}
    </p>
</div>
{{end}}`

// eventsTemplate - журнал задачи
const eventsTemplate = `{{define "events"}}
{{range .}}<div class="{{.Class}}">[{{.Time}}] {{.Message}}</div>
{{else}}<p class="text-gray-500">Журнал пуст</p>{{end}}
{{end}}`

// resultsTemplate - таблица результатов и карточки system info
const resultsTemplate = `{{define "results"}}
{{if .Total}}
<p class="text-sm text-gray-600 mb-2">{{.Chat}}: {{.Total}} записей{{if lt (len .Rows) .Total}}, показаны первые {{len .Rows}}{{end}}</p>
<table class="min-w-full text-xs border">
    <thead class="bg-gray-100">
        <tr>{{range .Columns}}<th class="px-2 py-1 text-left border">{{.}}</th>{{end}}</tr>
    </thead>
    <tbody>
        {{range .Rows}}<tr class="hover:bg-gray-50">{{range .}}<td class="px-2 py-1 border">{{.}}</td>{{end}}</tr>
        {{end}}
    </tbody>
</table>
{{else}}
<p class="text-gray-500">Результатов нет</p>
{{end}}
{{end}}

{{define "whoami"}}
<p class="text-sm"><span class="font-semibold">Аккаунт:</span> {{.FullName}}{{if .Username}} (@{{.Username}}){{end}}</p>
<p class="text-sm text-gray-500">ID: {{.ID}}</p>
{{end}}

{{define "version"}}
<p class="text-sm"><span class="font-semibold">Версия:</span> {{.Name}} {{.Version}}</p>
{{end}}`

// logsTemplate - страница просмотра логов
const logsTemplate = `{{define "logs"}}
<div class="space-y-6">
    <h1 class="text-3xl font-bold text-gray-900">Журнал задач</h1>
    <div class="bg-white rounded-lg shadow-md p-6">
        <div id="logs-container" class="font-mono text-sm"
             hx-get="/api/logs" hx-trigger="load" hx-swap="innerHTML">
            <p class="text-gray-500">Загрузка журнала...</p>
        </div>
    </div>
</div>
{{end}}`
