package web

import (
	"html/template"
	"strconv"
)

// journalView — данные фрагмента журнала
type journalView struct {
	Job        string // выбранная задача, "" — все
	Level      string // минимальный уровень, "" — любой
	Jobs       []jobView
	Entries    []entryView
	Pagination PaginationData
}

type jobView struct {
	ID       string
	Handle   string
	Started  string
	Outcome  string
	Lines    int
	Selected bool
	Class    string
}

type entryView struct {
	Time       string
	Level      string
	LevelClass string
	Caller     string
	Message    string
	Job        string
	Handle     string
	Error      string
}

// PaginationData - данные для пагинации
type PaginationData struct {
	CurrentPage int
	TotalPages  int
	ShowPrev    bool
	ShowNext    bool
	Pages       []PageLink
}

// PageLink - ссылка на страницу
type PageLink struct {
	Number     int
	IsCurrent  bool
	IsEllipsis bool
}

var outcomeClass = map[string]string{
	outcomeRunning:  "bg-blue-100 text-blue-800",
	outcomeFinished: "bg-green-100 text-green-800",
	outcomeStopped:  "bg-yellow-100 text-yellow-800",
	outcomeFailed:   "bg-red-100 text-red-800",
}

var outcomeTitle = map[string]string{
	outcomeRunning:  "идёт",
	outcomeFinished: "завершена",
	outcomeStopped:  "остановлена",
	outcomeFailed:   "ошибка",
}

func newJournalView(res journalPage, filter journalFilter, page int) journalView {
	v := journalView{
		Level:      filter.MinLevel,
		Pagination: buildPagination(page, res.TotalPages),
		Jobs:       make([]jobView, 0, len(res.Jobs)),
		Entries:    make([]entryView, 0, len(res.Entries)),
	}
	if filter.Job > 0 {
		v.Job = strconv.FormatInt(filter.Job, 10)
	}

	for _, j := range res.Jobs {
		outcome := outcomeTitle[j.Outcome]
		if outcome == "" {
			outcome = "нет итога"
		}
		handle := j.Handle
		if handle == "" {
			handle = "?"
		}
		v.Jobs = append(v.Jobs, jobView{
			ID:       strconv.FormatInt(j.ID, 10),
			Handle:   handle,
			Started:  displayTime(j.Started),
			Outcome:  outcome,
			Lines:    j.Lines,
			Selected: j.ID == filter.Job,
			Class:    outcomeClass[j.Outcome],
		})
	}

	for _, e := range res.Entries {
		ev := entryView{
			Time:       displayTime(e.Time),
			Level:      e.Level,
			LevelClass: getLevelClass(e.Level),
			Caller:     e.Caller,
			Message:    e.Message,
			Handle:     e.Handle,
			Error:      e.Error,
		}
		if e.Job > 0 {
			ev.Job = strconv.FormatInt(e.Job, 10)
		}
		v.Entries = append(v.Entries, ev)
	}
	return v
}

// getLevelClass возвращает CSS класс для уровня лога
func getLevelClass(level string) string {
	switch level {
	case "ERROR":
		return "bg-red-50 text-red-800 border-l-4 border-red-500"
	case "WARN":
		return "bg-yellow-50 text-yellow-800 border-l-4 border-yellow-500"
	case "INFO":
		return "bg-blue-50 text-blue-800 border-l-4 border-blue-500"
	case "DEBUG":
		return "bg-gray-50 text-gray-600 border-l-4 border-gray-400"
	default:
		return "bg-gray-50 text-gray-800"
	}
}

// Фильтры передаются явными параметрами: html/template экранирует каждое значение
// в URL отдельно.
const journalFiltersTemplate = `{{define "journal-filters"}}
<div class="mb-4 space-y-3">
	<div class="flex flex-wrap gap-2 items-center">
		<span class="text-sm font-semibold text-gray-700">Задачи:</span>
		<a href="#" hx-get="/api/logs?level={{.Level}}" hx-target="#logs-container" hx-swap="innerHTML"
		   class="px-2 py-1 rounded text-xs {{if not .Job}}ring-2 ring-blue-500{{end}} bg-gray-100">все</a>
		{{range .Jobs}}
		<a href="#" hx-get="/api/logs?job={{.ID}}&level={{$.Level}}" hx-target="#logs-container" hx-swap="innerHTML"
		   title="{{.Started}}, строк: {{.Lines}}"
		   class="px-2 py-1 rounded text-xs {{.Class}} {{if .Selected}}ring-2 ring-blue-500{{end}}">#{{.ID}} @{{.Handle}}: {{.Outcome}}</a>
		{{else}}
		<span class="text-xs text-gray-500">в журнале нет задач парсинга</span>
		{{end}}
	</div>
	<div class="flex gap-2 items-center text-xs">
		<span class="text-sm font-semibold text-gray-700">Уровень:</span>
		{{range $lvl := levels}}
		<a href="#" hx-get="/api/logs?job={{$.Job}}&level={{$lvl}}" hx-target="#logs-container" hx-swap="innerHTML"
		   class="px-2 py-1 rounded bg-gray-100 {{if eq $lvl $.Level}}ring-2 ring-blue-500{{end}}">{{if $lvl}}{{$lvl}}+{{else}}любой{{end}}</a>
		{{end}}
	</div>
</div>
{{end}}`

const journalEntryTemplate = `{{define "journal-entry"}}
<div class="text-xs p-1 rounded {{.LevelClass}}">
	{{if .Time}}<span class="text-gray-400">[{{.Time}}]</span>{{end}}
	<span class="font-semibold">[{{.Level}}]</span>
	{{if .Job}}<span class="px-1 rounded bg-white text-gray-700">#{{.Job}}{{if .Handle}} @{{.Handle}}{{end}}</span>{{end}}
	<span>{{.Message}}</span>
	{{if .Error}}<span class="text-red-700">: {{.Error}}</span>{{end}}
	{{if .Caller}}<span class="text-gray-400">({{.Caller}})</span>{{end}}
</div>
{{end}}`

const journalPaginationTemplate = `{{define "journal-pagination"}}
{{with .Pagination}}{{if gt .TotalPages 1}}
<div class="mt-6 flex justify-center items-center space-x-2">
	{{if .ShowPrev}}
	<a href="#" hx-get="/api/logs?job={{$.Job}}&level={{$.Level}}&page={{sub .CurrentPage 1}}" hx-target="#logs-container" hx-swap="innerHTML"
	   class="px-3 py-1 rounded bg-gray-200 hover:bg-gray-300">&lt;</a>
	{{end}}
	{{range .Pages}}
		{{if .IsEllipsis}}
			<span class="px-2">...</span>
		{{else if .IsCurrent}}
			<span class="px-3 py-1 rounded bg-blue-600 text-white">{{.Number}}</span>
		{{else}}
			<a href="#" hx-get="/api/logs?job={{$.Job}}&level={{$.Level}}&page={{.Number}}" hx-target="#logs-container" hx-swap="innerHTML"
			   class="px-3 py-1 rounded bg-gray-200 hover:bg-gray-300">{{.Number}}</a>
		{{end}}
	{{end}}
	{{if .ShowNext}}
	<a href="#" hx-get="/api/logs?job={{$.Job}}&level={{$.Level}}&page={{add .CurrentPage 1}}" hx-target="#logs-container" hx-swap="innerHTML"
	   class="px-3 py-1 rounded bg-gray-200 hover:bg-gray-300">&gt;</a>
	{{end}}
</div>
{{end}}{{end}}
{{end}}`

const journalTemplate = `{{define "journal"}}
{{template "journal-filters" .}}
<div class="space-y-1">
{{range .Entries}}
	{{template "journal-entry" .}}
{{else}}
	<p class="text-gray-500">Записей нет</p>
{{end}}
</div>
{{template "journal-pagination" .}}
{{end}}`

// buildPagination создает данные для пагинации
func buildPagination(currentPage, totalPages int) PaginationData {
	const window = 2 // страниц вокруг текущей

	pagination := PaginationData{
		CurrentPage: currentPage,
		TotalPages:  totalPages,
		ShowPrev:    currentPage > 1,
		ShowNext:    currentPage < totalPages,
	}

	start := max(1, currentPage-window)
	end := min(totalPages, currentPage+window)

	if start > 1 {
		pagination.Pages = append(pagination.Pages, PageLink{Number: 1})
		if start > 2 {
			pagination.Pages = append(pagination.Pages, PageLink{IsEllipsis: true})
		}
	}
	for i := start; i <= end; i++ {
		pagination.Pages = append(pagination.Pages, PageLink{
			Number:    i,
			IsCurrent: i == currentPage,
		})
	}
	if end < totalPages {
		if end < totalPages-1 {
			pagination.Pages = append(pagination.Pages, PageLink{IsEllipsis: true})
		}
		pagination.Pages = append(pagination.Pages, PageLink{Number: totalPages})
	}
	return pagination
}

var templateFuncs = template.FuncMap{
	"sub":    func(a, b int) int { return a - b },
	"add":    func(a, b int) int { return a + b },
	"levels": func() []string { return []string{"", "INFO", "WARN", "ERROR"} },
}
