package ahrsweb

import (
	"embed"
	"html/template"
	"net/http"
	"sync"
)

//go:embed res
var res embed.FS

// templateHandler serves one page from res.
type templateHandler struct {
	once     sync.Once
	filename string
	templ    *template.Template
}

// ServeHTTP handles the HTTP request.
func (t *templateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.once.Do(func() {
		t.templ = template.Must(template.ParseFS(res, "res/"+t.filename))
	})
	t.templ.Execute(w, r)
}

// Handle registers the monitor page at / and the room at /ahrsweb on mux.
func Handle(mux *http.ServeMux, r *Room) {
	mux.Handle("/", &templateHandler{filename: "monitor.html"})
	mux.Handle("/ahrsweb", r)
}
