package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/fpt/llmbench/pkg/model"
	"github.com/fpt/llmbench/pkg/usage"
)

//go:embed templates/*.html
var templateFiles embed.FS

var pageTemplates = template.Must(template.New("").Funcs(template.FuncMap{
	"usd":    usage.FormatUSD,
	"number": usage.FormatNumber,
}).ParseFS(templateFiles, "templates/*.html"))

type providerGroup struct {
	Provider  model.Provider
	Name      string
	Available bool
	Models    []model.ModelInfo
}

type indexData struct {
	Groups []providerGroup
	Marker string
}

func (s *Server) indexData() indexData {
	data := indexData{Marker: usage.Marker}
	for _, p := range model.Providers {
		data.Groups = append(data.Groups, providerGroup{
			Provider:  p,
			Name:      p.DisplayName(),
			Available: s.providers.Available(p),
			Models:    s.registry.ByProvider(p),
		})
	}
	return data
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, "index.html", s.indexData()); err != nil {
		s.requestLogger(r).Error("failed to render index", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
