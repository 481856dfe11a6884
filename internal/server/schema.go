package server

import (
	"net/http"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/fpt/llmbench/pkg/client"
	"github.com/fpt/llmbench/pkg/usage"
)

// apiSchemas documents the wire format of the workbench endpoints
type apiSchemas struct {
	Request          *jsonschema.Schema `json:"request"`
	Response         *jsonschema.Schema `json:"response"`
	MissingProviders *jsonschema.Schema `json:"missingProviders"`
	Availability     *jsonschema.Schema `json:"availability"`
	StreamUsage      *jsonschema.Schema `json:"streamUsage"`
}

// streamUsageTrailer is the JSON that follows the usage marker in a stream
type streamUsageTrailer struct {
	Usage usage.UsageData `json:"__usage"`
}

var (
	schemasOnce sync.Once
	schemas     apiSchemas
)

func buildSchemas() apiSchemas {
	r := &jsonschema.Reflector{}
	return apiSchemas{
		Request:          r.Reflect(&LLMTestRequest{}),
		Response:         r.Reflect(&LLMTestResponse{}),
		MissingProviders: r.Reflect(&MissingProvidersResponse{}),
		Availability:     r.Reflect(&client.Availability{}),
		StreamUsage:      r.Reflect(&streamUsageTrailer{}),
	}
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	schemasOnce.Do(func() { schemas = buildSchemas() })
	writeJSON(w, http.StatusOK, schemas)
}
