package daemon

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

// openAPISpec is the machine-readable description of the §6 HTTP surface,
// served at /openapi.json so external tooling can discover the daemon's
// routes. The path list is maintained by hand alongside the router in
// http.go.
var openAPISpec = []byte(`{
  "openapi": "3.0.3",
  "info": {"title": "corectl daemon API", "version": "1.0"},
  "paths": {
    "/version": {"get": {"responses": {"200": {"description": "daemon version"}}}},
    "/info": {"get": {"responses": {"200": {"description": "daemon stats"}}}},
    "/ping": {"get": {"responses": {"200": {"description": "liveness"}}}},
    "/_ping": {"get": {"responses": {"200": {"description": "liveness"}}}},
    "/events": {"get": {"responses": {"200": {"description": "event stream"}}}},
    "/system/df": {"get": {"responses": {"200": {"description": "disk usage"}}}},
    "/system/prune": {"post": {"responses": {"204": {"description": "pruned"}}}},
    "/containers/json": {"get": {"responses": {"200": {"description": "container list"}}}},
    "/containers/create": {"post": {"responses": {"201": {"description": "created"}}}},
    "/containers/{id}/start": {"post": {"responses": {"204": {"description": "started"}}}},
    "/containers/{id}/stop": {"post": {"responses": {"204": {"description": "stopped"}}}},
    "/containers/{id}/remove": {"delete": {"responses": {"204": {"description": "removed"}}}},
    "/containers/{id}/json": {"get": {"responses": {"200": {"description": "inspect"}}}},
    "/containers/{id}/logs": {"get": {"responses": {"200": {"description": "logs"}}}},
    "/containers/{id}/stats": {"get": {"responses": {"200": {"description": "stats"}}}},
    "/containers/{id}/exec": {"post": {"responses": {"200": {"description": "exec result"}}}},
    "/containers/{id}/commit": {"post": {"responses": {"201": {"description": "committed"}}}},
    "/images/json": {"get": {"responses": {"200": {"description": "image list"}}}},
    "/images/create": {"post": {"responses": {"200": {"description": "pulled"}}}},
    "/images/{name}/json": {"get": {"responses": {"200": {"description": "image manifest"}}}},
    "/images/{name}/history": {"get": {"responses": {"200": {"description": "image history"}}}},
    "/images/{name}/push": {"post": {"responses": {"204": {"description": "pushed"}}}},
    "/images/{name}/tag": {"post": {"responses": {"201": {"description": "tagged"}}}},
    "/images/{name}/get": {"get": {"responses": {"200": {"description": "exported"}}}},
    "/images/load": {"post": {"responses": {"201": {"description": "imported"}}}},
    "/images/prune": {"post": {"responses": {"200": {"description": "pruned"}}}},
    "/volumes/json": {"get": {"responses": {"200": {"description": "volume list"}}}},
    "/volumes/create": {"post": {"responses": {"201": {"description": "created"}}}},
    "/networks/json": {"get": {"responses": {"200": {"description": "network list"}}}},
    "/networks/create": {"post": {"responses": {"201": {"description": "created"}}}},
    "/health": {"get": {"responses": {"200": {"description": "health"}}}},
    "/ready": {"get": {"responses": {"200": {"description": "readiness"}}}},
    "/live": {"get": {"responses": {"200": {"description": "liveness"}}}}
  }
}`)

// validateOpenAPISpec loads the embedded spec and checks that it is a
// well-formed OpenAPI document. It does not compare the listed paths with
// the routes registered in http.go.
func validateOpenAPISpec() error {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		return err
	}
	return doc.Validate(loader.Context)
}

func (s *httpServer) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPISpec)
}
