package daemon

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/nexusshell/corectl/pkg/container"
	"github.com/nexusshell/corectl/pkg/corerr"
	"github.com/nexusshell/corectl/pkg/log"
	"github.com/nexusshell/corectl/pkg/metrics"
	"github.com/nexusshell/corectl/pkg/network"
	"github.com/nexusshell/corectl/pkg/volume"
	"github.com/rs/zerolog"
)

// httpServer is the REST façade over the daemon's sub-managers, matching
// the container-engine-shaped surface §6 specifies: list/create/inspect/
// remove/prune across containers, images, volumes and networks, plus a
// handful of system endpoints.
type httpServer struct {
	d      *Daemon
	logger zerolog.Logger
	router *mux.Router
	srv    *http.Server
}

func newHTTPServer(d *Daemon) *httpServer {
	s := &httpServer{d: d, logger: log.WithComponent("http")}
	s.router = s.buildRouter()
	return s
}

func (s *httpServer) listen(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.router, TLSConfig: s.d.tlsConfig}
	s.logger.Info().Str("addr", addr).Bool("tls", s.d.tlsConfig != nil).Msg("http listener started")

	var err error
	if s.d.tlsConfig != nil {
		err = s.srv.ListenAndServeTLS("", "")
	} else {
		err = s.srv.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *httpServer) close() {
	if s.srv != nil {
		s.srv.Close()
	}
}

func (s *httpServer) buildRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)
	r.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)
	r.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	r.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)
	r.HandleFunc("/_ping", s.handlePing).Methods(http.MethodGet)
	r.HandleFunc("/events", s.handleEventsStream).Methods(http.MethodGet)
	r.HandleFunc("/system/df", s.handleSystemDF).Methods(http.MethodGet)
	r.HandleFunc("/system/prune", s.handleSystemPrune).Methods(http.MethodPost)
	r.Handle("/health", metrics.HealthHandler()).Methods(http.MethodGet)
	r.Handle("/ready", metrics.ReadyHandler()).Methods(http.MethodGet)
	r.Handle("/live", metrics.LivenessHandler()).Methods(http.MethodGet)

	r.HandleFunc("/containers/json", s.handleContainerList).Methods(http.MethodGet)
	r.HandleFunc("/containers/create", s.handleContainerCreate).Methods(http.MethodPost)
	r.HandleFunc("/containers/{id}/start", s.handleContainerStart).Methods(http.MethodPost)
	r.HandleFunc("/containers/{id}/stop", s.handleContainerStop).Methods(http.MethodPost)
	r.HandleFunc("/containers/{id}/restart", s.handleContainerRestart).Methods(http.MethodPost)
	r.HandleFunc("/containers/{id}/kill", s.handleContainerKill).Methods(http.MethodPost)
	r.HandleFunc("/containers/{id}/pause", s.handleContainerPause).Methods(http.MethodPost)
	r.HandleFunc("/containers/{id}/unpause", s.handleContainerUnpause).Methods(http.MethodPost)
	r.HandleFunc("/containers/{id}/remove", s.handleContainerRemove).Methods(http.MethodDelete)
	r.HandleFunc("/containers/{id}/json", s.handleContainerInspect).Methods(http.MethodGet)
	r.HandleFunc("/containers/{id}/logs", s.handleContainerLogs).Methods(http.MethodGet)
	r.HandleFunc("/containers/{id}/stats", s.handleContainerStats).Methods(http.MethodGet)
	r.HandleFunc("/containers/{id}/exec", s.handleContainerExec).Methods(http.MethodPost)
	r.HandleFunc("/containers/{id}/update", s.handleContainerUpdate).Methods(http.MethodPost)
	r.HandleFunc("/containers/{id}/commit", s.handleContainerCommit).Methods(http.MethodPost)

	r.HandleFunc("/images/json", s.handleImageList).Methods(http.MethodGet)
	r.HandleFunc("/images/create", s.handleImagePull).Methods(http.MethodPost)
	r.HandleFunc("/images/{name}/json", s.handleImageInspect).Methods(http.MethodGet)
	r.HandleFunc("/images/{name}/history", s.handleImageHistory).Methods(http.MethodGet)
	r.HandleFunc("/images/{name}/push", s.handleImagePush).Methods(http.MethodPost)
	r.HandleFunc("/images/{name}/tag", s.handleImageTag).Methods(http.MethodPost)
	r.HandleFunc("/images/{name}/get", s.handleImageExport).Methods(http.MethodGet)
	r.HandleFunc("/images/load", s.handleImageImport).Methods(http.MethodPost)
	r.HandleFunc("/images/prune", s.handleImagePrune).Methods(http.MethodPost)
	r.HandleFunc("/images/{name}", s.handleImageRemove).Methods(http.MethodDelete)

	r.HandleFunc("/volumes/json", s.handleVolumeList).Methods(http.MethodGet)
	r.HandleFunc("/volumes/create", s.handleVolumeCreate).Methods(http.MethodPost)
	r.HandleFunc("/volumes/{name}", s.handleVolumeInspect).Methods(http.MethodGet)
	r.HandleFunc("/volumes/{name}", s.handleVolumeRemove).Methods(http.MethodDelete)
	r.HandleFunc("/volumes/prune", s.handleVolumePrune).Methods(http.MethodPost)
	r.HandleFunc("/networks/json", s.handleNetworkList).Methods(http.MethodGet)
	r.HandleFunc("/networks/create", s.handleNetworkCreate).Methods(http.MethodPost)
	r.HandleFunc("/networks/{name}", s.handleNetworkInspect).Methods(http.MethodGet)
	r.HandleFunc("/networks/{name}", s.handleNetworkRemove).Methods(http.MethodDelete)
	r.HandleFunc("/networks/prune", s.handleNetworkPrune).Methods(http.MethodPost)

	r.Use(s.loggingMiddleware)
	return r
}

func (s *httpServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("elapsed", time.Since(start)).Msg("request handled")
	})
}

// writeJSON writes v as a JSON body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeErr maps a corerr.Code to the §6 status convention: 404 for
// NotFound, 409 for StateConflict, 400 for Validation/Configuration,
// otherwise 500.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case corerr.HasReason(err, corerr.ReasonNotFound):
		status = http.StatusNotFound
	case corerr.HasReason(err, corerr.ReasonStateConflict):
		status = http.StatusConflict
	case corerr.Is(err, corerr.Validation) || corerr.Is(err, corerr.Configuration):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *httpServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"ApiVersion": "1.0", "Version": "corectl-dev"})
}

func (s *httpServer) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.d.Stats())
}

func (s *httpServer) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *httpServer) handleSystemDF(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.d.Stats())
}

func (s *httpServer) handleSystemPrune(w http.ResponseWriter, r *http.Request) {
	for _, meta := range s.d.containers.List(true, nil) {
		if meta.State == container.StateExited {
			_ = s.d.containers.Remove(r.Context(), meta.ID, false, false)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) handleContainerList(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	writeJSON(w, http.StatusOK, s.d.containers.List(all, nil))
}

type createContainerRequest struct {
	Image           string                 `json:"image"`
	Args            []string               `json:"args"`
	Env             []string               `json:"env"`
	Cwd             string                 `json:"cwd"`
	UID             uint32                 `json:"uid"`
	GID             uint32                 `json:"gid"`
	Hostname        string                 `json:"hostname"`
	Volumes         []volume.Spec          `json:"volumes"`
	Ports           []container.PortMapping `json:"ports"`
	Labels          map[string]string      `json:"labels"`
	Privileged      bool                   `json:"privileged"`
	ReadOnly        bool                   `json:"readOnly"`
	Network         string                 `json:"network"`
	SecurityProfile string                 `json:"securityProfile"`
}

func (s *httpServer) handleContainerCreate(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	var req createContainerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, corerr.Wrap(corerr.Validation, corerr.ReasonNone, name, err))
		return
	}
	cfg := container.Config{
		Image:           req.Image,
		Args:            req.Args,
		Env:             req.Env,
		Cwd:             req.Cwd,
		UID:             req.UID,
		GID:             req.GID,
		Hostname:        req.Hostname,
		Volumes:         req.Volumes,
		Ports:           req.Ports,
		Privileged:      req.Privileged,
		ReadOnly:        req.ReadOnly,
		Network:         req.Network,
		SecurityProfile: req.SecurityProfile,
	}
	id, err := s.d.containers.Create(name, req.Image, nil, cfg)
	if err != nil {
		writeErr(w, err)
		return
	}
	if req.Network != "" {
		if err := s.d.networks.Attach(req.Network, id, ""); err != nil {
			s.logger.Warn().Err(err).Str("id", id).Str("network", req.Network).Msg("network attach failed")
		}
	}
	writeJSON(w, http.StatusCreated, map[string]string{"Id": id})
}

func (s *httpServer) handleContainerCommit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	newRef := r.URL.Query().Get("repo")
	digest, err := s.d.containers.Commit(id, newRef, s.d.images)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"Id": digest})
}

func (s *httpServer) handleContainerStart(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.d.containers.Start(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) handleContainerStop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	timeout := parseTimeout(r, 10*time.Second)
	if err := s.d.containers.Stop(r.Context(), id, timeout); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) handleContainerRestart(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	timeout := parseTimeout(r, 10*time.Second)
	if err := s.d.containers.Stop(r.Context(), id, timeout); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.d.containers.Start(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) handleContainerKill(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.d.containers.Kill(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) handleContainerPause(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.d.containers.Pause(id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) handleContainerUnpause(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.d.containers.Unpause(id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) handleContainerRemove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	force := r.URL.Query().Get("force") == "true"
	removeVolumes := r.URL.Query().Get("v") == "true"
	if err := s.d.containers.Remove(r.Context(), id, force, removeVolumes); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) handleContainerInspect(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	meta, err := s.d.containers.Inspect(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *httpServer) handleContainerLogs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	follow := r.URL.Query().Get("follow") == "true"
	tail := 0
	if v := r.URL.Query().Get("tail"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			tail = n
		}
	}
	lines, err := s.d.containers.Logs(r.Context(), id, follow, tail)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	for line := range lines {
		_, _ = w.Write([]byte(line + "\n"))
		if canFlush {
			flusher.Flush()
		}
	}
}

func (s *httpServer) handleContainerStats(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	stats, err := s.d.containers.Stats(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *httpServer) handleContainerExec(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Cmd []string `json:"Cmd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, corerr.Wrap(corerr.Validation, corerr.ReasonNone, id, err))
		return
	}
	out, err := s.d.containers.Exec(r.Context(), id, req.Cmd, nil, "")
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"Output": out})
}

func (s *httpServer) handleContainerUpdate(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) handleImageList(w http.ResponseWriter, r *http.Request) {
	refs, err := s.d.images.List()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refs)
}

func (s *httpServer) handleImagePull(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("fromImage")
	layers, err := s.d.images.Pull(ref)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"Ref": ref, "Layers": layers})
}

func (s *httpServer) handleImageInspect(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	img, err := s.d.images.Inspect(name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, img)
}

func (s *httpServer) handleImageHistory(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	history, err := s.d.images.History(name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *httpServer) handleImagePush(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.d.images.Push(name); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) handleImageTag(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	newRef := r.URL.Query().Get("repo")
	if err := s.d.images.Tag(name, newRef); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *httpServer) handleImageExport(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	dest := r.URL.Query().Get("dest")
	if dest == "" {
		writeErr(w, corerr.New(corerr.Validation, corerr.ReasonNone, name, "dest is required"))
		return
	}
	if err := s.d.images.Export(name, dest); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"Dest": dest})
}

func (s *httpServer) handleImageImport(w http.ResponseWriter, r *http.Request) {
	src := r.URL.Query().Get("src")
	ref := r.URL.Query().Get("repo")
	if _, err := s.d.images.Import(src, ref); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"Ref": ref})
}

func (s *httpServer) handleImagePrune(w http.ResponseWriter, r *http.Request) {
	inUse := make(map[string]bool)
	for _, meta := range s.d.containers.List(true, nil) {
		inUse[meta.Image] = true
	}
	refs, err := s.d.images.List()
	if err != nil {
		writeErr(w, err)
		return
	}
	var deleted []string
	for _, ref := range refs {
		if inUse[ref] {
			continue
		}
		if err := s.d.images.Remove(ref); err == nil {
			deleted = append(deleted, ref)
		}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"ImagesDeleted": deleted})
}

func (s *httpServer) handleImageRemove(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.d.images.Remove(name); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) handleVolumeList(w http.ResponseWriter, r *http.Request) {
	names, err := s.d.volumes.List()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *httpServer) handleVolumeCreate(w http.ResponseWriter, r *http.Request) {
	var spec volume.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeErr(w, corerr.Wrap(corerr.Validation, corerr.ReasonNone, spec.Name, err))
		return
	}
	if err := s.d.volumes.Create(&spec); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, spec)
}

func (s *httpServer) handleVolumeInspect(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	names, err := s.d.volumes.List()
	if err != nil {
		writeErr(w, err)
		return
	}
	for _, n := range names {
		if n == name {
			writeJSON(w, http.StatusOK, map[string]string{"Name": n})
			return
		}
	}
	writeErr(w, corerr.New(corerr.Validation, corerr.ReasonNotFound, name, "volume not found"))
}

func (s *httpServer) handleVolumeRemove(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.d.volumes.Remove(name); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) handleVolumePrune(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) handleNetworkList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.d.networks.List())
}

func (s *httpServer) handleNetworkCreate(w http.ResponseWriter, r *http.Request) {
	var spec network.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeErr(w, corerr.Wrap(corerr.Validation, corerr.ReasonNone, spec.Name, err))
		return
	}
	info, err := s.d.networks.Create(&spec)
	if err != nil {
		writeErr(w, corerr.Wrap(corerr.Configuration, corerr.ReasonNone, spec.Name, err))
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *httpServer) handleNetworkInspect(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	info, err := s.d.networks.Inspect(name)
	if err != nil {
		writeErr(w, corerr.New(corerr.Validation, corerr.ReasonNotFound, name, "network not found"))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *httpServer) handleNetworkRemove(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	force := r.URL.Query().Get("force") == "true"
	if err := s.d.networks.Remove(name, force); err != nil {
		writeErr(w, corerr.Wrap(corerr.Runtime, corerr.ReasonStateConflict, name, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) handleNetworkPrune(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"NetworksDeleted": s.d.networks.Prune()})
}

func (s *httpServer) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	s.streamEvents(w, r)
}

func parseTimeout(r *http.Request, fallback time.Duration) time.Duration {
	if v := r.URL.Query().Get("t"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
