// Package apiclient is corectl's CLI-facing client for the daemon's HTTP
// façade, the JSON-over-HTTP analogue of the teacher's gRPC pkg/client:
// a thin wrapper with one method per daemon endpoint, returning decoded
// JSON rather than protobuf messages.
package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to one daemon's HTTP listener.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client against addr (host:port, no scheme).
func NewClient(addr string) *Client {
	return &Client{baseURL: "http://" + addr, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *Client) do(method, path string, query url.Values, body any) ([]byte, int, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, u, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("daemon request failed: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return out, resp.StatusCode, fmt.Errorf("daemon returned %d: %s", resp.StatusCode, string(out))
	}
	return out, resp.StatusCode, nil
}

// Ping checks the daemon is reachable.
func (c *Client) Ping() error {
	_, _, err := c.do(http.MethodGet, "/_ping", nil, nil)
	return err
}

// Info returns the daemon's stats snapshot.
func (c *Client) Info() (map[string]any, error) {
	body, _, err := c.do(http.MethodGet, "/info", nil, nil)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	return out, json.Unmarshal(body, &out)
}

// ContainerList lists containers; all=true includes exited ones.
func (c *Client) ContainerList(all bool) ([]map[string]any, error) {
	q := url.Values{}
	if all {
		q.Set("all", "true")
	}
	body, _, err := c.do(http.MethodGet, "/containers/json", q, nil)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	return out, json.Unmarshal(body, &out)
}

// PortMapping mirrors container.PortMapping for the wire request, kept
// local so apiclient doesn't need to import pkg/container.
type PortMapping struct {
	HostPort      uint16 `json:"hostPort"`
	ContainerPort uint16 `json:"containerPort"`
	Protocol      string `json:"protocol"`
}

// VolumeMount mirrors volume.Spec for the wire request, kept local so
// apiclient doesn't need to import pkg/volume.
type VolumeMount struct {
	Kind     string
	Source   string
	Name     string
	Target   string
	ReadOnly bool
}

// ContainerCreateRequest mirrors http.go's createContainerRequest.
type ContainerCreateRequest struct {
	Image           string        `json:"image"`
	Args            []string      `json:"args"`
	Env             []string      `json:"env"`
	Cwd             string        `json:"cwd"`
	UID             uint32        `json:"uid"`
	GID             uint32        `json:"gid"`
	Hostname        string        `json:"hostname"`
	Volumes         []VolumeMount `json:"volumes"`
	Ports           []PortMapping `json:"ports"`
	Privileged      bool          `json:"privileged"`
	ReadOnly        bool          `json:"readOnly"`
	Network         string        `json:"network"`
	SecurityProfile string        `json:"securityProfile"`
}

// ContainerCreate creates a container named name from req, returning its id.
func (c *Client) ContainerCreate(name string, req ContainerCreateRequest) (string, error) {
	q := url.Values{"name": {name}}
	body, _, err := c.do(http.MethodPost, "/containers/create", q, req)
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"Id"`
	}
	return out.ID, json.Unmarshal(body, &out)
}

func (c *Client) containerAction(id, action string) error {
	_, _, err := c.do(http.MethodPost, "/containers/"+id+"/"+action, nil, nil)
	return err
}

func (c *Client) ContainerStart(id string) error   { return c.containerAction(id, "start") }
func (c *Client) ContainerStop(id string) error    { return c.containerAction(id, "stop") }
func (c *Client) ContainerRestart(id string) error { return c.containerAction(id, "restart") }
func (c *Client) ContainerKill(id string) error    { return c.containerAction(id, "kill") }
func (c *Client) ContainerPause(id string) error   { return c.containerAction(id, "pause") }
func (c *Client) ContainerUnpause(id string) error { return c.containerAction(id, "unpause") }

// ContainerRemove removes id; force kills a running container first.
func (c *Client) ContainerRemove(id string, force bool) error {
	q := url.Values{}
	if force {
		q.Set("force", "true")
	}
	_, _, err := c.do(http.MethodDelete, "/containers/"+id+"/remove", q, nil)
	return err
}

// ContainerInspect returns a container's full metadata.
func (c *Client) ContainerInspect(id string) (map[string]any, error) {
	body, _, err := c.do(http.MethodGet, "/containers/"+id+"/json", nil, nil)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	return out, json.Unmarshal(body, &out)
}

// ContainerLogs streams id's log lines, newline-joined, into a single
// string; follow/tail match the daemon's /containers/{id}/logs query.
func (c *Client) ContainerLogs(id string, follow bool, tail int) (string, error) {
	q := url.Values{}
	if follow {
		q.Set("follow", "true")
	}
	if tail > 0 {
		q.Set("tail", fmt.Sprintf("%d", tail))
	}
	body, _, err := c.do(http.MethodGet, "/containers/"+id+"/logs", q, nil)
	return string(body), err
}

// ContainerStats returns id's instantaneous resource snapshot.
func (c *Client) ContainerStats(id string) (map[string]any, error) {
	body, _, err := c.do(http.MethodGet, "/containers/"+id+"/stats", nil, nil)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	return out, json.Unmarshal(body, &out)
}

// ContainerExec runs argv inside id and returns the exec's opaque id.
func (c *Client) ContainerExec(id string, argv []string) (string, error) {
	req := map[string][]string{"Cmd": argv}
	body, _, err := c.do(http.MethodPost, "/containers/"+id+"/exec", nil, req)
	if err != nil {
		return "", err
	}
	var out struct {
		Output string `json:"Output"`
	}
	return out.Output, json.Unmarshal(body, &out)
}

// ContainerCommit snapshots id's writable layer as a new image under
// newRef, returning the new layer's digest.
func (c *Client) ContainerCommit(id, newRef string) (string, error) {
	q := url.Values{"repo": {newRef}}
	body, _, err := c.do(http.MethodPost, "/containers/"+id+"/commit", q, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"Id"`
	}
	return out.ID, json.Unmarshal(body, &out)
}

// ImageList lists known image references.
func (c *Client) ImageList() ([]string, error) {
	body, _, err := c.do(http.MethodGet, "/images/json", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []string
	return out, json.Unmarshal(body, &out)
}

// ImagePull pulls ref.
func (c *Client) ImagePull(ref string) error {
	q := url.Values{"fromImage": {ref}}
	_, _, err := c.do(http.MethodPost, "/images/create", q, nil)
	return err
}

// ImageRemove removes ref.
func (c *Client) ImageRemove(ref string) error {
	_, _, err := c.do(http.MethodDelete, "/images/"+ref, nil, nil)
	return err
}

// ImageInspect returns ref's full locally stored manifest.
func (c *Client) ImageInspect(ref string) (map[string]any, error) {
	body, _, err := c.do(http.MethodGet, "/images/"+ref+"/json", nil, nil)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	return out, json.Unmarshal(body, &out)
}

// ImageHistory returns ref's build history, oldest first.
func (c *Client) ImageHistory(ref string) ([]map[string]any, error) {
	body, _, err := c.do(http.MethodGet, "/images/"+ref+"/history", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	return out, json.Unmarshal(body, &out)
}

// ImagePush uploads ref to its registry.
func (c *Client) ImagePush(ref string) error {
	_, _, err := c.do(http.MethodPost, "/images/"+ref+"/push", nil, nil)
	return err
}

// ImageTag records image ref under an additional reference newRef.
func (c *Client) ImageTag(ref, newRef string) error {
	q := url.Values{"repo": {newRef}}
	_, _, err := c.do(http.MethodPost, "/images/"+ref+"/tag", q, nil)
	return err
}

// ImageExport writes ref's manifest, config and layers to dest, a
// directory path on the daemon host.
func (c *Client) ImageExport(ref, dest string) error {
	q := url.Values{"dest": {dest}}
	_, _, err := c.do(http.MethodGet, "/images/"+ref+"/get", q, nil)
	return err
}

// ImageImport reads a directory written by ImageExport from src, a
// directory path on the daemon host, and records it under ref.
func (c *Client) ImageImport(src, ref string) error {
	q := url.Values{"src": {src}, "repo": {ref}}
	_, _, err := c.do(http.MethodPost, "/images/load", q, nil)
	return err
}

// ImagePrune removes every locally stored image not referenced by any
// container, returning the refs deleted.
func (c *Client) ImagePrune() ([]string, error) {
	body, _, err := c.do(http.MethodPost, "/images/prune", nil, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		ImagesDeleted []string `json:"ImagesDeleted"`
	}
	return out.ImagesDeleted, json.Unmarshal(body, &out)
}

// VolumeList lists volume names.
func (c *Client) VolumeList() ([]string, error) {
	body, _, err := c.do(http.MethodGet, "/volumes/json", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []string
	return out, json.Unmarshal(body, &out)
}

// VolumeRemove removes name.
func (c *Client) VolumeRemove(name string) error {
	_, _, err := c.do(http.MethodDelete, "/volumes/"+name, nil, nil)
	return err
}

// NetworkList lists all networks.
func (c *Client) NetworkList() ([]map[string]any, error) {
	body, _, err := c.do(http.MethodGet, "/networks/json", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	return out, json.Unmarshal(body, &out)
}

// NetworkCreate creates a network named name with the given driver
// ("bridge", "host", or "none") and optional subnet CIDR.
func (c *Client) NetworkCreate(name, driver, subnet string) error {
	req := map[string]string{"Name": name, "Driver": driver, "Subnet": subnet}
	_, _, err := c.do(http.MethodPost, "/networks/create", nil, req)
	return err
}

// NetworkRemove removes name, forcing removal of attached containers if
// force is set.
func (c *Client) NetworkRemove(name string, force bool) error {
	q := url.Values{}
	if force {
		q.Set("force", "true")
	}
	_, _, err := c.do(http.MethodDelete, "/networks/"+name, q, nil)
	return err
}
