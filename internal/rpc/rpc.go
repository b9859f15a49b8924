// Package rpc implements the fixed JSON-RPC method table that sits on top
// of the vsock framing (spec.md §4.7), grounded on
// original_source/mcp-core/src/lib.rs's mcp_server module. encoding/json
// stands in for the original's miniserde: no no-std JSON library appears
// anywhere in the retrieved corpus, and spec.md scopes the codec internals
// out ("we only pin the wire grammar it must parse"), so this is the one
// place this kernel leans on the standard library for something domain-ish
// — see DESIGN.md.
package rpc

import (
	"encoding/json"
	"strings"

	"github.com/gfpw/microkernelia/internal/ai"
	"github.com/gfpw/microkernelia/internal/logring"
)

const (
	logUnknownMethod = "[mcp] Método desconocido"
	logInvalidJSON   = "[mcp] JSON-RPC inválido"
)

// methodNames is the fixed, ordered set of methods this router answers.
// Linear scan over five entries needs no map, matching spec.md §9's design
// note about the dispatch table.
var methodNames = [...]string{"infer", "health", "metadata", "load_model", "logs"}

func isKnownMethod(name string) bool {
	for _, m := range methodNames {
		if m == name {
			return true
		}
	}
	return false
}

// request is the outer JSON-RPC envelope every frame carries.
type request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type inferParams struct {
	Prompt string `json:"prompt"`
}

type inferResponse struct {
	Text      string `json:"text"`
	Tokens    uint32 `json:"tokens"`
	LatencyMs uint32 `json:"latency_ms"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Details string `json:"details"`
}

type metadataResponse struct {
	ModelName    string   `json:"model_name"`
	Quantization string   `json:"quantization"`
	Arch         string   `json:"arch"`
	Features     []string `json:"features"`
	Build        string   `json:"build"`
}

type loadModelParams struct {
	Path string `json:"path"`
}

type loadModelResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
	Error  string `json:"error,omitempty"`
}

// FileReader is the filesystem surface load_model needs; satisfied directly
// by internal/virtio/vfs's *Driver, which the boot sequence passes to New.
type FileReader = ai.FileReader

// Router dispatches JSON-RPC requests to the fixed handler table. It owns
// no state of its own beyond references to the subsystems handlers need.
type Router struct {
	AI        *ai.Adapter
	FS        FileReader
	Log       *logring.Ring
	ModelName string
}

// New returns a Router wired to the given subsystems.
func New(adapter *ai.Adapter, fs FileReader, log *logring.Ring) *Router {
	return &Router{AI: adapter, FS: fs, Log: log, ModelName: "stub-model"}
}

// Dispatch parses frame as a JSON-RPC request and routes it to the matching
// handler. It returns (nil, false) — "no response bytes" — for malformed
// JSON, a missing/unknown method, or no method field at all, per spec.md
// §4.7/§8.
func (r *Router) Dispatch(frame []byte) (response []byte, ok bool) {
	var req request
	if err := json.Unmarshal(frame, &req); err != nil {
		r.Log.WriteString(logInvalidJSON)
		return nil, false
	}
	if req.Method == "" {
		r.Log.WriteString(logInvalidJSON)
		return nil, false
	}
	if !isKnownMethod(req.Method) {
		r.Log.WriteString(logUnknownMethod)
		return nil, false
	}

	// logs is the one handler whose contract is "raw bytes", not a JSON
	// object (original source returns buf[..n].to_vec() directly).
	if req.Method == "logs" {
		return r.handleLogs(), true
	}

	var (
		resp any
		err  error
	)
	switch req.Method {
	case "infer":
		resp, err = r.handleInfer(req.Params)
	case "health":
		resp = r.handleHealth()
	case "metadata":
		resp = r.handleMetadata()
	case "load_model":
		resp, err = r.handleLoadModel(req.Params)
	}
	if err != nil {
		r.Log.WriteString(logInvalidJSON)
		return nil, false
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return nil, false
	}
	return out, true
}

func (r *Router) handleInfer(params json.RawMessage) (inferResponse, error) {
	var p inferParams
	if err := json.Unmarshal(params, &p); err != nil {
		return inferResponse{}, err
	}
	text := r.AI.Infer(p.Prompt)
	return inferResponse{
		Text:      text,
		Tokens:    uint32(len(strings.Fields(text))),
		LatencyMs: 1,
	}, nil
}

func (r *Router) handleHealth() healthResponse {
	if r.AI.Loaded() {
		return healthResponse{Status: "ok", Details: "modelo cargado"}
	}
	return healthResponse{Status: "not_loaded", Details: "sin modelo"}
}

func (r *Router) handleMetadata() metadataResponse {
	return metadataResponse{
		ModelName:    r.ModelName,
		Quantization: "none",
		Arch:         "x86_64",
		Features:     []string{"SSE2"},
		Build:        "dev",
	}
}

func (r *Router) handleLoadModel(params json.RawMessage) (loadModelResponse, error) {
	var p loadModelParams
	if err := json.Unmarshal(params, &p); err != nil {
		return loadModelResponse{}, err
	}
	if errMsg, ok := r.AI.LoadModel(r.FS, p.Path); !ok {
		return loadModelResponse{Status: "error", Error: errMsg}, nil
	}
	return loadModelResponse{Status: "ok", Path: p.Path}, nil
}

const maxLogDrain = 1024

func (r *Router) handleLogs() []byte {
	buf := make([]byte, maxLogDrain)
	n := r.Log.Drain(buf)
	return buf[:n]
}
