// Package ai is the inference adapter: it loads a model blob over
// virtio-fs and answers prompts by exact-match lookup against that blob's
// encoded key/value table. Grounded on original_source/ai-runtime/src/lib.rs
// (load_model/infer), preserving its wire format and sentinel strings
// verbatim since spec.md §4.5/§8 pins them as part of the observable
// contract.
package ai

import "github.com/gfpw/microkernelia/internal/layout"

const (
	noModelLoaded  = "[ai-runtime] No hay modelo cargado"
	promptNotFound = "[ai-runtime] Prompt no encontrado en modelo"
	fsReadError    = "fs read error"
)

// Model is the loaded blob: a sequence of [klen][key][vlen][value] records,
// klen/vlen each one byte, matched as raw bytes against the prompt.
type Model struct {
	data []byte
}

// FileReader is the minimal surface ai needs from virtio-fs, satisfied by
// (*internal/virtio/vfs.Driver).ReadFile once the caller resolves a
// physical buffer address on its behalf; kept as an interface here so this
// package's logic is testable without any virtqueue involved.
type FileReader interface {
	ReadFile(path string, bufAddr uintptr, bufLen uint32) (n int, ok bool)
}

// Adapter owns the currently loaded model, if any.
type Adapter struct {
	model *Model
	buf   [layout.MaxModelSize]byte
}

// LoadModel reads path via fs into the adapter's static buffer and installs
// it as the active model. err is fsReadError on failure, matching the
// original's Result<(), &'static str>.
func (a *Adapter) LoadModel(fs FileReader, path string) (err string, ok bool) {
	n, readOK := fs.ReadFile(path, bufAddr(&a.buf), uint32(len(a.buf)))
	if !readOK {
		return fsReadError, false
	}
	a.model = &Model{data: a.buf[:n]}
	return "", true
}

// Loaded reports whether a model is currently installed.
func (a *Adapter) Loaded() bool {
	return a.model != nil
}

// Infer looks prompt up in the loaded model's key/value table and returns
// the matching value, or one of the two fixed diagnostic strings when no
// model is loaded or the prompt isn't found.
func (a *Adapter) Infer(prompt string) string {
	if a.model == nil {
		return noModelLoaded
	}
	data := a.model.data
	i := 0
	for i < len(data) {
		if i+1 > len(data) {
			break
		}
		klen := int(data[i])
		i++
		if i+klen > len(data) {
			break
		}
		key := data[i : i+klen]
		i += klen
		if i+1 > len(data) {
			break
		}
		vlen := int(data[i])
		i++
		if i+vlen > len(data) {
			break
		}
		value := data[i : i+vlen]
		i += vlen
		if string(key) == prompt {
			if len(value) > 255 {
				value = value[:255]
			}
			return string(value)
		}
	}
	return promptNotFound
}
