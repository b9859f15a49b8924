package ai

import "testing"

// fakeFS hands back a fixed blob regardless of path, mimicking virtio-fs's
// single-model-file contract.
type fakeFS struct {
	blob []byte
	fail bool
}

func (f *fakeFS) ReadFile(path string, bufAddr uintptr, bufLen uint32) (int, bool) {
	if f.fail {
		return 0, false
	}
	// bufAddr/bufLen describe the adapter's own static buffer; the fake
	// writes through the same pointer the real driver would DMA into.
	dst := unsafeSlice(bufAddr, int(bufLen))
	n := copy(dst, f.blob)
	return n, true
}

func encodeEntry(key, value string) []byte {
	out := []byte{byte(len(key))}
	out = append(out, key...)
	out = append(out, byte(len(value)))
	out = append(out, value...)
	return out
}

func TestInferWithNoModelLoaded(t *testing.T) {
	var a Adapter
	if got := a.Infer("hola"); got != noModelLoaded {
		t.Fatalf("Infer() = %q, want %q", got, noModelLoaded)
	}
}

func TestLoadModelThenInferFindsKey(t *testing.T) {
	var a Adapter
	blob := append(encodeEntry("hola", "mundo"), encodeEntry("adios", "chau")...)
	fs := &fakeFS{blob: blob}

	if _, ok := a.LoadModel(fs, "model.bin"); !ok {
		t.Fatal("expected LoadModel to succeed")
	}
	if !a.Loaded() {
		t.Fatal("expected Loaded() to report true after LoadModel")
	}
	if got := a.Infer("hola"); got != "mundo" {
		t.Fatalf("Infer(hola) = %q, want mundo", got)
	}
	if got := a.Infer("adios"); got != "chau" {
		t.Fatalf("Infer(adios) = %q, want chau", got)
	}
}

func TestInferPromptNotFound(t *testing.T) {
	var a Adapter
	blob := encodeEntry("hola", "mundo")
	fs := &fakeFS{blob: blob}
	a.LoadModel(fs, "model.bin")

	if got := a.Infer("desconocido"); got != promptNotFound {
		t.Fatalf("Infer() = %q, want %q", got, promptNotFound)
	}
}

func TestLoadModelFsError(t *testing.T) {
	var a Adapter
	fs := &fakeFS{fail: true}
	err, ok := a.LoadModel(fs, "missing.bin")
	if ok {
		t.Fatal("expected LoadModel to fail")
	}
	if err != fsReadError {
		t.Fatalf("err = %q, want %q", err, fsReadError)
	}
	if a.Loaded() {
		t.Fatal("expected Loaded() to remain false after a failed load")
	}
}
