package registry

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"modelkeep/internal/metacache"
)

// writeGGUF creates a minimal valid GGUF file declaring the given
// architecture, context length and file type.
func writeGGUF(t *testing.T, dir, name, arch string, ctx uint32, fileType uint32) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("GGUF")
	binary.Write(&buf, binary.LittleEndian, uint32(3)) // version
	binary.Write(&buf, binary.LittleEndian, uint64(0)) // tensor count
	binary.Write(&buf, binary.LittleEndian, uint64(3)) // kv count

	writeStr := func(s string) {
		binary.Write(&buf, binary.LittleEndian, uint64(len(s)))
		buf.WriteString(s)
	}
	writeStr("general.architecture")
	binary.Write(&buf, binary.LittleEndian, uint32(8)) // string
	writeStr(arch)
	writeStr("general.file_type")
	binary.Write(&buf, binary.LittleEndian, uint32(4)) // uint32
	binary.Write(&buf, binary.LittleEndian, fileType)
	writeStr(arch + ".context_length")
	binary.Write(&buf, binary.LittleEndian, uint32(4)) // uint32
	binary.Write(&buf, binary.LittleEndian, ctx)

	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write gguf: %v", err)
	}
	return p
}

func newTestRegistry(t *testing.T, dir string) (*Registry, *metacache.Store) {
	t.Helper()
	cache := metacache.New(filepath.Join(dir, "model_cache.json"), zerolog.Nop())
	cache.LoadAll()
	r, err := New(dir, cache, zerolog.Nop())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return r, cache
}

func TestReindexOrdersAndIndexes(t *testing.T) {
	dir := t.TempDir()
	// created out of order on purpose
	writeGGUF(t, dir, "c-model.Q4_K_M.gguf", "llama", 4096, 15)
	writeGGUF(t, dir, "a-model.Q8_0.gguf", "mistral", 32768, 7)
	writeGGUF(t, dir, "b-model.Q5_K_M.gguf", "llama", 8192, 17)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)

	r, _ := newTestRegistry(t, dir)
	models, err := r.Reindex()
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if len(models) != 3 {
		t.Fatalf("expected 3 models, got %d", len(models))
	}
	wantOrder := []string{"a-model.Q8_0.gguf", "b-model.Q5_K_M.gguf", "c-model.Q4_K_M.gguf"}
	for i, m := range models {
		if m.Index != i+1 {
			t.Fatalf("model %d has index %d", i, m.Index)
		}
		if filepath.Base(m.Path) != wantOrder[i] {
			t.Fatalf("position %d: got %s, want %s", i, filepath.Base(m.Path), wantOrder[i])
		}
	}
	if models[0].Architecture != "mistral" || models[0].Quantization != "Q8_0" || models[0].ContextLength != 32768 {
		t.Fatalf("header metadata not extracted: %+v", models[0])
	}
}

func TestReindexIsIdempotentAndCached(t *testing.T) {
	dir := t.TempDir()
	writeGGUF(t, dir, "a.gguf", "llama", 4096, 15)
	writeGGUF(t, dir, "b.gguf", "llama", 4096, 15)

	r, _ := newTestRegistry(t, dir)
	first, err := r.Reindex()
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if r.parses != 2 {
		t.Fatalf("expected 2 parses on cold start, got %d", r.parses)
	}
	second, err := r.Reindex()
	if err != nil {
		t.Fatalf("reindex again: %v", err)
	}
	if r.parses != 2 {
		t.Fatalf("unchanged files must not be re-parsed, got %d parses", r.parses)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("unchanged directory must yield identical generations")
	}
}

func TestReindexReparsesOnlyChangedFiles(t *testing.T) {
	dir := t.TempDir()
	writeGGUF(t, dir, "a.gguf", "llama", 4096, 15)
	writeGGUF(t, dir, "b.gguf", "llama", 4096, 15)

	r, _ := newTestRegistry(t, dir)
	if _, err := r.Reindex(); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	// grow one file so its fingerprint changes
	writeGGUF(t, dir, "a.gguf", "mistral", 2048, 7)
	f, err := os.OpenFile(filepath.Join(dir, "a.gguf"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.Write(make([]byte, 128))
	f.Close()

	models, err := r.Reindex()
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if r.parses != 3 {
		t.Fatalf("expected exactly one extra parse, got %d total", r.parses)
	}
	if models[0].Architecture != "mistral" {
		t.Fatalf("changed file must report fresh metadata: %+v", models[0])
	}
}

func TestReindexColdVersusWarmIdentical(t *testing.T) {
	dir := t.TempDir()
	writeGGUF(t, dir, "a.gguf", "llama", 4096, 15)
	writeGGUF(t, dir, "b.gguf", "qwen2", 32768, 18)

	r1, _ := newTestRegistry(t, dir)
	warm, err := r1.Reindex()
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}

	// delete the cache file, rebuild from scratch
	if err := os.Remove(filepath.Join(dir, "model_cache.json")); err != nil {
		t.Fatalf("remove cache: %v", err)
	}
	r2, _ := newTestRegistry(t, dir)
	cold, err := r2.Reindex()
	if err != nil {
		t.Fatalf("cold reindex: %v", err)
	}
	if !reflect.DeepEqual(warm, cold) {
		t.Fatalf("cold-start parse must match cached metadata\nwarm: %+v\ncold: %+v", warm, cold)
	}
}

func TestReindexFallbackOnCorruptHeader(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "dolphin-mistral-7b.Q4_K_M.gguf")
	if err := os.WriteFile(p, []byte("garbage not a gguf header"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, _ := newTestRegistry(t, dir)
	models, err := r.Reindex()
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if len(models) != 1 {
		t.Fatalf("expected 1 model, got %d", len(models))
	}
	m := models[0]
	if m.Name != "dolphin-mistral-7b.Q4_K_M" {
		t.Fatalf("fallback name missing: %+v", m)
	}
	if m.Quantization != "Q4_K_M" || m.Architecture != "mistral" {
		t.Fatalf("filename heuristic not applied: %+v", m)
	}
}

func TestByIndex(t *testing.T) {
	dir := t.TempDir()
	writeGGUF(t, dir, "a.gguf", "llama", 4096, 15)
	r, _ := newTestRegistry(t, dir)
	if _, err := r.Reindex(); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if m, err := r.ByIndex(1); err != nil || m.Index != 1 {
		t.Fatalf("ByIndex(1): %+v, %v", m, err)
	}
	for _, n := range []int{0, -1, 99} {
		_, err := r.ByIndex(n)
		if !IsIndexOutOfRange(err) {
			t.Fatalf("ByIndex(%d): expected out-of-range error, got %v", n, err)
		}
	}
}

func TestListReturnsCopy(t *testing.T) {
	dir := t.TempDir()
	writeGGUF(t, dir, "a.gguf", "llama", 4096, 15)
	r, _ := newTestRegistry(t, dir)
	if _, err := r.Reindex(); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	out := r.List()
	out[0].Name = "mutated"
	if r.List()[0].Name == "mutated" {
		t.Fatalf("registry mutated via returned slice")
	}
}
