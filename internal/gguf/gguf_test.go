package gguf

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// ggufBuilder assembles a minimal GGUF prologue for tests.
type ggufBuilder struct {
	buf bytes.Buffer
	kvs bytes.Buffer
	n   uint64
}

func (b *ggufBuilder) writeString(w *bytes.Buffer, s string) {
	binary.Write(w, binary.LittleEndian, uint64(len(s)))
	w.WriteString(s)
}

func (b *ggufBuilder) kvString(key, val string) {
	b.writeString(&b.kvs, key)
	binary.Write(&b.kvs, binary.LittleEndian, uint32(typeString))
	b.writeString(&b.kvs, val)
	b.n++
}

func (b *ggufBuilder) kvUint32(key string, val uint32) {
	b.writeString(&b.kvs, key)
	binary.Write(&b.kvs, binary.LittleEndian, uint32(typeUint32))
	binary.Write(&b.kvs, binary.LittleEndian, val)
	b.n++
}

func (b *ggufBuilder) kvUint64(key string, val uint64) {
	b.writeString(&b.kvs, key)
	binary.Write(&b.kvs, binary.LittleEndian, uint32(typeUint64))
	binary.Write(&b.kvs, binary.LittleEndian, val)
	b.n++
}

func (b *ggufBuilder) kvFloat32(key string, val float32) {
	b.writeString(&b.kvs, key)
	binary.Write(&b.kvs, binary.LittleEndian, uint32(typeFloat32))
	binary.Write(&b.kvs, binary.LittleEndian, val)
	b.n++
}

func (b *ggufBuilder) kvStringArray(key string, vals []string) {
	b.writeString(&b.kvs, key)
	binary.Write(&b.kvs, binary.LittleEndian, uint32(typeArray))
	binary.Write(&b.kvs, binary.LittleEndian, uint32(typeString))
	binary.Write(&b.kvs, binary.LittleEndian, uint64(len(vals)))
	for _, v := range vals {
		b.writeString(&b.kvs, v)
	}
	b.n++
}

func (b *ggufBuilder) bytes(version uint32) []byte {
	b.buf.Reset()
	b.buf.WriteString(ggufMagic)
	binary.Write(&b.buf, binary.LittleEndian, version)
	binary.Write(&b.buf, binary.LittleEndian, uint64(0)) // tensor count
	binary.Write(&b.buf, binary.LittleEndian, b.n)
	b.buf.Write(b.kvs.Bytes())
	return b.buf.Bytes()
}

func writeModelFile(t *testing.T, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write model file: %v", err)
	}
	return p
}

func TestParseExtractsHeaderFields(t *testing.T) {
	var b ggufBuilder
	b.kvString("general.architecture", "llama")
	b.kvUint32("general.file_type", 15) // Q4_K_M
	b.kvUint32("llama.context_length", 4096)
	b.kvString("general.name", "TinyLlama Chat")
	p := writeModelFile(t, b.bytes(3))

	meta, err := Parse(p)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if meta.Architecture != "llama" {
		t.Fatalf("architecture = %q", meta.Architecture)
	}
	if meta.Quantization != "Q4_K_M" {
		t.Fatalf("quantization = %q", meta.Quantization)
	}
	if meta.ContextLength != 4096 {
		t.Fatalf("context length = %d", meta.ContextLength)
	}
	if meta.Name != "TinyLlama Chat" {
		t.Fatalf("name = %q", meta.Name)
	}
}

func TestParseSkipsUnknownKeysAndArrays(t *testing.T) {
	var b ggufBuilder
	b.kvString("general.architecture", "mistral")
	b.kvStringArray("tokenizer.ggml.tokens", []string{"<s>", "</s>", "the", "cat"})
	b.kvFloat32("mistral.rope.freq_base", 10000)
	b.kvUint64("mistral.context_length", 32768)
	p := writeModelFile(t, b.bytes(2))

	meta, err := Parse(p)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if meta.Architecture != "mistral" || meta.ContextLength != 32768 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestParseBadMagic(t *testing.T) {
	p := writeModelFile(t, []byte("NOTAGGUFFILE"))
	if _, err := Parse(p); !IsParseError(err) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestParseTruncatedHeader(t *testing.T) {
	var b ggufBuilder
	b.kvString("general.architecture", "llama")
	full := b.bytes(3)
	p := writeModelFile(t, full[:len(full)-5])
	if _, err := Parse(p); !IsParseError(err) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestParseUnsupportedVersion(t *testing.T) {
	var b ggufBuilder
	p := writeModelFile(t, b.bytes(9))
	if _, err := Parse(p); !IsParseError(err) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestParseImplausibleKVCount(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(ggufMagic)
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	binary.Write(&buf, binary.LittleEndian, uint64(0))
	binary.Write(&buf, binary.LittleEndian, uint64(1<<40))
	p := writeModelFile(t, buf.Bytes())
	if _, err := Parse(p); !IsParseError(err) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestParseMissingFile(t *testing.T) {
	if _, err := Parse(filepath.Join(t.TempDir(), "nope.gguf")); !IsParseError(err) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestParseFilename(t *testing.T) {
	cases := []struct {
		name  string
		quant string
		arch  string
	}{
		{"dolphin-2.2.1-mistral-7b.Q4_K_M.gguf", "Q4_K_M", "mistral"},
		{"tinyllama-1.1b-chat-v1.0.q8_0.gguf", "Q8_0", ""},
		{"Phi-3-mini-4k-instruct-fp.gguf", "", "phi"},
		{"llama-2-13b.IQ2_XS.gguf", "IQ2_XS", "llama"},
		{"qwen2-7b-instruct-f16.gguf", "F16", "qwen2"},
	}
	for _, tc := range cases {
		meta := ParseFilename(tc.name)
		if meta.Name == "" {
			t.Fatalf("%s: fallback must always set a name", tc.name)
		}
		if meta.Quantization != tc.quant {
			t.Fatalf("%s: quant = %q, want %q", tc.name, meta.Quantization, tc.quant)
		}
		if meta.Architecture != tc.arch {
			t.Fatalf("%s: arch = %q, want %q", tc.name, meta.Architecture, tc.arch)
		}
	}
}

func TestMergePrefersHeader(t *testing.T) {
	header := Metadata{Architecture: "llama", Quantization: "Q5_K_M"}
	fb := Metadata{Name: "model-x", Architecture: "mistral", Quantization: "Q4_0", ContextLength: 2048}
	got := header.Merge(fb)
	if got.Architecture != "llama" || got.Quantization != "Q5_K_M" {
		t.Fatalf("header fields must win: %+v", got)
	}
	if got.Name != "model-x" || got.ContextLength != 2048 {
		t.Fatalf("unset fields must be filled: %+v", got)
	}
}
