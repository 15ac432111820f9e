package pngmeta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"
)

// buildPNG assembles a minimal PNG stream from raw chunks.
func buildPNG(chunks ...[]byte) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{137, 80, 78, 71, 13, 10, 26, 10})
	for _, c := range chunks {
		buf.Write(c)
	}
	return buf.Bytes()
}

func chunk(chunkType string, data []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(len(data)))
	buf.WriteString(chunkType)
	buf.Write(data)
	crc := crc32.NewIEEE()
	crc.Write([]byte(chunkType))
	crc.Write(data)
	binary.Write(&buf, binary.BigEndian, crc.Sum32())
	return buf.Bytes()
}

func textChunk(keyword, text string) []byte {
	data := append([]byte(keyword), 0)
	data = append(data, []byte(text)...)
	return chunk("tEXt", data)
}

func itxtChunk(keyword, text string) []byte {
	data := append([]byte(keyword), 0)
	data = append(data, 0, 0) // uncompressed, method 0
	data = append(data, 0)    // empty language tag
	data = append(data, 0)    // empty translated keyword
	data = append(data, []byte(text)...)
	return chunk("iTXt", data)
}

func TestReadTextChunks(t *testing.T) {
	png := buildPNG(
		chunk("IHDR", make([]byte, 13)),
		textChunk("parameters", "a sunset\nSteps: 20, Seed: 1"),
		textChunk("prompt", `{"3": {"class_type": "KSampler"}}`),
		chunk("IDAT", []byte{1, 2, 3}),
		chunk("IEND", nil),
	)

	chunks, err := ReadTextChunks(bytes.NewReader(png))
	if err != nil {
		t.Fatalf("ReadTextChunks() error = %v", err)
	}

	if len(chunks) != 2 {
		t.Errorf("got %d chunks, want 2", len(chunks))
	}
	if chunks["parameters"] != "a sunset\nSteps: 20, Seed: 1" {
		t.Errorf("parameters = %q", chunks["parameters"])
	}
	if chunks["prompt"] != `{"3": {"class_type": "KSampler"}}` {
		t.Errorf("prompt = %q", chunks["prompt"])
	}
}

func TestReadTextChunksITXt(t *testing.T) {
	png := buildPNG(
		chunk("IHDR", make([]byte, 13)),
		itxtChunk("workflow", `{"1": {}}`),
		chunk("IEND", nil),
	)

	chunks, err := ReadTextChunks(bytes.NewReader(png))
	if err != nil {
		t.Fatalf("ReadTextChunks() error = %v", err)
	}
	if chunks["workflow"] != `{"1": {}}` {
		t.Errorf("workflow = %q", chunks["workflow"])
	}
}

func TestReadTextChunksNotPNG(t *testing.T) {
	_, err := ReadTextChunks(bytes.NewReader([]byte("GIF89a whatever")))
	if !errors.Is(err, ErrNotPNG) {
		t.Errorf("error = %v, want ErrNotPNG", err)
	}
}

func TestReadTextChunksTruncated(t *testing.T) {
	_, err := ReadTextChunks(bytes.NewReader([]byte{137, 80, 78}))
	if err == nil {
		t.Errorf("expected error for truncated header")
	}
}

func TestReadTextChunksMalformedTEXt(t *testing.T) {
	// tEXt payload without a null separator.
	png := buildPNG(chunk("tEXt", []byte("nokeywordseparator")))

	_, err := ReadTextChunks(bytes.NewReader(png))
	if err == nil {
		t.Errorf("expected error for malformed tEXt chunk")
	}
}

func TestReadTextChunksNoTextual(t *testing.T) {
	png := buildPNG(
		chunk("IHDR", make([]byte, 13)),
		chunk("IDAT", []byte{5, 6}),
		chunk("IEND", nil),
	)

	chunks, err := ReadTextChunks(bytes.NewReader(png))
	if err != nil {
		t.Fatalf("ReadTextChunks() error = %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("got %d chunks, want 0", len(chunks))
	}
}

func TestReadMetadata(t *testing.T) {
	png := buildPNG(
		chunk("IHDR", make([]byte, 13)),
		textChunk("parameters", "a lake"),
		chunk("IEND", nil),
	)

	meta, err := ReadMetadata(bytes.NewReader(png))
	if err != nil {
		t.Fatalf("ReadMetadata() error = %v", err)
	}
	if meta["parameters"] != "a lake" {
		t.Errorf("parameters = %v", meta["parameters"])
	}
}

func TestReadMetadataEmpty(t *testing.T) {
	png := buildPNG(chunk("IHDR", make([]byte, 13)), chunk("IEND", nil))

	meta, err := ReadMetadata(bytes.NewReader(png))
	if err != nil {
		t.Fatalf("ReadMetadata() error = %v", err)
	}
	if meta != nil {
		t.Errorf("ReadMetadata() = %v, want nil for no textual chunks", meta)
	}
}
