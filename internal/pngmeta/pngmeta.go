// Package pngmeta reads the textual sidecar metadata that image
// generation tools embed in PNG files (tEXt and uncompressed iTXt
// chunks). ComfyUI stores its workflow graph under "prompt" and
// "workflow", A1111 its parameter block under "parameters", SwarmUI
// its settings under "sui_image_params".
package pngmeta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var pngSignature = []byte{137, 80, 78, 71, 13, 10, 26, 10}

// ErrNotPNG is returned when the stream does not start with a PNG
// signature. Callers treat it as "no sidecar metadata".
var ErrNotPNG = errors.New("not a valid PNG file")

const maxChunkSize = 64 * 1024 * 1024

// ReadTextChunks scans a PNG stream and returns its textual chunks
// keyed by keyword.
func ReadTextChunks(r io.Reader) (map[string]string, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read PNG header: %w", err)
	}
	if !bytes.Equal(header, pngSignature) {
		return nil, ErrNotPNG
	}

	chunks := make(map[string]string)

	for {
		var length uint32
		err := binary.Read(r, binary.BigEndian, &length)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read chunk length: %w", err)
		}
		if length > maxChunkSize {
			return nil, fmt.Errorf("chunk too large: %d bytes", length)
		}

		chunkType := make([]byte, 4)
		if _, err := io.ReadFull(r, chunkType); err != nil {
			return nil, fmt.Errorf("failed to read chunk type: %w", err)
		}

		switch string(chunkType) {
		case "tEXt":
			data := make([]byte, length)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("failed to read tEXt chunk: %w", err)
			}
			keyword, text, err := splitTEXt(data)
			if err != nil {
				return nil, err
			}
			chunks[keyword] = text

		case "iTXt":
			data := make([]byte, length)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("failed to read iTXt chunk: %w", err)
			}
			keyword, text, ok := splitITXt(data)
			if ok {
				chunks[keyword] = text
			}

		case "IEND":
			return chunks, nil

		default:
			if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
				return nil, fmt.Errorf("failed to skip chunk: %w", err)
			}
		}

		// CRC
		if _, err := io.CopyN(io.Discard, r, 4); err != nil {
			return nil, fmt.Errorf("failed to skip chunk CRC: %w", err)
		}
	}

	return chunks, nil
}

// ReadMetadata reads the textual chunks of a PNG stream into the raw
// metadata form the extractor consumes.
func ReadMetadata(r io.Reader) (map[string]interface{}, error) {
	chunks, err := ReadTextChunks(r)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	meta := make(map[string]interface{}, len(chunks))
	for k, v := range chunks {
		meta[k] = v
	}
	return meta, nil
}

// splitTEXt separates a tEXt chunk into keyword and text.
func splitTEXt(data []byte) (string, string, error) {
	sep := bytes.IndexByte(data, 0)
	if sep == -1 {
		return "", "", errors.New("malformed tEXt chunk")
	}
	return string(data[:sep]), string(data[sep+1:]), nil
}

// splitITXt separates an iTXt chunk into keyword and text. Compressed
// payloads are skipped; generation tools write uncompressed chunks.
func splitITXt(data []byte) (string, string, bool) {
	sep := bytes.IndexByte(data, 0)
	if sep == -1 || len(data) < sep+3 {
		return "", "", false
	}
	keyword := string(data[:sep])

	compressionFlag := data[sep+1]
	if compressionFlag != 0 {
		return "", "", false
	}

	// Skip compression method, then the null-terminated language tag
	// and translated keyword.
	rest := data[sep+3:]
	for i := 0; i < 2; i++ {
		next := bytes.IndexByte(rest, 0)
		if next == -1 {
			return "", "", false
		}
		rest = rest[next+1:]
	}

	return keyword, string(rest), true
}
