package cardmaker

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"math"
)

// PNG structure constants.
var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

const (
	pngChunkHeaderLen = 8 // 4-byte length + 4-byte type
	pngChunkCRCLen    = 4
	metersPerInch     = 0.0254
)

// setPNGDensity splices a pHYs chunk declaring the given DPI into a PNG,
// immediately after IHDR. Any existing pHYs chunk is dropped. Input that
// is not a well-formed PNG is returned unchanged.
func setPNGDensity(png []byte, dpi int) []byte {
	if !bytes.HasPrefix(png, pngSignature) {
		return png
	}

	out := make([]byte, 0, len(png)+pngChunkHeaderLen+9+pngChunkCRCLen)
	out = append(out, pngSignature...)

	offset := len(pngSignature)
	for offset+pngChunkHeaderLen <= len(png) {
		length := int(binary.BigEndian.Uint32(png[offset:]))
		end := offset + pngChunkHeaderLen + length + pngChunkCRCLen
		if end > len(png) {
			return png
		}
		chunkType := string(png[offset+4 : offset+8])

		if chunkType != "pHYs" {
			out = append(out, png[offset:end]...)
		}
		if chunkType == "IHDR" {
			out = append(out, physChunk(dpi)...)
		}
		offset = end
	}
	return out
}

// physChunk builds a pHYs chunk for the given DPI: X/Y pixels per meter
// plus the meter unit flag, wrapped with length and CRC.
func physChunk(dpi int) []byte {
	ppm := uint32(math.Round(float64(dpi) / metersPerInch))

	data := make([]byte, 9)
	binary.BigEndian.PutUint32(data[0:], ppm)
	binary.BigEndian.PutUint32(data[4:], ppm)
	data[8] = 1 // unit: meter

	chunk := make([]byte, 0, pngChunkHeaderLen+len(data)+pngChunkCRCLen)
	chunk = binary.BigEndian.AppendUint32(chunk, uint32(len(data)))
	chunk = append(chunk, "pHYs"...)
	chunk = append(chunk, data...)
	chunk = binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(chunk[4:]))
	return chunk
}
