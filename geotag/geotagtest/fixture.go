// Package geotagtest builds small in-memory images carrying hand-assembled
// EXIF blocks, for tests that need real decoder input.
package geotagtest

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
)

// TIFF field types used by the fixtures.
const (
	typeASCII    uint16 = 2
	typeLong     uint16 = 4
	typeRational uint16 = 5
)

// Tag numbers from the EXIF and GPS IFD tables.
const (
	TagMake            uint16 = 0x010F
	TagModel           uint16 = 0x0110
	TagGPSInfo         uint16 = 0x8825
	TagGPSLatitudeRef  uint16 = 0x0001
	TagGPSLatitude     uint16 = 0x0002
	TagGPSLongitudeRef uint16 = 0x0003
	TagGPSLongitude    uint16 = 0x0004
)

var le = binary.LittleEndian

// Entry is one IFD entry with its raw little-endian value bytes.
type Entry struct {
	Tag   uint16
	Type  uint16
	Count uint32
	Data  []byte
}

func ASCII(tag uint16, s string) Entry {
	b := append([]byte(s), 0)
	return Entry{Tag: tag, Type: typeASCII, Count: uint32(len(b)), Data: b}
}

func Long(tag uint16, v uint32) Entry {
	b := make([]byte, 4)
	le.PutUint32(b, v)
	return Entry{Tag: tag, Type: typeLong, Count: 1, Data: b}
}

// Rational encodes numerator/denominator pairs.
func Rational(tag uint16, pairs ...[2]uint32) Entry {
	b := make([]byte, 0, 8*len(pairs))
	for _, p := range pairs {
		b = le.AppendUint32(b, p[0])
		b = le.AppendUint32(b, p[1])
	}
	return Entry{Tag: tag, Type: typeRational, Count: uint32(len(pairs)), Data: b}
}

// DMS is a whole-number degrees/minutes/seconds triple as rationals over 1.
func DMS(d, m, s uint32) [][2]uint32 {
	return [][2]uint32{{d, 1}, {m, 1}, {s, 1}}
}

// Camera returns IFD0 entries for a make and model.
func Camera(make, model string) []Entry {
	return []Entry{ASCII(TagMake, make), ASCII(TagModel, model)}
}

// GPS returns GPS IFD entries for a full coordinate.
func GPS(latRef string, lat [][2]uint32, lonRef string, lon [][2]uint32) []Entry {
	return []Entry{
		ASCII(TagGPSLatitudeRef, latRef),
		Rational(TagGPSLatitude, lat...),
		ASCII(TagGPSLongitudeRef, lonRef),
		Rational(TagGPSLongitude, lon...),
	}
}

// TIFF lays out a little-endian TIFF block with IFD0 and, when gps is non-nil,
// a GPS sub-IFD linked from IFD0.
func TIFF(ifd0 []Entry, gps []Entry) []byte {
	const headerLen = 8
	entries := append([]Entry(nil), ifd0...)
	if gps != nil {
		entries = append(entries, Long(TagGPSInfo, 0))
	}

	first := encodeIFD(entries, headerLen)
	if gps != nil {
		gpsStart := uint32(headerLen + len(first))
		entries[len(entries)-1] = Long(TagGPSInfo, gpsStart)
		first = encodeIFD(entries, headerLen)
	}

	var buf bytes.Buffer
	buf.WriteString("II")
	_ = binary.Write(&buf, le, uint16(42))
	_ = binary.Write(&buf, le, uint32(headerLen))
	buf.Write(first)
	if gps != nil {
		buf.Write(encodeIFD(gps, uint32(buf.Len())))
	}
	return buf.Bytes()
}

func encodeIFD(entries []Entry, start uint32) []byte {
	dirLen := uint32(2 + 12*len(entries) + 4)
	dataOff := start + dirLen

	var dir, data bytes.Buffer
	_ = binary.Write(&dir, le, uint16(len(entries)))
	for _, e := range entries {
		_ = binary.Write(&dir, le, e.Tag)
		_ = binary.Write(&dir, le, e.Type)
		_ = binary.Write(&dir, le, e.Count)
		if len(e.Data) <= 4 {
			v := make([]byte, 4)
			copy(v, e.Data)
			dir.Write(v)
			continue
		}
		_ = binary.Write(&dir, le, dataOff+uint32(data.Len()))
		data.Write(e.Data)
		if data.Len()%2 == 1 {
			data.WriteByte(0)
		}
	}
	_ = binary.Write(&dir, le, uint32(0))
	return append(dir.Bytes(), data.Bytes()...)
}

// JPEG encodes a small test picture and, when tiffBlock is non-nil, splices it
// in as an APP1 EXIF segment right after the SOI marker.
func JPEG(tiffBlock []byte) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), &jpeg.Options{Quality: 90}); err != nil {
		panic(err)
	}
	raw := buf.Bytes()
	if tiffBlock == nil {
		return raw
	}

	payload := append([]byte("Exif\x00\x00"), tiffBlock...)
	seg := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	seg = append(seg, payload...)

	out := make([]byte, 0, len(raw)+len(seg))
	out = append(out, raw[:2]...)
	out = append(out, seg...)
	out = append(out, raw[2:]...)
	return out
}

// PNG encodes a small test picture with no metadata.
func PNG() []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// PNGHeader returns a PNG that declares a w x h RGBA image but carries no
// pixel data.
func PNGHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA
	writeChunk(&buf, "IHDR", ihdr)
	writeChunk(&buf, "IDAT", nil)
	writeChunk(&buf, "IEND", nil)
	return buf.Bytes()
}

func writeChunk(buf *bytes.Buffer, typ string, data []byte) {
	_ = binary.Write(buf, binary.BigEndian, uint32(len(data)))
	crc := crc32.NewIEEE()
	_, _ = crc.Write([]byte(typ))
	_, _ = crc.Write(data)
	buf.WriteString(typ)
	buf.Write(data)
	_ = binary.Write(buf, binary.BigEndian, crc.Sum32())
}

// JPEGSize encodes the test picture and rewrites its SOF0 frame header to
// declare w x h, leaving the scan data as it is.
func JPEGSize(w, h uint16) []byte {
	raw := JPEG(nil)
	i := bytes.Index(raw, []byte{0xFF, 0xC0})
	if i < 0 {
		panic("geotagtest: no SOF0 marker")
	}
	binary.BigEndian.PutUint16(raw[i+5:], h)
	binary.BigEndian.PutUint16(raw[i+7:], w)
	return raw
}

// ExifOffset is where the TIFF block starts inside the output of JPEG.
const ExifOffset = 2 + 4 + 6

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	return img
}
