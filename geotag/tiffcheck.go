package geotag

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	tagMake       = 0x010F
	tagExifIFD    = 0x8769
	tagGPSIFD     = 0x8825
	tagInteropIFD = 0xA005
	tagMakerNote  = 0x927C

	maxDirectories = 32
)

// fieldSizes is the byte size of one value for each TIFF field type.
var fieldSizes = map[uint16]uint64{
	1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1,
	7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8,
}

var errBadTIFF = errors.New("malformed tiff structure")

// exifBlock returns the TIFF structure carrying the EXIF data: the whole
// input for a raw TIFF file, or the payload of the JPEG APP1 Exif segment.
// It returns nil for anything else.
func exifBlock(data []byte) []byte {
	if len(data) < 4 {
		return nil
	}
	switch string(data[:4]) {
	case "II*\x00", "MM\x00*":
		return data
	}
	if data[0] != 0xFF || data[1] != 0xD8 {
		return nil
	}

	for i := 2; i+4 <= len(data); {
		if data[i] != 0xFF {
			return nil
		}
		marker := data[i+1]
		switch {
		case marker == 0xFF:
			i++
			continue
		case marker == 0xD9 || marker == 0xDA:
			return nil
		case marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7):
			i += 2
			continue
		}

		n := int(binary.BigEndian.Uint16(data[i+2:]))
		if n < 2 || i+2+n > len(data) {
			return nil
		}
		seg := data[i+4 : i+2+n]
		if marker == 0xE1 && bytes.HasPrefix(seg, []byte("Exif\x00\x00")) {
			return seg[6:]
		}
		i += 2 + n
	}
	return nil
}

type ifdEntry struct {
	tag    uint16
	typ    uint16
	count  uint32
	offset uint32
	value  []byte
}

// tiffChecker verifies that every directory and value the EXIF decoder will
// read lies inside the block. Sizes are computed in 64 bits.
type tiffChecker struct {
	b         []byte
	order     binary.ByteOrder
	seen      map[uint32]bool
	make      string
	makerNote *ifdEntry
}

// checkTIFF reports whether block can be handed to the EXIF decoder.
func checkTIFF(block []byte) error {
	if len(block) < 8 {
		return fmt.Errorf("%w: short header", errBadTIFF)
	}
	var order binary.ByteOrder
	switch string(block[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return fmt.Errorf("%w: unknown byte order", errBadTIFF)
	}
	if order.Uint16(block[2:4]) != 42 {
		return fmt.Errorf("%w: bad magic", errBadTIFF)
	}

	c := &tiffChecker{b: block, order: order, seen: map[uint32]bool{}}
	if err := c.chain(order.Uint32(block[4:8])); err != nil {
		return err
	}
	return c.makerNotes()
}

// chain follows the linked list of top-level directories.
func (c *tiffChecker) chain(off uint32) error {
	for off != 0 {
		next, err := c.dir(off)
		if err != nil {
			return err
		}
		off = next
	}
	return nil
}

// dir checks one directory and the sub-IFDs it points at, and returns the
// offset of the next directory in the chain.
func (c *tiffChecker) dir(off uint32) (uint32, error) {
	if c.seen[off] {
		return 0, fmt.Errorf("%w: directory loop at %d", errBadTIFF, off)
	}
	if len(c.seen) >= maxDirectories {
		return 0, fmt.Errorf("%w: more than %d directories", errBadTIFF, maxDirectories)
	}
	c.seen[off] = true

	start := uint64(off)
	if start+2 > uint64(len(c.b)) {
		return 0, fmt.Errorf("%w: directory at %d out of range", errBadTIFF, off)
	}
	n := uint64(c.order.Uint16(c.b[start:]))
	end := start + 2 + 12*n + 4
	if end > uint64(len(c.b)) {
		return 0, fmt.Errorf("%w: directory at %d truncated", errBadTIFF, off)
	}

	var subs []uint32
	for i := uint64(0); i < n; i++ {
		at := start + 2 + 12*i
		e, err := c.entry(c.b[at : at+12])
		if err != nil {
			return 0, err
		}
		switch e.tag {
		case tagExifIFD, tagGPSIFD, tagInteropIFD:
			p, err := c.pointer(e)
			if err != nil {
				return 0, err
			}
			subs = append(subs, p)
		case tagMake:
			if e.typ == 2 {
				c.make = strings.TrimRight(string(e.value), "\x00 ")
			}
		case tagMakerNote:
			c.makerNote = e
		}
	}

	for _, p := range subs {
		if c.seen[p] {
			continue
		}
		if _, err := c.dir(p); err != nil {
			return 0, err
		}
	}
	return c.order.Uint32(c.b[end-4 : end]), nil
}

func (c *tiffChecker) entry(raw []byte) (*ifdEntry, error) {
	e := &ifdEntry{
		tag:   c.order.Uint16(raw[0:2]),
		typ:   c.order.Uint16(raw[2:4]),
		count: c.order.Uint32(raw[4:8]),
	}
	size, ok := fieldSizes[e.typ]
	if !ok {
		return nil, fmt.Errorf("%w: tag %#04x has unknown type %d", errBadTIFF, e.tag, e.typ)
	}

	total := size * uint64(e.count)
	if total <= 4 {
		e.value = raw[8 : 8+total]
		return e, nil
	}
	e.offset = c.order.Uint32(raw[8:12])
	if uint64(e.offset)+total > uint64(len(c.b)) {
		return nil, fmt.Errorf("%w: tag %#04x needs %d bytes at offset %d", errBadTIFF, e.tag, total, e.offset)
	}
	e.value = c.b[e.offset : uint64(e.offset)+total]
	return e, nil
}

func (c *tiffChecker) pointer(e *ifdEntry) (uint32, error) {
	if e.count > 0 {
		switch e.typ {
		case 3:
			return uint32(c.order.Uint16(e.value)), nil
		case 4:
			return c.order.Uint32(e.value), nil
		}
	}
	return 0, fmt.Errorf("%w: tag %#04x is not a directory offset", errBadTIFF, e.tag)
}

// makerNotes checks the vendor notes the registered mknote parsers decode:
// Nikon type 3 notes embed a TIFF block after a 10-byte header, and Canon
// notes are a bare directory addressed from the main block.
func (c *tiffChecker) makerNotes() error {
	mn := c.makerNote
	if mn == nil {
		return nil
	}
	if bytes.HasPrefix(mn.value, []byte("Nikon\x00")) {
		if len(mn.value) < 10 {
			return fmt.Errorf("%w: short Nikon maker note", errBadTIFF)
		}
		return checkTIFF(mn.value[10:])
	}
	if strings.HasPrefix(strings.ToLower(c.make), "canon") && mn.offset != 0 && !c.seen[mn.offset] {
		_, err := c.dir(mn.offset)
		return err
	}
	return nil
}
