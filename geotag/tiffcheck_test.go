package geotag

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gt "photoTracker/geotag/geotagtest"
)

func TestExtractHugeTagCount(t *testing.T) {
	// 0x40000001 LONGs wrap to 4 bytes in 32-bit arithmetic.
	huge := gt.Entry{Tag: 0x0112, Type: 4, Count: 0x40000001, Data: []byte{1, 0, 0, 0}}
	img := gt.JPEG(gt.TIFF(append(gt.Camera("C", "M"), huge), nil))

	r, err := Extract(img)
	require.NoError(t, err)
	assert.Equal(t, StatusNoMetadata, r.Status)
	assert.Empty(t, r.Device)
	assert.Nil(t, r.Location)
	assert.Equal(t, "unknown", r.Make())
}

func TestExtractHugeGPSCount(t *testing.T) {
	gps := gt.GPS("N", gt.DMS(10, 0, 0), "E", gt.DMS(20, 0, 0))
	gps[1].Count = 0x20000001

	r, err := Extract(gt.JPEG(gt.TIFF(gt.Camera("C", "M"), gps)))
	require.NoError(t, err)
	assert.Equal(t, StatusNoMetadata, r.Status)
	assert.Nil(t, r.Location)
}

func TestCheckTIFF(t *testing.T) {
	block := gt.TIFF(gt.Camera("TestCam", "Model X"), gt.GPS("S", gt.DMS(10, 30, 0), "E", gt.DMS(20, 0, 0)))
	require.NoError(t, checkTIFF(block))

	// IFD0 at 8 holds two Camera entries plus the GPS pointer; point its
	// next-directory link back at itself.
	loop := append([]byte(nil), block...)
	binary.LittleEndian.PutUint32(loop[8+2+12*3:], 8)
	assert.True(t, errors.Is(checkTIFF(loop), errBadTIFF))

	badPtr := append([]byte(nil), block...)
	binary.LittleEndian.PutUint32(badPtr[8+2+12*2+8:], uint32(len(block)+100))
	assert.True(t, errors.Is(checkTIFF(badPtr), errBadTIFF))

	assert.Error(t, checkTIFF(block[:6]))
	assert.Error(t, checkTIFF([]byte("XX*\x00\x08\x00\x00\x00")))
}

func TestExifBlock(t *testing.T) {
	block := gt.TIFF(gt.Camera("TestCam", "Model X"), nil)
	assert.Equal(t, block, exifBlock(gt.JPEG(block)))
	assert.Equal(t, block, exifBlock(block))
	assert.Nil(t, exifBlock(gt.JPEG(nil)))
	assert.Nil(t, exifBlock(gt.PNG()))
	assert.Nil(t, exifBlock([]byte{0xFF}))
}

func TestExtractSurvivesCorruptExif(t *testing.T) {
	block := gt.TIFF(
		gt.Camera("TestCam", "Model X"),
		gt.GPS("S", gt.DMS(10, 30, 0), "E", gt.DMS(20, 0, 0)),
	)
	img := gt.JPEG(block)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		buf := append([]byte(nil), img...)
		for n := 1 + rng.Intn(4); n > 0; n-- {
			buf[gt.ExifOffset+rng.Intn(len(block))] = byte(rng.Intn(256))
		}
		r, err := Extract(buf)
		require.NoError(t, err, "case %d", i)
		if r.Status == StatusFound {
			assert.NotNil(t, r.Location, "case %d", i)
		} else {
			assert.Nil(t, r.Location, "case %d", i)
		}
	}
}

func TestExtractPixelLimit(t *testing.T) {
	for name, img := range map[string][]byte{
		"png header": gt.PNGHeader(60000, 60000),
		"jpeg sof":   gt.JPEGSize(60000, 60000),
	} {
		_, err := Extract(img)
		assert.True(t, errors.Is(err, ErrDecode), name)
	}

	_, err := ExtractWithLimit(gt.JPEG(nil), 100)
	assert.True(t, errors.Is(err, ErrDecode))

	r, err := ExtractWithLimit(gt.JPEG(nil), 32*16)
	require.NoError(t, err)
	assert.Equal(t, StatusNoMetadata, r.Status)

	_, err = Extract(gt.PNGHeader(0, 10))
	assert.True(t, errors.Is(err, ErrDecode))
}
