// Package iconimg converts between icon resources and images.
package iconimg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/ZacharyZcR/ResPatch/internal/rsrc"
	"github.com/nfnt/resize"
	"github.com/tc-hib/winres"
	"golang.org/x/image/bmp"
)

const (
	bmpFileHeaderLen = 14
	dibHeaderLen     = 40
	dibV4HeaderLen   = 108
)

// Decode returns the image of an icon. PNG payloads are decoded as they
// are; DIB payloads are wrapped in a bitmap file header first.
func Decode(icon rsrc.Icon) (image.Image, error) {
	switch icon.MIME() {
	case "image/png":
		img, err := png.Decode(bytes.NewReader(icon.Pixels))
		if err != nil {
			return nil, fmt.Errorf("解码PNG图标失败: %w", err)
		}
		return img, nil
	case "image/bmp":
		return decodeDIB(icon.Pixels)
	}
	return nil, fmt.Errorf("不支持的图标格式: %s", icon.MIME())
}

// decodeDIB decodes the XOR bitmap of an icon DIB. The header's height
// covers the XOR and AND masks, so it is halved; the AND mask after the
// XOR rows is never read.
func decodeDIB(dib []byte) (image.Image, error) {
	if len(dib) < dibHeaderLen {
		return nil, fmt.Errorf("DIB头不完整: %d 字节", len(dib))
	}
	hdrLen := binary.LittleEndian.Uint32(dib[0:4])
	if hdrLen < dibHeaderLen || int(hdrLen) > len(dib) {
		return nil, fmt.Errorf("无效的DIB头长度: %d", hdrLen)
	}
	header := append([]byte(nil), dib[:hdrLen]...)
	pixels := dib[hdrLen:]

	height := int32(binary.LittleEndian.Uint32(header[8:12]))
	binary.LittleEndian.PutUint32(header[8:12], uint32(height/2))

	bitCount := binary.LittleEndian.Uint16(header[14:16])
	if bitCount == 32 && hdrLen == dibHeaderLen && hasAlpha(pixels) {
		header = alphaHeader(header)
	}

	var palette uint32
	if bitCount <= 8 {
		palette = binary.LittleEndian.Uint32(header[32:36])
		if palette == 0 {
			palette = 1 << bitCount
		}
	}
	offset := bmpFileHeaderLen + uint32(len(header)) + palette*4

	var file bytes.Buffer
	file.WriteString("BM")
	_ = binary.Write(&file, binary.LittleEndian, uint32(bmpFileHeaderLen+len(header)+len(pixels)))
	_ = binary.Write(&file, binary.LittleEndian, uint32(0))
	_ = binary.Write(&file, binary.LittleEndian, offset)
	file.Write(header)
	file.Write(pixels)

	img, err := bmp.Decode(&file)
	if err != nil {
		return nil, fmt.Errorf("解码DIB图标失败: %w", err)
	}
	return img, nil
}

// hasAlpha reports whether any 32-bit pixel has a non-zero alpha byte.
// Icons without one rely on the AND mask and are shown opaque.
func hasAlpha(pixels []byte) bool {
	for i := 3; i < len(pixels); i += 4 {
		if pixels[i] != 0 {
			return true
		}
	}
	return false
}

// alphaHeader extends a BITMAPINFOHEADER to a BITMAPV4HEADER with the
// default BGRA masks, so the decoder keeps the alpha channel.
func alphaHeader(header []byte) []byte {
	v4 := make([]byte, dibV4HeaderLen)
	copy(v4, header)
	binary.LittleEndian.PutUint32(v4[0:4], dibV4HeaderLen)
	binary.LittleEndian.PutUint32(v4[16:20], 3) // BI_BITFIELDS
	binary.LittleEndian.PutUint32(v4[40:44], 0x00ff0000)
	binary.LittleEndian.PutUint32(v4[44:48], 0x0000ff00)
	binary.LittleEndian.PutUint32(v4[48:52], 0x000000ff)
	binary.LittleEndian.PutUint32(v4[52:56], 0xff000000)
	return v4
}

// Thumbnail scales img to fit a size x size box, keeping its aspect ratio.
func Thumbnail(img image.Image, size int) image.Image {
	return resize.Thumbnail(uint(size), uint(size), img, resize.Lanczos3)
}

// FromImage renders img at each of the square sizes and returns one icon
// per size, largest first. A nil sizes uses 256, 64, 48, 32 and 16.
func FromImage(img image.Image, sizes []int) ([]rsrc.Icon, error) {
	ico, err := winres.NewIconFromResizedImage(img, sizes)
	if err != nil {
		return nil, fmt.Errorf("生成图标失败: %w", err)
	}
	var buf bytes.Buffer
	if err := ico.SaveICO(&buf); err != nil {
		return nil, fmt.Errorf("生成图标失败: %w", err)
	}
	return rsrc.LoadICO(&buf)
}

// Load reads an .ico file, or any image format registered with the image
// package and renders it at sizes.
func Load(r io.Reader, sizes []int) ([]rsrc.Icon, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("读取图标文件失败: %w", err)
	}
	if bytes.HasPrefix(data, []byte{0, 0, 1, 0}) {
		return rsrc.LoadICO(bytes.NewReader(data))
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("无法识别的图像: %w", err)
	}
	return FromImage(img, sizes)
}
