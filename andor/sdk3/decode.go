package sdk3

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// metadata block identifiers
const (
	cidFrameData = 0
	cidTicks     = 1
	cidFrameInfo = 7

	// every block ends in a 4 byte CID and a 4 byte length
	blockTrailer = 8
)

var (
	// ErrUnsupportedEncoding is returned when a pixel encoding cannot be decoded into 16-bit samples
	ErrUnsupportedEncoding = errors.New("unsupported pixel encoding")

	// ErrShortBuffer is returned when a buffer cannot hold the frame its layout describes
	ErrShortBuffer = errors.New("buffer is shorter than stride*height")

	// ErrMalformedMetadata is returned when the trailing metadata block chain is inconsistent
	ErrMalformedMetadata = errors.New("malformed metadata")

	// PixelEncodings lists the encodings by the index the SDK reports in frame info metadata
	PixelEncodings = []string{"Mono12", "Mono12Packed", "Mono16", "Mono32"}
)

// Layout describes how a frame sits in a raw SDK buffer
type Layout struct {
	// Width is the AOI width in pixels
	Width int `json:"width"`

	// Height is the AOI height in pixels
	Height int `json:"height"`

	// Stride is the padded length of one row in bytes
	Stride int `json:"stride"`

	// Encoding is the PixelEncoding enum value, e.g. Mono16
	Encoding string `json:"encoding"`

	// Metadata indicates MetadataEnable was on when the frame was taken
	Metadata bool `json:"metadata"`
}

// Frame is a decoded image
type Frame struct {
	// Pix holds Height rows of Width samples
	Pix [][]uint16

	// Width is the number of samples per row
	Width int

	// Height is the number of rows
	Height int

	// Timestamp is the device clock in ticks, zero without metadata
	Timestamp uint64
}

// BytesPerRow is the unpadded length of one row of an encoding in bytes
func BytesPerRow(encoding string, width int) (int, error) {
	switch encoding {
	case "Mono12", "Mono16":
		return 2 * width, nil
	case "Mono12Packed":
		return (3*width + 1) / 2, nil
	case "Mono32":
		return 4 * width, nil
	}
	return 0, fmt.Errorf("%w %q", ErrUnsupportedEncoding, encoding)
}

// Decode converts a raw buffer into a Frame
func Decode(buf []byte, l Layout) (Frame, error) {
	var ticks uint64
	if l.Metadata {
		md, err := parseMetadata(buf)
		if err != nil {
			return Frame{}, err
		}
		buf = md.image
		ticks = md.ticks
		if md.hasInfo {
			l.Width, l.Height, l.Stride, l.Encoding = md.info.Width, md.info.Height, md.info.Stride, md.info.Encoding
		}
	}
	pix, err := unpack(buf, l)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Pix: pix, Width: l.Width, Height: l.Height, Timestamp: ticks}, nil
}

func unpack(buf []byte, l Layout) ([][]uint16, error) {
	rowBytes, err := BytesPerRow(l.Encoding, l.Width)
	if err != nil {
		return nil, err
	}
	if l.Encoding == "Mono32" {
		return nil, fmt.Errorf("%w %q into 16-bit samples", ErrUnsupportedEncoding, l.Encoding)
	}
	if l.Stride < rowBytes {
		return nil, fmt.Errorf("stride %d smaller than row of %d bytes", l.Stride, rowBytes)
	}
	// the last row need not carry its padding
	if need := l.Stride*(l.Height-1) + rowBytes; l.Height > 0 && len(buf) < need {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrShortBuffer, len(buf), need)
	}
	pix := make([][]uint16, l.Height)
	for row := 0; row < l.Height; row++ {
		src := buf[row*l.Stride : row*l.Stride+rowBytes]
		dst := make([]uint16, l.Width)
		if l.Encoding == "Mono12Packed" {
			unpack12(src, dst)
		} else {
			for i := range dst {
				dst[i] = binary.LittleEndian.Uint16(src[2*i:])
			}
		}
		pix[row] = dst
	}
	return pix, nil
}

// unpack12 expands 3 bytes into 2 pixels.  The middle byte holds the low
// nibbles, first pixel in its low half
func unpack12(src []byte, dst []uint16) {
	for i := 0; i < len(dst); i += 2 {
		j := 3 * i / 2
		dst[i] = uint16(src[j])<<4 | uint16(src[j+1]&0xF)
		if i+1 < len(dst) {
			dst[i+1] = uint16(src[j+2])<<4 | uint16(src[j+1]>>4)
		}
	}
}

// pack12 is the inverse of unpack12
func pack12(src []uint16, dst []byte) {
	for i := 0; i < len(src); i += 2 {
		j := 3 * i / 2
		dst[j] = byte(src[i] >> 4)
		lo := byte(src[i] & 0xF)
		if i+1 < len(src) {
			dst[j+2] = byte(src[i+1] >> 4)
			lo |= byte(src[i+1]&0xF) << 4
		}
		dst[j+1] = lo
	}
}

type metadata struct {
	image   []byte
	ticks   uint64
	info    Layout
	hasInfo bool
}

// parseMetadata walks the metadata blocks back from the end of the buffer
// until it reaches the frame data block
func parseMetadata(buf []byte) (metadata, error) {
	md := metadata{}
	pos := len(buf)
	for {
		if pos < blockTrailer {
			return md, fmt.Errorf("%w: no frame data block", ErrMalformedMetadata)
		}
		length := int(binary.LittleEndian.Uint32(buf[pos-4 : pos]))
		cid := binary.LittleEndian.Uint32(buf[pos-8 : pos-4])
		datalen := length - 4 // length counts the CID
		start := pos - blockTrailer - datalen
		if datalen < 0 || start < 0 {
			return md, fmt.Errorf("%w: block CID %d of length %d overruns buffer", ErrMalformedMetadata, cid, length)
		}
		data := buf[start : pos-blockTrailer]
		switch cid {
		case cidFrameData:
			md.image = data
			return md, nil
		case cidTicks:
			if len(data) != 8 {
				return md, fmt.Errorf("%w: ticks block of %d bytes", ErrMalformedMetadata, len(data))
			}
			md.ticks = binary.LittleEndian.Uint64(data)
		case cidFrameInfo:
			if len(data) != 8 {
				return md, fmt.Errorf("%w: frame info block of %d bytes", ErrMalformedMetadata, len(data))
			}
			enc := int(data[5])
			if enc >= len(PixelEncodings) {
				return md, fmt.Errorf("%w: pixel encoding index %d", ErrMalformedMetadata, enc)
			}
			md.info = Layout{
				Height:   int(binary.LittleEndian.Uint16(data[0:])),
				Width:    int(binary.LittleEndian.Uint16(data[2:])),
				Encoding: PixelEncodings[enc],
				Stride:   int(binary.LittleEndian.Uint16(data[6:])),
			}
			md.hasInfo = true
		}
		// unknown CIDs are skipped
		pos = start
	}
}

// appendBlock appends one metadata block to buf
func appendBlock(buf []byte, cid uint32, data []byte) []byte {
	buf = append(buf, data...)
	var trailer [blockTrailer]byte
	binary.LittleEndian.PutUint32(trailer[0:], cid)
	binary.LittleEndian.PutUint32(trailer[4:], uint32(len(data)+4))
	return append(buf, trailer[:]...)
}

// Encode is the inverse of Decode; it lays pix out in a raw buffer the way
// the SDK does, appending metadata blocks when l.Metadata is set
func Encode(pix [][]uint16, ticks uint64, l Layout) ([]byte, error) {
	rowBytes, err := BytesPerRow(l.Encoding, l.Width)
	if err != nil {
		return nil, err
	}
	if l.Encoding == "Mono32" {
		return nil, fmt.Errorf("%w %q from 16-bit samples", ErrUnsupportedEncoding, l.Encoding)
	}
	if l.Stride < rowBytes {
		return nil, fmt.Errorf("stride %d smaller than row of %d bytes", l.Stride, rowBytes)
	}
	img := make([]byte, l.Stride*l.Height)
	for row := 0; row < l.Height && row < len(pix); row++ {
		dst := img[row*l.Stride : row*l.Stride+rowBytes]
		if l.Encoding == "Mono12Packed" {
			pack12(pix[row], dst)
			continue
		}
		for i := 0; i < l.Width && i < len(pix[row]); i++ {
			binary.LittleEndian.PutUint16(dst[2*i:], pix[row][i])
		}
	}
	if !l.Metadata {
		return img, nil
	}
	enc := -1
	for i, s := range PixelEncodings {
		if s == l.Encoding {
			enc = i
		}
	}
	buf := appendBlock(nil, cidFrameData, img)
	tbuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(tbuf, ticks)
	buf = appendBlock(buf, cidTicks, tbuf)
	info := make([]byte, 8)
	binary.LittleEndian.PutUint16(info[0:], uint16(l.Height))
	binary.LittleEndian.PutUint16(info[2:], uint16(l.Width))
	info[5] = byte(enc)
	binary.LittleEndian.PutUint16(info[6:], uint16(l.Stride))
	return appendBlock(buf, cidFrameInfo, info), nil
}
