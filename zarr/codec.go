package zarr

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Codec is a byte-level numcodecs codec, usable as compressor or filter.
type Codec interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
	Config() CodecConfig
}

// NewCodec builds the codec described by cfg.
func NewCodec(cfg CodecConfig) (Codec, error) {
	switch cfg.ID {
	case "zlib":
		return &Zlib{Level: cfg.Level}, nil
	case "gzip":
		return &Gzip{Level: cfg.Level}, nil
	case "zstd":
		return &Zstd{Level: cfg.Level}, nil
	case "shuffle":
		if cfg.ElementSize <= 0 {
			return nil, errors.Errorf("invalid shuffle element size: %d", cfg.ElementSize)
		}
		return &Shuffle{ElementSize: cfg.ElementSize}, nil
	default:
		return nil, errors.Errorf("unsupported codec: %s", cfg.ID)
	}
}

// Zlib compresses with zlib (RFC 1950) at the given level.
type Zlib struct {
	Level int
}

func (z *Zlib) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, z.Level)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init zlib writer")
	}
	if _, err := zw.Write(data); err != nil {
		return nil, errors.Wrap(err, "failed to compress zlib chunk")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to compress zlib chunk")
	}
	return buf.Bytes(), nil
}

func (z *Zlib) Decode(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to init zlib reader")
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress zlib chunk")
	}
	return out, nil
}

func (z *Zlib) Config() CodecConfig { return CodecConfig{ID: "zlib", Level: z.Level} }

// Gzip compresses with gzip (RFC 1952) at the given level.
type Gzip struct {
	Level int
}

func (g *Gzip) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, g.Level)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init gzip writer")
	}
	if _, err := gw.Write(data); err != nil {
		return nil, errors.Wrap(err, "failed to compress gzip chunk")
	}
	if err := gw.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to compress gzip chunk")
	}
	return buf.Bytes(), nil
}

func (g *Gzip) Decode(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to init gzip reader")
	}
	defer gr.Close()
	out, err := io.ReadAll(gr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress gzip chunk")
	}
	return out, nil
}

func (g *Gzip) Config() CodecConfig { return CodecConfig{ID: "gzip", Level: g.Level} }

// Zstd compresses with Zstandard. Encoder and decoder are created once and
// shared; both are safe for concurrent EncodeAll/DecodeAll calls.
type Zstd struct {
	Level int

	once    sync.Once
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	err     error
}

func (z *Zstd) init() error {
	z.once.Do(func() {
		level := z.Level
		if level <= 0 {
			level = 3
		}
		z.encoder, z.err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if z.err != nil {
			return
		}
		z.decoder, z.err = zstd.NewReader(nil)
	})
	return errors.Wrap(z.err, "failed to create zstd codec")
}

func (z *Zstd) Encode(data []byte) ([]byte, error) {
	if err := z.init(); err != nil {
		return nil, err
	}
	return z.encoder.EncodeAll(data, nil), nil
}

func (z *Zstd) Decode(data []byte) ([]byte, error) {
	if err := z.init(); err != nil {
		return nil, err
	}
	out, err := z.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress zstd chunk")
	}
	return out, nil
}

func (z *Zstd) Config() CodecConfig { return CodecConfig{ID: "zstd", Level: z.Level} }

// Shuffle is the numcodecs byte shuffle filter: the i-th byte of every
// element is grouped together. Trailing bytes that do not form a whole
// element are left in place.
type Shuffle struct {
	ElementSize int
}

func (s *Shuffle) Encode(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	n := s.ElementSize
	count := len(data) / n
	for i := 0; i < count; i++ {
		for b := 0; b < n; b++ {
			out[b*count+i] = data[i*n+b]
		}
	}
	copy(out[count*n:], data[count*n:])
	return out, nil
}

func (s *Shuffle) Decode(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	n := s.ElementSize
	count := len(data) / n
	for i := 0; i < count; i++ {
		for b := 0; b < n; b++ {
			out[i*n+b] = data[b*count+i]
		}
	}
	copy(out[count*n:], data[count*n:])
	return out, nil
}

func (s *Shuffle) Config() CodecConfig {
	return CodecConfig{ID: "shuffle", ElementSize: s.ElementSize}
}

// VLenUTF8ID is the numcodecs id of the variable-length string codec.
const VLenUTF8ID = "vlen-utf8"

// EncodeVLenUTF8 serializes strings the way numcodecs VLenUTF8 does: a
// little-endian uint32 item count, then each item as uint32 length + bytes.
func EncodeVLenUTF8(values []string) []byte {
	size := 4
	for _, v := range values {
		size += 4 + len(v)
	}
	out := make([]byte, 4, size)
	binary.LittleEndian.PutUint32(out, uint32(len(values)))
	var n [4]byte
	for _, v := range values {
		binary.LittleEndian.PutUint32(n[:], uint32(len(v)))
		out = append(out, n[:]...)
		out = append(out, v...)
	}
	return out
}

// DecodeVLenUTF8 is the inverse of EncodeVLenUTF8.
func DecodeVLenUTF8(data []byte) ([]string, error) {
	if len(data) < 4 {
		return nil, errors.New("vlen-utf8 buffer too short")
	}
	count := int(binary.LittleEndian.Uint32(data))
	data = data[4:]
	out := make([]string, count)
	for i := range out {
		if len(data) < 4 {
			return nil, errors.Errorf("vlen-utf8 buffer truncated at item %d", i)
		}
		n := int(binary.LittleEndian.Uint32(data))
		data = data[4:]
		if len(data) < n {
			return nil, errors.Errorf("vlen-utf8 buffer truncated at item %d", i)
		}
		out[i] = string(data[:n])
		data = data[n:]
	}
	return out, nil
}

// pipeline holds the byte codecs of an array in encode order.
type pipeline struct {
	filters    []Codec
	compressor Codec
}

func newPipeline(meta *Metadata) (*pipeline, error) {
	p := &pipeline{}
	for _, f := range meta.Filters {
		if f.ID == VLenUTF8ID {
			continue
		}
		c, err := NewCodec(f)
		if err != nil {
			return nil, err
		}
		p.filters = append(p.filters, c)
	}
	if meta.Compressor != nil {
		c, err := NewCodec(*meta.Compressor)
		if err != nil {
			return nil, err
		}
		p.compressor = c
	}
	return p, nil
}

func (p *pipeline) encode(data []byte) ([]byte, error) {
	var err error
	for _, f := range p.filters {
		if data, err = f.Encode(data); err != nil {
			return nil, err
		}
	}
	if p.compressor != nil {
		return p.compressor.Encode(data)
	}
	return data, nil
}

func (p *pipeline) decode(data []byte) ([]byte, error) {
	var err error
	if p.compressor != nil {
		if data, err = p.compressor.Decode(data); err != nil {
			return nil, err
		}
	}
	for i := len(p.filters) - 1; i >= 0; i-- {
		if data, err = p.filters[i].Decode(data); err != nil {
			return nil, err
		}
	}
	return data, nil
}
