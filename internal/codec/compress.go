package codec

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Every snapshot table body and every delta blob is wrapped in a zstd frame:
// the columnar/RLE layers remove structural redundancy (repeated names,
// monotonic counters), and zstd mops up whatever correlation is left across
// the whole body.
var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder

	decoderOnce sync.Once
	decoder     *zstd.Decoder
)

func getEncoder() *zstd.Encoder {
	encoderOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(err) // zstd.NewWriter only fails on invalid options, which we don't pass
		}
		encoder = enc
	})
	return encoder
}

func getDecoder() *zstd.Decoder {
	decoderOnce.Do(func() {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(err)
		}
		decoder = dec
	})
	return decoder
}

func compress(data []byte) []byte {
	return getEncoder().EncodeAll(data, make([]byte, 0, len(data)))
}

func decompress(data []byte) ([]byte, error) {
	out, err := getDecoder().DecodeAll(data, nil)
	if err != nil {
		return nil, malformed("zstd", err.Error())
	}
	return out, nil
}
