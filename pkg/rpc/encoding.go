package rpc

import (
	"encoding/base64"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/mr-tron/base58"
)

// Account data encodings
const (
	EncodingBase58     = "base58"
	EncodingBase64     = "base64"
	EncodingBase64Zstd = "base64+zstd"
)

// maxBase58Data is the largest account data returned as base58.
const maxBase58Data = 128

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// EncodeAccountData encodes account data as a [data, encoding] pair.
func EncodeAccountData(data []byte, encoding string) ([]interface{}, error) {
	switch encoding {
	case EncodingBase58:
		if len(data) > maxBase58Data {
			return nil, fmt.Errorf("data too large for base58 encoding (%d bytes), use base64", len(data))
		}
		return []interface{}{base58.Encode(data), EncodingBase58}, nil
	case EncodingBase64, "":
		return []interface{}{base64.StdEncoding.EncodeToString(data), EncodingBase64}, nil
	case EncodingBase64Zstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		return []interface{}{base64.StdEncoding.EncodeToString(compressed), EncodingBase64Zstd}, nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// DecodeAccountData reverses EncodeAccountData.
func DecodeAccountData(encoded string, encoding string) ([]byte, error) {
	switch encoding {
	case EncodingBase58:
		return base58.Decode(encoded)
	case EncodingBase64, "":
		return base64.StdEncoding.DecodeString(encoded)
	case EncodingBase64Zstd:
		compressed, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, err
		}
		return zstdDecoder.DecodeAll(compressed, nil)
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// ValidateEncoding reports whether encoding is supported.
func ValidateEncoding(encoding string) error {
	switch encoding {
	case EncodingBase58, EncodingBase64, EncodingBase64Zstd, "":
		return nil
	default:
		return fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// SliceData returns the part of data selected by slice, clamped to its
// bounds. A nil slice selects everything.
func SliceData(data []byte, slice *DataSlice) []byte {
	if slice == nil {
		return data
	}
	if slice.Offset >= uint64(len(data)) {
		return []byte{}
	}
	end := slice.Offset + slice.Length
	if end > uint64(len(data)) || end < slice.Offset {
		end = uint64(len(data))
	}
	return data[slice.Offset:end]
}
