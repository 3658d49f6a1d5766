package kvstore

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

func putUvarint(v uint64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, v)
	return buf[:n]
}

func getUvarint(buf []byte) (uint64, int, error) {
	v, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, 0, errors.New("corrupt field table: bad varint")
	}
	return v, n, nil
}
