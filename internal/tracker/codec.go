package tracker

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// 二进制快照布局（全部大端）：
//
//	[version:1][count:4] 之后逐条目 [seconds:4][keylen:2][key bytes]
//
// 版本号用于防御未来布局变更；key 长度超过 uint16 上限的条目不参与序列化
// （缓存 key 是文件路径，正常不会达到 64 KiB）。
const codecVersion = 1

// ToBytes 序列化当前全部 (key, 量化时间) 对，与 FromBytes 构成精确往返。
func (t *AccessTracker) ToBytes() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var buf bytes.Buffer
	buf.WriteByte(codecVersion)

	var count uint32
	for key := range t.entries {
		if len(key) <= math.MaxUint16 {
			count++
		}
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], count)
	buf.Write(header[:])

	var scratch [6]byte
	for key, seconds := range t.entries {
		if len(key) > math.MaxUint16 {
			continue
		}
		binary.BigEndian.PutUint32(scratch[:4], seconds)
		binary.BigEndian.PutUint16(scratch[4:], uint16(len(key)))
		buf.Write(scratch[:])
		buf.WriteString(key)
	}
	return buf.Bytes()
}

// FromBytes 从快照字节重建索引。空输入视为全新索引；损坏或版本不符返回错误。
func FromBytes(data []byte) (*AccessTracker, error) {
	t := NewAccessTracker()
	if len(data) == 0 {
		return t, nil
	}
	if len(data) < 5 {
		return nil, fmt.Errorf("snapshot truncated: %d bytes", len(data))
	}
	if data[0] != codecVersion {
		return nil, fmt.Errorf("unsupported snapshot version: %d", data[0])
	}

	count := binary.BigEndian.Uint32(data[1:5])
	offset := 5
	for i := uint32(0); i < count; i++ {
		if offset+6 > len(data) {
			return nil, fmt.Errorf("snapshot truncated at entry %d", i)
		}
		seconds := binary.BigEndian.Uint32(data[offset : offset+4])
		keyLen := int(binary.BigEndian.Uint16(data[offset+4 : offset+6]))
		offset += 6
		if offset+keyLen > len(data) {
			return nil, fmt.Errorf("snapshot truncated at entry %d key", i)
		}
		key := string(data[offset : offset+keyLen])
		offset += keyLen
		t.entries[key] = seconds
	}
	if offset != len(data) {
		return nil, fmt.Errorf("snapshot has %d trailing bytes", len(data)-offset)
	}
	return t, nil
}
