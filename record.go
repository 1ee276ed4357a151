package wal

import "encoding/binary"

// frameHeaderSize is the fixed 24-byte header: index, term, key_len, val_len.
const frameHeaderSize = 24

// Record is a single durable unit read back from the log. Key and Val are
// slices borrowed from the log's in-memory index (see WAL.Read); callers
// that need to keep a record past the next mutating call must call Clone.
type Record struct {
	Index uint64
	Term  uint64
	Key   []byte
	Val   []byte
}

// Clone returns a Record whose Key and Val no longer alias any internal
// buffer, safe to retain across mutating calls.
func (r Record) Clone() Record {
	key := make([]byte, len(r.Key))
	copy(key, r.Key)
	val := make([]byte, len(r.Val))
	copy(val, r.Val)
	return Record{Index: r.Index, Term: r.Term, Key: key, Val: val}
}

// encode produces the frame layout fixed by the on-disk format:
//
//	offset  size  field
//	 0      8     index
//	 8      8     term
//	16      4     key_len (u32)
//	20      4     val_len (u32)
//	24      K     key bytes
//	24+K    V     val bytes
func encode(index, term uint64, key, val []byte) []byte {
	total := frameHeaderSize + len(key) + len(val)
	buf := make([]byte, total)
	binary.LittleEndian.PutUint64(buf[0:8], index)
	binary.LittleEndian.PutUint64(buf[8:16], term)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(key)))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(len(val)))
	copy(buf[24:24+len(key)], key)
	copy(buf[24+len(key):], val)
	return buf
}

// decode splits one already-validated frame (as produced by encode, or one
// element of the slice returned by decodeStream) into its typed fields. The
// returned Key/Val slices alias frame.
func decode(frame []byte) Record {
	keyLen := binary.LittleEndian.Uint32(frame[16:20])
	valLen := binary.LittleEndian.Uint32(frame[20:24])
	return Record{
		Index: binary.LittleEndian.Uint64(frame[0:8]),
		Term:  binary.LittleEndian.Uint64(frame[8:16]),
		Key:   frame[24 : 24+keyLen],
		Val:   frame[24+keyLen : 24+keyLen+valLen],
	}
}

// decodeStream walks buf from offset 0, emitting one slice per well-formed
// frame it finds. It stops at the first byte range that cannot possibly hold
// a complete frame — either because fewer than frameHeaderSize bytes remain,
// or because the declared key_len/val_len would run past the end of buf.
// That stopping point, tailOffset, is either len(buf) (clean end) or the
// start of a torn trailing frame left by a crash mid-append. decodeStream
// never returns an error: a torn tail is not corruption, it is absence.
func decodeStream(buf []byte) (records [][]byte, tailOffset int) {
	pos := 0
	for {
		if len(buf)-pos < frameHeaderSize {
			return records, pos
		}
		keyLen := binary.LittleEndian.Uint32(buf[pos+16 : pos+20])
		valLen := binary.LittleEndian.Uint32(buf[pos+20 : pos+24])
		total := frameHeaderSize + int(keyLen) + int(valLen)
		if len(buf)-pos < total {
			return records, pos
		}
		records = append(records, buf[pos:pos+total])
		pos += total
	}
}
