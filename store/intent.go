// Package store persists MergeIntent records in a local embedded KV store,
// keyed by pull-request head commit id. It is the Go analog of
// local_state.rs's RocksDB-backed map, backed by go.etcd.io/bbolt so the
// binary ships as a single process with no external database.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Intent is the only persisted entity in this system: a prior authorized
// merge request for a specific head commit, waiting on CI to go green.
type Intent struct {
	Owner      string
	Repo       string
	Number     int
	HTMLURL    string
	Requester  string
}

// encode serializes an Intent with a fixed field order so the layout is
// stable across process restarts regardless of struct field order or any
// reflective encoder's whims.
//
// Layout: number(8 BE) | len-prefixed(owner, repo, htmlURL, requester),
// each length a 4-byte big-endian uint32 followed by the raw UTF-8 bytes.
func encode(in Intent) []byte {
	buf := make([]byte, 0, 64)
	var numBuf [8]byte
	binary.BigEndian.PutUint64(numBuf[:], uint64(in.Number))
	buf = append(buf, numBuf[:]...)
	for _, s := range []string{in.Owner, in.Repo, in.HTMLURL, in.Requester} {
		buf = appendField(buf, s)
	}
	return buf
}

func appendField(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, s...)
	return buf
}

func decode(data []byte) (Intent, error) {
	var out Intent
	if len(data) < 8 {
		return out, errors.New("intent record too short")
	}
	out.Number = int(binary.BigEndian.Uint64(data[:8]))
	rest := data[8:]
	fields := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		if len(rest) < 4 {
			return out, fmt.Errorf("intent record truncated at field %d", i)
		}
		n := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint32(len(rest)) < n {
			return out, fmt.Errorf("intent record truncated reading field %d", i)
		}
		fields = append(fields, string(rest[:n]))
		rest = rest[n:]
	}
	out.Owner, out.Repo, out.HTMLURL, out.Requester = fields[0], fields[1], fields[2], fields[3]
	return out, nil
}

// Key normalizes a commit id the way the original bot does: trimmed bytes,
// used verbatim as the KV key.
func Key(commit string) []byte {
	return []byte(strings.TrimSpace(commit))
}
