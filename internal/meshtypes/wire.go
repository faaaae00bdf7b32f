// x0mesh - Post-Quantum Autonomic Mesh Node
// Copyright (C) 2026 x0tta6bl4-ai
//
// This file is part of x0mesh.
//
// x0mesh is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// x0mesh is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with x0mesh. If not, see <https://www.gnu.org/licenses/>.

package meshtypes

import (
	"encoding/binary"
	"fmt"
)

// Frame format, on the wire:
//
//	| version(1) | kind(1) | reserved(2) | sender(32) | epoch(8) | nonce(8) |
//	| payload_len(4) | payload(payload_len) | sig_len(4) | sig(sig_len) |
//
// fixedFrameLen is everything up to and including the nonce field.
const fixedFrameLen = FrameHeaderSize + 32 + 8 + 8

// MaxFrameFieldLen bounds payload_len/sig_len so a corrupted length prefix
// can never be read as a multi-gigabyte allocation request.
const MaxFrameFieldLen = 1 << 20

// EncodeControlMessage serializes msg into the length-prefixed wire frame.
func EncodeControlMessage(msg *ControlMessage) []byte {
	out := make([]byte, 0, fixedFrameLen+8+len(msg.Payload)+len(msg.Signature))
	out = append(out, FrameVersion, byte(msg.Kind), 0, 0)
	out = append(out, msg.Sender[:]...)
	out = appendUint64(out, uint64(msg.Epoch))
	out = appendUint64(out, msg.Nonce)
	out = appendLenPrefixed(out, msg.Payload)
	out = appendLenPrefixed(out, msg.Signature)
	return out
}

// DecodeControlMessage parses a wire frame produced by EncodeControlMessage.
// Any truncation, an unsupported version byte, an out-of-bounds length
// prefix, or trailing bytes after the frame is a parse error — never a
// silently accepted partial message.
func DecodeControlMessage(data []byte) (*ControlMessage, error) {
	if len(data) < fixedFrameLen {
		return nil, fmt.Errorf("meshtypes: frame shorter than fixed header (%d < %d)", len(data), fixedFrameLen)
	}
	if data[0] != FrameVersion {
		return nil, fmt.Errorf("meshtypes: unsupported frame version %d", data[0])
	}

	msg := &ControlMessage{Kind: MessageKind(data[1])}
	off := FrameHeaderSize
	copy(msg.Sender[:], data[off:off+32])
	off += 32
	msg.Epoch = Epoch(binary.BigEndian.Uint64(data[off : off+8]))
	off += 8
	msg.Nonce = binary.BigEndian.Uint64(data[off : off+8])
	off += 8

	payload, off, err := readLenPrefixed(data, off)
	if err != nil {
		return nil, fmt.Errorf("meshtypes: decode payload: %w", err)
	}
	msg.Payload = payload

	sig, off, err := readLenPrefixed(data, off)
	if err != nil {
		return nil, fmt.Errorf("meshtypes: decode signature: %w", err)
	}
	msg.Signature = sig

	if off != len(data) {
		return nil, fmt.Errorf("meshtypes: %d trailing byte(s) after frame", len(data)-off)
	}
	return msg, nil
}

func appendUint64(out []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(out, tmp[:]...)
}

func appendLenPrefixed(out []byte, field []byte) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(field)))
	out = append(out, tmp[:]...)
	return append(out, field...)
}

func readLenPrefixed(data []byte, off int) ([]byte, int, error) {
	if off+4 > len(data) {
		return nil, 0, fmt.Errorf("truncated length prefix at offset %d", off)
	}
	n := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	if n < 0 || n > MaxFrameFieldLen {
		return nil, 0, fmt.Errorf("field length %d out of bounds", n)
	}
	if off+n > len(data) {
		return nil, 0, fmt.Errorf("field of length %d truncated at offset %d", n, off)
	}
	field := make([]byte, n)
	copy(field, data[off:off+n])
	return field, off + n, nil
}
