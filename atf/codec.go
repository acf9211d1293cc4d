/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package atf

import "encoding/binary"

// IndexHeader is the 64-byte placeholder/final index file header.
type IndexHeader struct {
	Arch        uint8
	OS          uint8
	Flags       uint32
	ThreadID    uint32
	ClockType   uint8
	EventSize   uint32
	EventCount  uint32
	EventsOffset uint64
	FooterOffset uint64
	TimeStartNS  uint64
	TimeEndNS    uint64
}

func encodeIndexHeader(h IndexHeader, buf []byte) {
	_ = buf[:IndexHeaderSize]
	copy(buf[0:4], indexMagic[:])
	buf[4] = 0x01 // endian
	buf[5] = 1    // version
	buf[6] = h.Arch
	buf[7] = h.OS
	binary.LittleEndian.PutUint32(buf[8:12], h.Flags)
	binary.LittleEndian.PutUint32(buf[12:16], h.ThreadID)
	buf[16] = h.ClockType
	// buf[17:20] reserved1, buf[20:24] reserved2 stay zero.
	binary.LittleEndian.PutUint32(buf[24:28], h.EventSize)
	binary.LittleEndian.PutUint32(buf[28:32], h.EventCount)
	binary.LittleEndian.PutUint64(buf[32:40], h.EventsOffset)
	binary.LittleEndian.PutUint64(buf[40:48], h.FooterOffset)
	binary.LittleEndian.PutUint64(buf[48:56], h.TimeStartNS)
	binary.LittleEndian.PutUint64(buf[56:64], h.TimeEndNS)
}

// IndexFooter is the 64-byte authoritative index file footer.
type IndexFooter struct {
	Checksum     uint32
	EventCount   uint64
	TimeStartNS  uint64
	TimeEndNS    uint64
	BytesWritten uint64
}

func encodeIndexFooter(f IndexFooter, buf []byte) {
	_ = buf[:IndexFooterSize]
	copy(buf[0:4], indexFooterMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], f.Checksum)
	binary.LittleEndian.PutUint64(buf[8:16], f.EventCount)
	binary.LittleEndian.PutUint64(buf[16:24], f.TimeStartNS)
	binary.LittleEndian.PutUint64(buf[24:32], f.TimeEndNS)
	binary.LittleEndian.PutUint64(buf[32:40], f.BytesWritten)
	// buf[40:64] reserved, stays zero.
}

func encodeIndexEvent(e IndexEvent, buf []byte) {
	_ = buf[:IndexEventSize]
	binary.LittleEndian.PutUint64(buf[0:8], e.TimestampNS)
	binary.LittleEndian.PutUint64(buf[8:16], e.FunctionID)
	binary.LittleEndian.PutUint32(buf[16:20], e.ThreadID)
	binary.LittleEndian.PutUint32(buf[20:24], e.EventKind)
	binary.LittleEndian.PutUint32(buf[24:28], e.CallDepth)
	binary.LittleEndian.PutUint32(buf[28:32], e.DetailSeq)
}

// EncodeIndexEvent writes e's 32-byte wire form into buf. It is
// exported so the ring-buffer producer path (agent) and the drain can
// share the exact same layout the on-disk index file uses, instead of
// each side maintaining its own copy of the field order.
func EncodeIndexEvent(e IndexEvent, buf []byte) { encodeIndexEvent(e, buf) }

// DecodeIndexEvent reads a 32-byte wire-form IndexEvent back out of
// buf, the inverse of EncodeIndexEvent.
func DecodeIndexEvent(buf []byte) IndexEvent {
	_ = buf[:IndexEventSize]
	return IndexEvent{
		TimestampNS: binary.LittleEndian.Uint64(buf[0:8]),
		FunctionID:  binary.LittleEndian.Uint64(buf[8:16]),
		ThreadID:    binary.LittleEndian.Uint32(buf[16:20]),
		EventKind:   binary.LittleEndian.Uint32(buf[20:24]),
		CallDepth:   binary.LittleEndian.Uint32(buf[24:28]),
		DetailSeq:   binary.LittleEndian.Uint32(buf[28:32]),
	}
}

// DetailHeader is the 64-byte placeholder/final detail file header.
type DetailHeader struct {
	Arch          uint8
	OS            uint8
	ThreadID      uint32
	EventsOffset  uint64
	EventCount    uint64
	BytesLength   uint64
	IndexSeqStart uint64
	IndexSeqEnd   uint64
}

func encodeDetailHeader(h DetailHeader, buf []byte) {
	_ = buf[:DetailHeaderSize]
	copy(buf[0:4], detailMagic[:])
	buf[4] = 0x01 // endian
	buf[5] = 1    // version
	buf[6] = h.Arch
	buf[7] = h.OS
	// buf[8:12] flags reserved, stays zero.
	binary.LittleEndian.PutUint32(buf[12:16], h.ThreadID)
	// buf[16:20] reserved1, stays zero.
	binary.LittleEndian.PutUint64(buf[20:28], h.EventsOffset)
	binary.LittleEndian.PutUint64(buf[28:36], h.EventCount)
	binary.LittleEndian.PutUint64(buf[36:44], h.BytesLength)
	binary.LittleEndian.PutUint64(buf[44:52], h.IndexSeqStart)
	binary.LittleEndian.PutUint64(buf[52:60], h.IndexSeqEnd)
	// buf[60:64] reserved2, stays zero.
}

// DetailFooter is the 64-byte detail file footer.
type DetailFooter struct {
	Checksum    uint32
	EventCount  uint64
	BytesLength uint64
	TimeStartNS uint64
	TimeEndNS   uint64
}

func encodeDetailFooter(f DetailFooter, buf []byte) {
	_ = buf[:DetailFooterSize]
	copy(buf[0:4], detailFooterMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], f.Checksum)
	binary.LittleEndian.PutUint64(buf[8:16], f.EventCount)
	binary.LittleEndian.PutUint64(buf[16:24], f.BytesLength)
	binary.LittleEndian.PutUint64(buf[24:32], f.TimeStartNS)
	binary.LittleEndian.PutUint64(buf[32:40], f.TimeEndNS)
	// buf[40:64] reserved, stays zero.
}

// Fixed (pre-stack-snapshot) byte widths of the two architecture
// payload shapes, matching DetailFunctionPayloadARM64/AMD64's field
// layout exactly (8-byte FunctionID, 8 eight-byte registers, the
// frame/stack/link-register slots, then a 2-byte stack_size).
const (
	detailPayloadFixedARM64 = 8 + 8*8 + 8 + 8 + 8 + 2 // 98
	detailPayloadFixedAMD64 = 8 + 8*8 + 8 + 8 + 2     // 90
)

// DetailPayloadFixedSize returns the fixed-field byte width (everything
// before the variable-length stack snapshot) for arch.
func DetailPayloadFixedSize(arch uint8) int {
	if arch == ArchARM64 {
		return detailPayloadFixedARM64
	}
	return detailPayloadFixedAMD64
}

// EncodeDetailPayloadARM64 writes p's fixed fields into buf[:98] and
// returns 98, the offset at which the caller should append the
// captured stack snapshot (p.StackSize bytes).
func EncodeDetailPayloadARM64(p DetailFunctionPayloadARM64, buf []byte) int {
	_ = buf[:detailPayloadFixedARM64]
	binary.LittleEndian.PutUint64(buf[0:8], p.FunctionID)
	for i, v := range p.XRegs {
		binary.LittleEndian.PutUint64(buf[8+i*8:16+i*8], v)
	}
	off := 8 + 8*8
	binary.LittleEndian.PutUint64(buf[off:off+8], p.LR)
	binary.LittleEndian.PutUint64(buf[off+8:off+16], p.FP)
	binary.LittleEndian.PutUint64(buf[off+16:off+24], p.SP)
	binary.LittleEndian.PutUint16(buf[off+24:off+26], p.StackSize)
	return detailPayloadFixedARM64
}

// DecodeDetailPayloadARM64 is the inverse of EncodeDetailPayloadARM64.
// It does not decode the trailing stack snapshot.
func DecodeDetailPayloadARM64(buf []byte) DetailFunctionPayloadARM64 {
	_ = buf[:detailPayloadFixedARM64]
	var p DetailFunctionPayloadARM64
	p.FunctionID = binary.LittleEndian.Uint64(buf[0:8])
	for i := range p.XRegs {
		p.XRegs[i] = binary.LittleEndian.Uint64(buf[8+i*8 : 16+i*8])
	}
	off := 8 + 8*8
	p.LR = binary.LittleEndian.Uint64(buf[off : off+8])
	p.FP = binary.LittleEndian.Uint64(buf[off+8 : off+16])
	p.SP = binary.LittleEndian.Uint64(buf[off+16 : off+24])
	p.StackSize = binary.LittleEndian.Uint16(buf[off+24 : off+26])
	return p
}

// EncodeDetailPayloadAMD64 writes p's fixed fields into buf[:90] and
// returns 90, the offset at which the caller should append the
// captured stack snapshot (p.StackSize bytes).
func EncodeDetailPayloadAMD64(p DetailFunctionPayloadAMD64, buf []byte) int {
	_ = buf[:detailPayloadFixedAMD64]
	binary.LittleEndian.PutUint64(buf[0:8], p.FunctionID)
	for i, v := range p.GRegs {
		binary.LittleEndian.PutUint64(buf[8+i*8:16+i*8], v)
	}
	off := 8 + 8*8
	binary.LittleEndian.PutUint64(buf[off:off+8], p.BP)
	binary.LittleEndian.PutUint64(buf[off+8:off+16], p.SP)
	binary.LittleEndian.PutUint16(buf[off+16:off+18], p.StackSize)
	return detailPayloadFixedAMD64
}

// DecodeDetailPayloadAMD64 is the inverse of EncodeDetailPayloadAMD64.
// It does not decode the trailing stack snapshot.
func DecodeDetailPayloadAMD64(buf []byte) DetailFunctionPayloadAMD64 {
	_ = buf[:detailPayloadFixedAMD64]
	var p DetailFunctionPayloadAMD64
	p.FunctionID = binary.LittleEndian.Uint64(buf[0:8])
	for i := range p.GRegs {
		p.GRegs[i] = binary.LittleEndian.Uint64(buf[8+i*8 : 16+i*8])
	}
	off := 8 + 8*8
	p.BP = binary.LittleEndian.Uint64(buf[off : off+8])
	p.SP = binary.LittleEndian.Uint64(buf[off+8 : off+16])
	p.StackSize = binary.LittleEndian.Uint16(buf[off+16 : off+18])
	return p
}

// DetailPayloadStackSize reads just the stack_size field out of an
// encoded fixed-arch payload, without decoding the rest — enough for a
// caller that only needs to know how many trailing bytes are live.
func DetailPayloadStackSize(arch uint8, buf []byte) uint16 {
	if arch == ArchARM64 {
		return binary.LittleEndian.Uint16(buf[72+24 : 72+26])
	}
	return binary.LittleEndian.Uint16(buf[72+16 : 72+18])
}

func encodeDetailEventHeader(h DetailEventHeader, buf []byte) {
	_ = buf[:DetailEventHeaderSize]
	binary.LittleEndian.PutUint32(buf[0:4], h.TotalLength)
	binary.LittleEndian.PutUint16(buf[4:6], h.EventType)
	binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
	binary.LittleEndian.PutUint32(buf[8:12], h.IndexSeq)
	binary.LittleEndian.PutUint32(buf[12:16], h.ThreadID)
	binary.LittleEndian.PutUint64(buf[16:24], h.Timestamp)
}
