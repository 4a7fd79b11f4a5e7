// Package wire implements the DATA/ACK frame encoding used on the two
// QUIC bidirectional streams of a stablessh session.
package wire

import "encoding/binary"

// MaxPayloadLen is the largest payload a single DATA frame can carry;
// the length field is 16 bits wide.
const MaxPayloadLen = 65535

// dataHeaderLen is id(4) + len(2).
const dataHeaderLen = 6

// ackFrameLen is id(4).
const ackFrameLen = 4

// EncodeData lays out a DATA frame: id (BE32) | len (BE16) | payload.
// The caller must ensure len(payload) <= MaxPayloadLen.
func EncodeData(id uint32, payload []byte) []byte {
	buf := make([]byte, dataHeaderLen+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], id)
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(payload)))
	copy(buf[6:], payload)
	return buf
}

// EncodeAck lays out an ACK frame: id (BE32).
func EncodeAck(id uint32) []byte {
	buf := make([]byte, ackFrameLen)
	binary.BigEndian.PutUint32(buf, id)
	return buf
}

// DataFrame is one decoded DATA frame.
type DataFrame struct {
	ID      uint32
	Payload []byte
}

// DataDecoder is a streaming decoder for DATA frames that tolerates
// arbitrary splits across Feed calls, including splits inside the
// header.
type DataDecoder struct {
	buf []byte
}

// Feed appends newly read bytes to the decoder's internal buffer.
func (d *DataDecoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Next returns the next fully-buffered DATA frame, or ok=false if more
// input is needed.
func (d *DataDecoder) Next() (frame DataFrame, ok bool) {
	if len(d.buf) < dataHeaderLen {
		return DataFrame{}, false
	}
	id := binary.BigEndian.Uint32(d.buf[0:4])
	length := int(binary.BigEndian.Uint16(d.buf[4:6]))
	total := dataHeaderLen + length
	if len(d.buf) < total {
		return DataFrame{}, false
	}
	payload := make([]byte, length)
	copy(payload, d.buf[dataHeaderLen:total])
	d.buf = d.buf[total:]
	return DataFrame{ID: id, Payload: payload}, true
}

// AckDecoder is a streaming decoder for ACK frames; a single QUIC read
// may contain many of them.
type AckDecoder struct {
	buf []byte
}

// Feed appends newly read bytes to the decoder's internal buffer.
func (d *AckDecoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Next returns the next fully-buffered ack id, or ok=false if more
// input is needed.
func (d *AckDecoder) Next() (id uint32, ok bool) {
	if len(d.buf) < ackFrameLen {
		return 0, false
	}
	id = binary.BigEndian.Uint32(d.buf[0:4])
	d.buf = d.buf[ackFrameLen:]
	return id, true
}
