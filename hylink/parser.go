package hylink

import "sync/atomic"

// parserState is one of the four states the FSM occupies (spec.md §4.5),
// ported from hylink_parser.c's parser_state_t.
type parserState int

const (
	stateIdle parserState = iota
	stateSyncL
	stateHeader
	stateData
)

// Stats is a point-in-time snapshot of a Parser's counters.
type Stats struct {
	TotalPackets uint32
	HeaderErrors uint32
	CRCErrors    uint32
}

// FeedFunc is invoked synchronously, from the goroutine calling Feed, once
// per fully validated packet (spec.md §6 "Packet callback").
type FeedFunc func(*Packet)

// Parser is the HYlink FSM. It is not safe for concurrent use by more than
// one feeding goroutine (spec.md §5 "single-feeder contract"); a Parser's
// Stats fields, however, may be read from any goroutine via Stats.
type Parser struct {
	state       parserState
	headerBuf   [HeaderSize]byte
	rxCount     int
	expectedLen int
	header      Header
	dataBuf     []byte

	callback FeedFunc

	totalPackets atomic.Uint32
	headerErrors atomic.Uint32
	crcErrors    atomic.Uint32
}

// NewParser constructs a Parser in the idle state. callback may be nil, in
// which case valid packets are simply counted and discarded.
func NewParser(callback FeedFunc) *Parser {
	return &Parser{
		state:    stateIdle,
		callback: callback,
		dataBuf:  make([]byte, 0, MaxDataSize),
	}
}

// Reset returns the parser to its idle state, discarding any in-flight
// frame. Mirrors hylink_parser_reset / parser_reset_internal.
func (p *Parser) Reset() {
	p.state = stateIdle
	p.rxCount = 0
	p.expectedLen = 0
}

// Feed processes data one byte at a time. Behavior is identical whether
// called once with a large slice or once per byte (spec.md §8), since
// process_byte-equivalent state only ever advances by exactly one byte per
// iteration.
func (p *Parser) Feed(data []byte) {
	for _, b := range data {
		p.processByte(b)
	}
}

// Stats returns a snapshot of the parser's counters.
func (p *Parser) Stats() Stats {
	return Stats{
		TotalPackets: p.totalPackets.Load(),
		HeaderErrors: p.headerErrors.Load(),
		CRCErrors:    p.crcErrors.Load(),
	}
}

// processByte is the 1:1 port of process_byte's state switch.
func (p *Parser) processByte(b byte) {
	switch p.state {
	case stateIdle:
		if b == SyncWordL {
			p.headerBuf[0] = b
			p.rxCount = 1
			p.state = stateSyncL
		}

	case stateSyncL:
		switch {
		case b == SyncWordH:
			p.headerBuf[1] = b
			p.rxCount = 2
			p.state = stateHeader
		case b == SyncWordL:
			// Resync: this byte could be the real start of a new frame.
			p.headerBuf[0] = b
			p.rxCount = 1
		default:
			p.Reset()
		}

	case stateHeader:
		p.headerBuf[p.rxCount] = b
		p.rxCount++
		if p.rxCount != HeaderSize {
			return
		}
		h := decodeHeader(p.headerBuf[:])
		if !validateHeader(p.headerBuf[:], h) {
			p.headerErrors.Add(1)
			p.Reset()
			return
		}
		p.header = h
		p.expectedLen = int(h.TotalLength()) - HeaderSize
		if p.expectedLen == 0 {
			p.handleComplete(nil)
			p.Reset()
		} else {
			p.dataBuf = p.dataBuf[:0]
			p.rxCount = 0
			p.state = stateData
		}

	case stateData:
		p.dataBuf = append(p.dataBuf, b)
		p.rxCount++
		if p.rxCount == p.expectedLen {
			body := make([]byte, len(p.dataBuf))
			copy(body, p.dataBuf)
			p.handleComplete(body)
			p.Reset()
		}

	default:
		p.Reset()
	}
}

// handleComplete validates the body CRC and, on success, counts and
// dispatches the packet. Mirrors handle_complete_packet.
func (p *Parser) handleComplete(body []byte) {
	if CRC16(body) != p.header.DataCRC() {
		p.crcErrors.Add(1)
		return
	}
	p.totalPackets.Add(1)
	if p.callback != nil {
		p.callback(&Packet{Header: p.header, Data: body})
	}
}

// decodeHeader maps an 11-byte wire header into a Header struct.
func decodeHeader(buf []byte) Header {
	return Header{
		SyncL:       buf[0],
		SyncH:       buf[1],
		LengthL:     buf[2],
		LengthH:     buf[3],
		DeviceID:    DeviceID(buf[4]),
		SeqNumber:   buf[5],
		Cmd:         Command(buf[6]),
		Reserved:    buf[7],
		DataCRCL:    buf[8],
		DataCRCH:    buf[9],
		CheckHeader: buf[10],
	}
}

// validateHeader mirrors validate_header: sync words, declared-length
// bounds, then the additive header checksum over raw[:10].
func validateHeader(raw []byte, h Header) bool {
	if h.SyncL != SyncWordL || h.SyncH != SyncWordH {
		return false
	}
	total := h.TotalLength()
	if total < HeaderSize || total > HeaderSize+MaxDataSize {
		return false
	}
	return HeaderChecksum(raw[:10]) == h.CheckHeader
}
