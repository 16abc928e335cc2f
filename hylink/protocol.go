// Package hylink implements the HYlink framed-protocol parser: a
// byte-oriented, deterministic FSM with header checksum and CRC16-CCITT
// body validation and automatic resynchronization on error (spec.md
// §4.5–§4.6). Grounded on original_source/modules/hylink.
package hylink

import "fmt"

const (
	// SyncWordL and SyncWordH are the two leading sync bytes every frame
	// starts with, in wire order (spec.md §4.5).
	SyncWordL = 0xBB
	SyncWordH = 0xAA

	// HeaderSize is the fixed header length in bytes.
	HeaderSize = 11

	// MaxDataSize is the largest body a frame may carry.
	MaxDataSize = 1024
)

// DeviceID identifies the source or destination of a frame
// (original_source/modules/hylink/include/hylink_protocol.h §2.4,
// dropped by the distilled spec but kept here so decoded packets are
// self-describing).
type DeviceID uint8

const (
	DeviceBroadcast      DeviceID = 0
	DeviceGroundStation  DeviceID = 1
	DeviceCockpit        DeviceID = 2
	DeviceFlightControl  DeviceID = 5
	DeviceIOCircuit      DeviceID = 6
	DeviceAircraft       DeviceID = 10
	DeviceRecorder       DeviceID = 15
	DeviceINS            DeviceID = 45
	DeviceMEMS           DeviceID = 50
	DeviceDatalink       DeviceID = 55
	DeviceRadarAltimeter DeviceID = 60
	DeviceBMS            DeviceID = 65
	DeviceNavLight       DeviceID = 70
)

func (d DeviceID) String() string {
	switch d {
	case DeviceBroadcast:
		return "broadcast"
	case DeviceGroundStation:
		return "ground-station"
	case DeviceCockpit:
		return "cockpit"
	case DeviceFlightControl:
		return "flight-control"
	case DeviceIOCircuit:
		return "io-circuit"
	case DeviceAircraft:
		return "aircraft"
	case DeviceRecorder:
		return "recorder"
	case DeviceINS:
		return "ins"
	case DeviceMEMS:
		return "mems"
	case DeviceDatalink:
		return "datalink"
	case DeviceRadarAltimeter:
		return "radar-altimeter"
	case DeviceBMS:
		return "bms"
	case DeviceNavLight:
		return "nav-light"
	default:
		return fmt.Sprintf("device(%d)", uint8(d))
	}
}

// Command is the frame's command code (original header.h §3).
type Command uint8

const (
	CmdHeartbeat      Command = 0x00
	CmdRequest        Command = 0x01
	CmdAck            Command = 0x02
	CmdHandshake      Command = 0x0E
	CmdSystemTime     Command = 0x0F
	CmdPositionData   Command = 0x10
	CmdAttitudeData   Command = 0x11
	CmdVelocityNED    Command = 0x13
	CmdAirspeedData   Command = 0x15
	CmdJoystickControl Command = 0x20
	CmdBatterySystem  Command = 0x30
	CmdFusionPacket   Command = 0xFE
)

func (c Command) String() string {
	switch c {
	case CmdHeartbeat:
		return "heartbeat"
	case CmdRequest:
		return "request"
	case CmdAck:
		return "ack"
	case CmdHandshake:
		return "handshake"
	case CmdSystemTime:
		return "system-time"
	case CmdPositionData:
		return "position-data"
	case CmdAttitudeData:
		return "attitude-data"
	case CmdVelocityNED:
		return "velocity-ned"
	case CmdAirspeedData:
		return "airspeed-data"
	case CmdJoystickControl:
		return "joystick-control"
	case CmdBatterySystem:
		return "battery-system"
	case CmdFusionPacket:
		return "fusion-packet"
	default:
		return fmt.Sprintf("cmd(0x%02X)", uint8(c))
	}
}

// Header is the 11-byte fixed frame header (spec.md §4.5), field order and
// widths matching hylink_protocol.h's packed struct exactly.
type Header struct {
	SyncL       uint8
	SyncH       uint8
	LengthL     uint8
	LengthH     uint8
	DeviceID    DeviceID
	SeqNumber   uint8
	Cmd         Command
	Reserved    uint8
	DataCRCL    uint8
	DataCRCH    uint8
	CheckHeader uint8
}

// TotalLength returns the header's declared total frame length (header +
// body), per HYLINK_GET_LENGTH.
func (h Header) TotalLength() uint16 {
	return uint16(h.LengthH)<<8 | uint16(h.LengthL)
}

// DataCRC returns the header's declared body CRC16, per HYLINK_GET_DATA_CRC.
func (h Header) DataCRC() uint16 {
	return uint16(h.DataCRCH)<<8 | uint16(h.DataCRCL)
}

// Packet is one fully decoded frame: header plus body.
type Packet struct {
	Header Header
	Data   []byte
}

// Marshal encodes p into wire bytes, computing the body CRC16 and header
// checksum. Not part of the original board firmware (receive-only), added
// so the parser can be exercised without hand-assembling byte slices —
// see SPEC_FULL.md §4.5.
func (p Packet) Marshal() ([]byte, error) {
	if len(p.Data) > MaxDataSize {
		return nil, fmt.Errorf("hylink: body of %d bytes exceeds max %d", len(p.Data), MaxDataSize)
	}
	total := HeaderSize + len(p.Data)

	h := p.Header
	h.SyncL = SyncWordL
	h.SyncH = SyncWordH
	h.LengthL = uint8(total & 0xFF)
	h.LengthH = uint8((total >> 8) & 0xFF)
	crc := CRC16(p.Data)
	h.DataCRCL = uint8(crc & 0xFF)
	h.DataCRCH = uint8((crc >> 8) & 0xFF)

	buf := make([]byte, HeaderSize, total)
	buf[0] = h.SyncL
	buf[1] = h.SyncH
	buf[2] = h.LengthL
	buf[3] = h.LengthH
	buf[4] = uint8(h.DeviceID)
	buf[5] = h.SeqNumber
	buf[6] = uint8(h.Cmd)
	buf[7] = h.Reserved
	buf[8] = h.DataCRCL
	buf[9] = h.DataCRCH
	buf[10] = HeaderChecksum(buf[:10])

	return append(buf, p.Data...), nil
}
