package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// EnvelopeMarker opens every asynchronous envelope.
	EnvelopeMarker = "AGI"

	// AsyncHeaderLen is the fixed envelope header size in bytes.
	AsyncHeaderLen = 42

	// SyncHeaderLen is the fixed query header size for the synchronous variant.
	SyncHeaderLen = 40

	// AckTokenLen is the size of the synchronous acknowledgement token.
	AckTokenLen = 3

	// ReportMarker delimits row groups in a returning-report buffer.
	ReportMarker = "AGI421009REPORT_RM      "

	// reportSubHeaderLen is the unparsed fixed prefix on each row group.
	reportSubHeaderLen = 18

	asyncTypeFieldLen = 15
)

var (
	ErrEmbeddedNewline = errors.New("wire: command contains embedded newline")
	ErrMalformedAck    = errors.New("wire: malformed ack token")
	ErrMalformedHeader = errors.New("wire: malformed header")
)

// Ack is the decoded synchronous acknowledgement token.
type Ack int

const (
	AckPositive Ack = iota
	AckNegative
)

// BuildCommand frames one Connect command line for the wire.
func BuildCommand(text string) ([]byte, error) {
	if strings.ContainsRune(text, '\n') {
		return nil, fmt.Errorf("%w: %q", ErrEmbeddedNewline, text)
	}
	return []byte(text + "\n"), nil
}

// ParseAckToken decodes the 3-byte synchronous acknowledgement token.
// A negative acknowledgement carries one extra status byte on the wire
// which the caller must read separately.
func ParseAckToken(b []byte) (Ack, error) {
	if len(b) != AckTokenLen {
		return 0, fmt.Errorf("%w: %d bytes", ErrMalformedAck, len(b))
	}
	switch string(b) {
	case "ACK":
		return AckPositive, nil
	case "NAC":
		return AckNegative, nil
	}
	return 0, fmt.Errorf("%w: expected ACK or NAC, got %q", ErrMalformedAck, string(b))
}

// ParseSyncHeader decodes the 40-byte "<name> <decimal-length>" query header.
func ParseSyncHeader(b []byte) (name string, length int, err error) {
	if len(b) != SyncHeaderLen {
		return "", 0, fmt.Errorf("%w: sync query header is %d bytes, want %d", ErrMalformedHeader, len(b), SyncHeaderLen)
	}
	fields := strings.Fields(strings.TrimSpace(string(b)))
	if len(fields) != 2 {
		return "", 0, fmt.Errorf("%w: query header %q", ErrMalformedHeader, string(b))
	}
	length, err = strconv.Atoi(fields[1])
	if err != nil || length < 0 {
		return "", 0, fmt.Errorf("%w: query header length %q", ErrMalformedHeader, fields[1])
	}
	return fields[0], length, nil
}

// AsyncHeader is the fixed 42-byte envelope header used when asynchronous
// messaging is enabled. All numeric fields are fixed-width ASCII decimal.
type AsyncHeader struct {
	HeaderLength int
	MajorVersion int
	MinorVersion int
	AsyncType    string
	Identifier   int
	TotalPackets int
	PacketNumber int
	DataLength   int
}

// ParseAsyncHeader decodes one envelope header. DataLength bytes of payload
// immediately follow the header on the wire.
func ParseAsyncHeader(b []byte) (AsyncHeader, error) {
	if len(b) != AsyncHeaderLen {
		return AsyncHeader{}, fmt.Errorf("%w: envelope header is %d bytes, want %d", ErrMalformedHeader, len(b), AsyncHeaderLen)
	}
	if string(b[0:3]) != EnvelopeMarker {
		return AsyncHeader{}, fmt.Errorf("%w: sync marker %q", ErrMalformedHeader, string(b[0:3]))
	}

	var h AsyncHeader
	var err error
	if h.HeaderLength, err = asciiField(b[3:5], "header length"); err != nil {
		return AsyncHeader{}, err
	}
	if h.MajorVersion, err = asciiField(b[5:6], "major version"); err != nil {
		return AsyncHeader{}, err
	}
	if h.MinorVersion, err = asciiField(b[6:7], "minor version"); err != nil {
		return AsyncHeader{}, err
	}
	typeLen, err := asciiField(b[7:9], "type length")
	if err != nil {
		return AsyncHeader{}, err
	}
	if typeLen > asyncTypeFieldLen {
		return AsyncHeader{}, fmt.Errorf("%w: type length %d exceeds field width", ErrMalformedHeader, typeLen)
	}
	h.AsyncType = string(b[9 : 9+typeLen])
	if h.Identifier, err = asciiField(b[24:30], "identifier"); err != nil {
		return AsyncHeader{}, err
	}
	if h.TotalPackets, err = asciiField(b[30:34], "total packets"); err != nil {
		return AsyncHeader{}, err
	}
	if h.PacketNumber, err = asciiField(b[34:38], "packet number"); err != nil {
		return AsyncHeader{}, err
	}
	if h.DataLength, err = asciiField(b[38:42], "data length"); err != nil {
		return AsyncHeader{}, err
	}
	return h, nil
}

// EncodeAsyncHeader renders h back into its 42-byte wire form.
func EncodeAsyncHeader(h AsyncHeader) []byte {
	typ := h.AsyncType
	if len(typ) > asyncTypeFieldLen {
		typ = typ[:asyncTypeFieldLen]
	}
	s := fmt.Sprintf("%s%02d%1d%1d%02d%-*s%06d%04d%04d%04d",
		EnvelopeMarker,
		h.HeaderLength,
		h.MajorVersion,
		h.MinorVersion,
		len(typ),
		asyncTypeFieldLen, typ,
		h.Identifier,
		h.TotalPackets,
		h.PacketNumber,
		h.DataLength,
	)
	return []byte(s)
}

func asciiField(b []byte, field string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s %q", ErrMalformedHeader, field, string(b))
	}
	return n, nil
}

// SplitReportBuffer splits an accumulated returning-report buffer into rows.
// The first (pre-marker) segment is dropped, then each row group loses its
// fixed-width sub-header prefix. The sub-header content is not otherwise
// parsed by the protocol.
func SplitReportBuffer(buf []byte, marker string) []string {
	segments := strings.Split(string(buf), marker)
	if len(segments) < 2 {
		return nil
	}
	rows := make([]string, 0, len(segments)-1)
	for _, seg := range segments[1:] {
		if len(seg) < reportSubHeaderLen {
			continue
		}
		rows = append(rows, seg[reportSubHeaderLen:])
	}
	return rows
}
