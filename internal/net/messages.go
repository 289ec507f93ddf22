package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vidar/internal/engine"
	"vidar/internal/marketdata"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrInvalidReportType  = errors.New("invalid report type")
	ErrMessageTooShort    = errors.New("message too short")
	ErrStringTooLong      = errors.New("string field exceeds its length prefix")
	ErrFrameTooLarge      = errors.New("frame exceeds maximum size")
)

// MaxFrameSize bounds a single length-prefixed frame in either direction.
const MaxFrameSize = 4 * 1024

// WriteFrame writes one length-prefixed payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func unixNano(ns int64) time.Time {
	return time.Unix(0, ns)
}

type MessageType int

const (
	Heartbeat MessageType = iota
	SubmitOrder
	CancelOrder
	QueryBook
	LogBook
)

type ReportType int

const (
	AckReport ReportType = iota
	ExecutionReport
	QuoteReport
	ErrorReport
)

// Message is a client request to the gateway.
type Message interface {
	GetType() MessageType
}

// Report is a gateway push back to a client.
type Report interface {
	GetReportType() ReportType
	Serialize() ([]byte, error)
}

const messageHeaderLen = 2

type BaseMessage struct {
	TypeOf MessageType // 2 bytes
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

// Prices and quantities travel as length-prefixed decimal strings so no
// value is squeezed through a binary float on the wire. An empty string
// means the field is absent.

func appendString(buf []byte, s string) []byte {
	buf = append(buf, byte(len(s)))
	return append(buf, s...)
}

func readString(msg []byte, offset int) (string, int, error) {
	if len(msg) < offset+1 {
		return "", 0, ErrMessageTooShort
	}
	n := int(msg[offset])
	offset++
	if len(msg) < offset+n {
		return "", 0, ErrMessageTooShort
	}
	return string(msg[offset : offset+n]), offset + n, nil
}

func checkString(s string) error {
	if len(s) > 255 {
		return fmt.Errorf("%w: %q", ErrStringTooLong, s[:32])
	}
	return nil
}

// ParseMessage decodes one request frame.
func ParseMessage(msg []byte) (Message, error) {
	if len(msg) < messageHeaderLen {
		return nil, ErrMessageTooShort
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	msg = msg[2:]
	switch typeOf {
	case Heartbeat:
		return BaseMessage{TypeOf: Heartbeat}, nil
	case SubmitOrder:
		return parseSubmitOrder(msg)
	case CancelOrder:
		return parseCancelOrder(msg)
	case QueryBook:
		return parseQueryBook(msg)
	case LogBook:
		return parseLogBook(msg)
	default:
		return nil, ErrInvalidMessageType
	}
}

type SubmitOrderMessage struct {
	BaseMessage
	Side      engine.Side      // 1 byte
	OrderType engine.OrderType // 1 byte
	Symbol    string           // length-prefixed
	UserID    string           // length-prefixed
	Price     string           // length-prefixed decimal, empty = absent
	StopPrice string           // length-prefixed decimal, empty = absent
	Quantity  string           // length-prefixed decimal
}

// Order builds a fresh engine order from the message, assigning its id.
func (m SubmitOrderMessage) Order() (*engine.Order, error) {
	quantity, err := decimal.NewFromString(m.Quantity)
	if err != nil {
		return nil, fmt.Errorf("bad quantity %q: %w", m.Quantity, err)
	}

	var price, stopPrice decimal.Decimal
	if m.Price != "" {
		if price, err = decimal.NewFromString(m.Price); err != nil {
			return nil, fmt.Errorf("bad price %q: %w", m.Price, err)
		}
	}
	if m.StopPrice != "" {
		if stopPrice, err = decimal.NewFromString(m.StopPrice); err != nil {
			return nil, fmt.Errorf("bad stop price %q: %w", m.StopPrice, err)
		}
	}

	return engine.NewOrder(m.Symbol, m.Side, m.OrderType, quantity, price, stopPrice, m.UserID), nil
}

func (m SubmitOrderMessage) Serialize() ([]byte, error) {
	for _, s := range []string{m.Symbol, m.UserID, m.Price, m.StopPrice, m.Quantity} {
		if err := checkString(s); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, messageHeaderLen, messageHeaderLen+4+len(m.Symbol)+len(m.UserID)+len(m.Price)+len(m.StopPrice)+len(m.Quantity)+5)
	binary.BigEndian.PutUint16(buf[0:2], uint16(SubmitOrder))
	buf = append(buf, byte(m.Side), byte(m.OrderType))
	buf = appendString(buf, m.Symbol)
	buf = appendString(buf, m.UserID)
	buf = appendString(buf, m.Price)
	buf = appendString(buf, m.StopPrice)
	buf = appendString(buf, m.Quantity)
	return buf, nil
}

func parseSubmitOrder(msg []byte) (SubmitOrderMessage, error) {
	m := SubmitOrderMessage{BaseMessage: BaseMessage{TypeOf: SubmitOrder}}

	if len(msg) < 2 {
		return SubmitOrderMessage{}, ErrMessageTooShort
	}
	m.Side = engine.Side(msg[0])
	m.OrderType = engine.OrderType(msg[1])

	var err error
	offset := 2
	if m.Symbol, offset, err = readString(msg, offset); err != nil {
		return SubmitOrderMessage{}, err
	}
	if m.UserID, offset, err = readString(msg, offset); err != nil {
		return SubmitOrderMessage{}, err
	}
	if m.Price, offset, err = readString(msg, offset); err != nil {
		return SubmitOrderMessage{}, err
	}
	if m.StopPrice, offset, err = readString(msg, offset); err != nil {
		return SubmitOrderMessage{}, err
	}
	if m.Quantity, _, err = readString(msg, offset); err != nil {
		return SubmitOrderMessage{}, err
	}
	return m, nil
}

type CancelOrderMessage struct {
	BaseMessage
	OrderID uuid.UUID // 16 bytes
}

func (m CancelOrderMessage) Serialize() ([]byte, error) {
	buf := make([]byte, messageHeaderLen+16)
	binary.BigEndian.PutUint16(buf[0:2], uint16(CancelOrder))
	copy(buf[2:18], m.OrderID[:])
	return buf, nil
}

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	if len(msg) < 16 {
		return CancelOrderMessage{}, ErrMessageTooShort
	}

	id, err := uuid.FromBytes(msg[0:16])
	if err != nil {
		return CancelOrderMessage{}, err
	}
	return CancelOrderMessage{
		BaseMessage: BaseMessage{TypeOf: CancelOrder},
		OrderID:     id,
	}, nil
}

type QueryBookMessage struct {
	BaseMessage
	Symbol string // length-prefixed
}

func (m QueryBookMessage) Serialize() ([]byte, error) {
	if err := checkString(m.Symbol); err != nil {
		return nil, err
	}
	buf := make([]byte, messageHeaderLen, messageHeaderLen+1+len(m.Symbol))
	binary.BigEndian.PutUint16(buf[0:2], uint16(QueryBook))
	return appendString(buf, m.Symbol), nil
}

func parseQueryBook(msg []byte) (QueryBookMessage, error) {
	symbol, _, err := readString(msg, 0)
	if err != nil {
		return QueryBookMessage{}, err
	}
	return QueryBookMessage{
		BaseMessage: BaseMessage{TypeOf: QueryBook},
		Symbol:      symbol,
	}, nil
}

type LogBookMessage struct {
	BaseMessage
	Symbol string // length-prefixed
}

func (m LogBookMessage) Serialize() ([]byte, error) {
	if err := checkString(m.Symbol); err != nil {
		return nil, err
	}
	buf := make([]byte, messageHeaderLen, messageHeaderLen+1+len(m.Symbol))
	binary.BigEndian.PutUint16(buf[0:2], uint16(LogBook))
	return appendString(buf, m.Symbol), nil
}

func parseLogBook(msg []byte) (LogBookMessage, error) {
	symbol, _, err := readString(msg, 0)
	if err != nil {
		return LogBookMessage{}, err
	}
	return LogBookMessage{
		BaseMessage: BaseMessage{TypeOf: LogBook},
		Symbol:      symbol,
	}, nil
}

// ParseReport decodes one report frame.
func ParseReport(msg []byte) (Report, error) {
	if len(msg) < 1 {
		return nil, ErrMessageTooShort
	}

	typeOf := ReportType(msg[0])
	msg = msg[1:]
	switch typeOf {
	case AckReport:
		return parseAck(msg)
	case ExecutionReport:
		return parseExecution(msg)
	case QuoteReport:
		return parseQuote(msg)
	case ErrorReport:
		return parseError(msg)
	default:
		return nil, ErrInvalidReportType
	}
}

// Ack confirms acceptance of a submit or cancel and carries the order id the
// client needs for later cancellation.
type Ack struct {
	OrderID uuid.UUID // 16 bytes
}

func (Ack) GetReportType() ReportType { return AckReport }

func (r Ack) Serialize() ([]byte, error) {
	buf := make([]byte, 1+16)
	buf[0] = byte(AckReport)
	copy(buf[1:17], r.OrderID[:])
	return buf, nil
}

func parseAck(msg []byte) (Ack, error) {
	if len(msg) < 16 {
		return Ack{}, ErrMessageTooShort
	}
	id, err := uuid.FromBytes(msg[0:16])
	if err != nil {
		return Ack{}, err
	}
	return Ack{OrderID: id}, nil
}

// Execution tells one counterparty about one fill of its order.
type Execution struct {
	TradeID      uuid.UUID   // 16 bytes
	OrderID      uuid.UUID   // 16 bytes
	Side         engine.Side // 1 byte, this party's side
	Timestamp    int64       // 8 bytes, unix nanoseconds
	Symbol       string      // length-prefixed
	Price        string      // length-prefixed decimal
	Quantity     string      // length-prefixed decimal
	Counterparty string      // length-prefixed
}

func (Execution) GetReportType() ReportType { return ExecutionReport }

func (r Execution) Serialize() ([]byte, error) {
	for _, s := range []string{r.Symbol, r.Price, r.Quantity, r.Counterparty} {
		if err := checkString(s); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, 0, 1+16+16+1+8+len(r.Symbol)+len(r.Price)+len(r.Quantity)+len(r.Counterparty)+4)
	buf = append(buf, byte(ExecutionReport))
	buf = append(buf, r.TradeID[:]...)
	buf = append(buf, r.OrderID[:]...)
	buf = append(buf, byte(r.Side))
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.Timestamp))
	buf = appendString(buf, r.Symbol)
	buf = appendString(buf, r.Price)
	buf = appendString(buf, r.Quantity)
	buf = appendString(buf, r.Counterparty)
	return buf, nil
}

func parseExecution(msg []byte) (Execution, error) {
	if len(msg) < 16+16+1+8 {
		return Execution{}, ErrMessageTooShort
	}

	var r Execution
	var err error
	if r.TradeID, err = uuid.FromBytes(msg[0:16]); err != nil {
		return Execution{}, err
	}
	if r.OrderID, err = uuid.FromBytes(msg[16:32]); err != nil {
		return Execution{}, err
	}
	r.Side = engine.Side(msg[32])
	r.Timestamp = int64(binary.BigEndian.Uint64(msg[33:41]))

	offset := 41
	if r.Symbol, offset, err = readString(msg, offset); err != nil {
		return Execution{}, err
	}
	if r.Price, offset, err = readString(msg, offset); err != nil {
		return Execution{}, err
	}
	if r.Quantity, offset, err = readString(msg, offset); err != nil {
		return Execution{}, err
	}
	if r.Counterparty, _, err = readString(msg, offset); err != nil {
		return Execution{}, err
	}
	return r, nil
}

// Quote carries a top-of-book snapshot. Empty strings mean the side is
// absent.
type Quote struct {
	Timestamp int64  // 8 bytes, unix nanoseconds
	Symbol    string // length-prefixed
	BidPrice  string // length-prefixed decimal
	BidSize   string // length-prefixed decimal
	AskPrice  string // length-prefixed decimal
	AskSize   string // length-prefixed decimal
}

func (Quote) GetReportType() ReportType { return QuoteReport }

// QuoteFromSnapshot builds the wire quote for a book snapshot.
func QuoteFromSnapshot(book *engine.OrderBook, at int64) Quote {
	q := Quote{Timestamp: at, Symbol: book.Symbol}
	if bids := book.Depth(engine.Buy, 1); len(bids) > 0 {
		q.BidPrice = bids[0].Price.String()
		q.BidSize = bids[0].Quantity.String()
	}
	if asks := book.Depth(engine.Sell, 1); len(asks) > 0 {
		q.AskPrice = asks[0].Price.String()
		q.AskSize = asks[0].Quantity.String()
	}
	return q
}

// MarketData converts the wire quote into the boundary value type. The
// second return is false when either side of the book was absent.
func (r Quote) MarketData() (marketdata.Quote, bool) {
	if r.BidPrice == "" || r.AskPrice == "" {
		return marketdata.Quote{}, false
	}

	bidPrice, err1 := decimal.NewFromString(r.BidPrice)
	bidSize, err2 := decimal.NewFromString(r.BidSize)
	askPrice, err3 := decimal.NewFromString(r.AskPrice)
	askSize, err4 := decimal.NewFromString(r.AskSize)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return marketdata.Quote{}, false
	}

	return marketdata.Quote{
		Symbol:    r.Symbol,
		BidPrice:  bidPrice,
		BidSize:   bidSize,
		AskPrice:  askPrice,
		AskSize:   askSize,
		Timestamp: unixNano(r.Timestamp),
	}, true
}

func (r Quote) Serialize() ([]byte, error) {
	for _, s := range []string{r.Symbol, r.BidPrice, r.BidSize, r.AskPrice, r.AskSize} {
		if err := checkString(s); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, 0, 1+8+len(r.Symbol)+len(r.BidPrice)+len(r.BidSize)+len(r.AskPrice)+len(r.AskSize)+5)
	buf = append(buf, byte(QuoteReport))
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.Timestamp))
	buf = appendString(buf, r.Symbol)
	buf = appendString(buf, r.BidPrice)
	buf = appendString(buf, r.BidSize)
	buf = appendString(buf, r.AskPrice)
	buf = appendString(buf, r.AskSize)
	return buf, nil
}

func parseQuote(msg []byte) (Quote, error) {
	if len(msg) < 8 {
		return Quote{}, ErrMessageTooShort
	}

	var r Quote
	var err error
	r.Timestamp = int64(binary.BigEndian.Uint64(msg[0:8]))

	offset := 8
	if r.Symbol, offset, err = readString(msg, offset); err != nil {
		return Quote{}, err
	}
	if r.BidPrice, offset, err = readString(msg, offset); err != nil {
		return Quote{}, err
	}
	if r.BidSize, offset, err = readString(msg, offset); err != nil {
		return Quote{}, err
	}
	if r.AskPrice, offset, err = readString(msg, offset); err != nil {
		return Quote{}, err
	}
	if r.AskSize, _, err = readString(msg, offset); err != nil {
		return Quote{}, err
	}
	return r, nil
}

// Error carries a failure back to the offending client.
type Error struct {
	Message string // 2-byte length prefix
}

func (Error) GetReportType() ReportType { return ErrorReport }

func (r Error) Serialize() ([]byte, error) {
	if len(r.Message) > 0xffff {
		return nil, ErrStringTooLong
	}

	buf := make([]byte, 0, 1+2+len(r.Message))
	buf = append(buf, byte(ErrorReport))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(r.Message)))
	return append(buf, r.Message...), nil
}

func parseError(msg []byte) (Error, error) {
	if len(msg) < 2 {
		return Error{}, ErrMessageTooShort
	}
	n := int(binary.BigEndian.Uint16(msg[0:2]))
	if len(msg) < 2+n {
		return Error{}, ErrMessageTooShort
	}
	return Error{Message: string(msg[2 : 2+n])}, nil
}
