// Package net is the TCP order gateway. It frames client requests off long
// lived connections, screens submissions through the risk gate and feeds the
// matching engine, pushing execution reports back to both counterparties of
// every trade.
package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"

	"vidar/internal/engine"
	"vidar/internal/risk"
	"vidar/internal/utils"
)

const defaultNWorkers = 10

var ErrClientDoesNotExist = errors.New("client does not exist")

// Engine is the order-handling surface the gateway drives.
type Engine interface {
	SubmitOrder(order *engine.Order) ([]engine.Trade, error)
	CancelOrder(id uuid.UUID) error
	GetOrder(id uuid.UUID) (engine.Order, bool)
	GetOrderBook(symbol string) (*engine.OrderBook, bool)
	LogBook(symbol string)
}

// Gate is the pre-trade screen and position ledger. The gateway is the
// gate's caller: orders failing the check never reach the engine, and every
// fill updates both parties' positions.
type Gate interface {
	CheckOrder(order *engine.Order) risk.Check
	UpdatePosition(userID string, trade *engine.Trade)
	AddPosition(userID string, quantity decimal.Decimal)
}

// clientSession contains relevant information pertaining to an individual
// connected TCP session.
type clientSession struct {
	conn    net.Conn
	writeMu sync.Mutex
}

func (s *clientSession) send(report Report) error {
	payload, err := report.Serialize()
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return WriteFrame(s.conn, payload)
}

// clientMessage links a message to the client sending it.
type clientMessage struct {
	clientAddress string
	message       Message
}

type Server struct {
	address string
	port    int
	engine  Engine
	gate    Gate
	pool    utils.WorkerPool
	cancel  context.CancelFunc

	sessionsMu   sync.Mutex
	sessions     map[string]*clientSession // keyed by remote address
	userSessions map[string]string         // user id -> remote address

	clientMessages chan clientMessage
}

func New(address string, port int, eng Engine, gate Gate, workers int) *Server {
	if workers <= 0 {
		workers = defaultNWorkers
	}
	return &Server{
		address:        address,
		port:           port,
		engine:         eng,
		gate:           gate,
		pool:           utils.NewWorkerPool(workers),
		sessions:       make(map[string]*clientSession),
		userSessions:   make(map[string]string),
		clientMessages: make(chan clientMessage, 1),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("gateway shutting down")
	s.cancel()
}

func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	// Unblock Accept when the context dies.
	t.Go(func() error {
		<-ctx.Done()
		return listener.Close()
	})

	s.pool.Setup(t, s.handleConnection)

	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Str("address", s.address).Int("port", s.port).Msg("gateway running")

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Error().Err(err).Msg("error accepting client")
				continue
			}
		}

		log.Info().
			Str("address", conn.RemoteAddr().String()).
			Msg("new client added")
		s.addClientSession(conn)
		s.pool.AddTask(conn)
	}
}

func (s *Server) addClientSession(conn net.Conn) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.sessions[conn.RemoteAddr().String()] = &clientSession{conn: conn}
}

func (s *Server) dropClientSession(address string) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	delete(s.sessions, address)
	for user, addr := range s.userSessions {
		if addr == address {
			delete(s.userSessions, user)
		}
	}
}

// bindUser remembers which connection speaks for the user so execution
// reports can find their way back.
func (s *Server) bindUser(userID, address string) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.userSessions[userID] = address
}

func (s *Server) sessionFor(address string) (*clientSession, bool) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	session, ok := s.sessions[address]
	return session, ok
}

func (s *Server) sessionForUser(userID string) (*clientSession, bool) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	address, ok := s.userSessions[userID]
	if !ok {
		return nil, false
	}
	session, ok := s.sessions[address]
	return session, ok
}

// handleConnection is the pool work function: it owns one connection and
// pumps its frames into the session handler until the peer goes away or the
// tomb dies.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return nil
	}
	address := conn.RemoteAddr().String()
	defer func() {
		s.dropClientSession(address)
		conn.Close()
	}()

	for {
		frame, err := ReadFrame(conn)
		if err != nil {
			log.Info().Err(err).Str("clientAddress", address).Msg("client disconnected")
			return nil
		}

		message, err := ParseMessage(frame)
		if err != nil {
			log.Error().Err(err).Str("clientAddress", address).Msg("unparseable message")
			s.reportError(address, err)
			continue
		}

		select {
		case <-t.Dying():
			return nil
		case s.clientMessages <- clientMessage{clientAddress: address, message: message}:
		}
	}
}

// sessionHandler serializes message handling across all connections.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			if err := s.handleMessage(message); err != nil {
				log.Error().
					Err(err).
					Str("clientAddress", message.clientAddress).
					Msg("error handling message")
				s.reportError(message.clientAddress, err)
			}
		}
	}
}

func (s *Server) handleMessage(message clientMessage) error {
	switch m := message.message.(type) {
	case SubmitOrderMessage:
		return s.handleSubmit(message.clientAddress, m)
	case CancelOrderMessage:
		return s.handleCancel(message.clientAddress, m)
	case QueryBookMessage:
		return s.handleQuery(message.clientAddress, m)
	case LogBookMessage:
		s.engine.LogBook(m.Symbol)
		return nil
	case BaseMessage:
		// Heartbeat; nothing to do.
		return nil
	default:
		log.Error().
			Int("messageType", int(message.message.GetType())).
			Msg("invalid message type")
		return ErrInvalidMessageType
	}
}

func (s *Server) handleSubmit(address string, m SubmitOrderMessage) error {
	order, err := m.Order()
	if err != nil {
		return err
	}
	s.bindUser(order.UserID, address)

	if check := s.gate.CheckOrder(order); !check.Passed {
		log.Warn().
			Str("user", order.UserID).
			Str("reason", check.Reason).
			Msg("order refused by risk gate")
		return errors.New(check.Reason)
	}

	s.reportAck(address, order.ID)

	trades, err := s.engine.SubmitOrder(order)
	for _, trade := range trades {
		s.settleTrade(order, trade)
	}
	if err != nil {
		return err
	}

	log.Info().
		Str("order", order.ID.String()).
		Str("user", order.UserID).
		Int("trades", len(trades)).
		Msg("order submitted")
	return nil
}

// settleTrade books the fill into both parties' positions and pushes an
// execution report to each connected party. The taker is attributed the
// trade's aggressing side; the maker the opposite.
func (s *Server) settleTrade(taker *engine.Order, trade engine.Trade) {
	makerOrderID := trade.SellerOrderID
	if taker.Side == engine.Sell {
		makerOrderID = trade.BuyerOrderID
	}

	s.gate.UpdatePosition(taker.UserID, &trade)

	maker, ok := s.engine.GetOrder(makerOrderID)
	if !ok {
		log.Error().Str("order", makerOrderID.String()).Msg("maker order missing from engine")
		return
	}
	makerQuantity := trade.Quantity
	if trade.AggressingSide == engine.Buy {
		makerQuantity = makerQuantity.Neg()
	}
	s.gate.AddPosition(maker.UserID, makerQuantity)

	s.reportExecution(taker.UserID, taker.ID, taker.Side, maker.UserID, trade)
	s.reportExecution(maker.UserID, maker.ID, maker.Side, taker.UserID, trade)
}

func (s *Server) handleCancel(address string, m CancelOrderMessage) error {
	if err := s.engine.CancelOrder(m.OrderID); err != nil {
		return err
	}
	s.reportAck(address, m.OrderID)
	return nil
}

func (s *Server) handleQuery(address string, m QueryBookMessage) error {
	session, ok := s.sessionFor(address)
	if !ok {
		return ErrClientDoesNotExist
	}

	book, ok := s.engine.GetOrderBook(m.Symbol)
	if !ok {
		return fmt.Errorf("no book for symbol %q", m.Symbol)
	}
	return session.send(QuoteFromSnapshot(book, time.Now().UnixNano()))
}

func (s *Server) reportAck(address string, orderID uuid.UUID) {
	session, ok := s.sessionFor(address)
	if !ok {
		return
	}
	if err := session.send(Ack{OrderID: orderID}); err != nil {
		log.Error().Err(err).Str("clientAddress", address).Msg("unable to send ack")
		s.dropClientSession(address)
	}
}

func (s *Server) reportExecution(userID string, orderID uuid.UUID, side engine.Side, counterparty string, trade engine.Trade) {
	session, ok := s.sessionForUser(userID)
	if !ok {
		// Party not connected; position is booked regardless.
		return
	}

	report := Execution{
		TradeID:      trade.ID,
		OrderID:      orderID,
		Side:         side,
		Timestamp:    trade.Timestamp.UnixNano(),
		Symbol:       trade.Symbol,
		Price:        trade.Price.String(),
		Quantity:     trade.Quantity.String(),
		Counterparty: counterparty,
	}
	if err := session.send(report); err != nil {
		log.Error().Err(err).Str("user", userID).Msg("unable to send execution report")
	}
}

func (s *Server) reportError(address string, cause error) {
	session, ok := s.sessionFor(address)
	if !ok {
		return
	}
	if err := session.send(Error{Message: cause.Error()}); err != nil {
		log.Error().Err(err).Str("clientAddress", address).Msg("unable to send error report")
		s.dropClientSession(address)
	}
}
