package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"vidar/internal/engine"
	vidarnet "vidar/internal/net"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange gateway")
	user := flag.String("user", "", "User id (compulsory)")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel', 'quote', 'log']")

	// Order parameters
	symbol := flag.String("symbol", "AAPL", "Symbol to trade")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "Order type: 'limit', 'market', 'stop-loss' or 'stop-limit'")
	price := flag.String("price", "", "Limit price (decimal string)")
	stopPrice := flag.String("stop", "", "Stop price (decimal string)")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")

	// Cancel parameters
	id := flag.String("id", "", "Order id to cancel")

	flag.Parse()

	if *user == "" {
		fmt.Println("Error: -user is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to gateway at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s as '%s'\n", *serverAddr, *user)

	go readReports(conn)

	side := engine.Buy
	if strings.ToLower(*sideStr) == "sell" {
		side = engine.Sell
	}

	var orderType engine.OrderType
	switch strings.ToLower(*typeStr) {
	case "limit":
		orderType = engine.LimitOrder
	case "market":
		orderType = engine.MarketOrder
	case "stop-loss":
		orderType = engine.StopLossOrder
	case "stop-limit":
		orderType = engine.StopLimitOrder
	default:
		log.Fatalf("Unknown order type: %s", *typeStr)
	}

	switch strings.ToLower(*action) {
	case "place":
		for _, qty := range strings.Split(*qtyStr, ",") {
			qty = strings.TrimSpace(qty)
			if qty == "" {
				continue
			}
			if err := sendPlaceOrder(conn, *user, *symbol, side, orderType, *price, *stopPrice, qty); err != nil {
				log.Printf("Failed to place order (qty: %s): %v", qty, err)
				continue
			}
			fmt.Printf("-> Sent %s %s order: %s %s @ %s\n",
				strings.ToUpper(*sideStr), *typeStr, *symbol, qty, *price)
			// Small delay so the gateway processes the sequence distinctly.
			time.Sleep(5 * time.Millisecond)
		}

	case "cancel":
		orderID, err := uuid.Parse(*id)
		if err != nil {
			log.Fatalf("Error: -id must be a valid order id: %v", err)
		}
		if err := sendCancelOrder(conn, orderID); err != nil {
			log.Printf("Failed to send cancel request: %v", err)
		} else {
			fmt.Printf("-> Sent cancel request for %s\n", orderID)
		}

	case "quote":
		if err := sendQuery(conn, *symbol); err != nil {
			log.Printf("Failed to send quote request: %v", err)
		} else {
			fmt.Printf("-> Sent quote request for %s\n", *symbol)
		}

	case "log":
		if err := sendLog(conn, *symbol); err != nil {
			log.Printf("Failed to send log request: %v", err)
		} else {
			fmt.Println("-> Sent log request")
		}

	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	fmt.Println("\nListening for reports... (Press Ctrl+C to exit)")
	select {}
}

func sendPlaceOrder(conn net.Conn, user, symbol string, side engine.Side, orderType engine.OrderType, price, stopPrice, qty string) error {
	msg := vidarnet.SubmitOrderMessage{
		Side:      side,
		OrderType: orderType,
		Symbol:    symbol,
		UserID:    user,
		Price:     price,
		StopPrice: stopPrice,
		Quantity:  qty,
	}
	payload, err := msg.Serialize()
	if err != nil {
		return err
	}
	return vidarnet.WriteFrame(conn, payload)
}

func sendCancelOrder(conn net.Conn, orderID uuid.UUID) error {
	payload, err := vidarnet.CancelOrderMessage{OrderID: orderID}.Serialize()
	if err != nil {
		return err
	}
	return vidarnet.WriteFrame(conn, payload)
}

func sendQuery(conn net.Conn, symbol string) error {
	payload, err := vidarnet.QueryBookMessage{Symbol: symbol}.Serialize()
	if err != nil {
		return err
	}
	return vidarnet.WriteFrame(conn, payload)
}

func sendLog(conn net.Conn, symbol string) error {
	payload, err := vidarnet.LogBookMessage{Symbol: symbol}.Serialize()
	if err != nil {
		return err
	}
	return vidarnet.WriteFrame(conn, payload)
}

// readReports continuously reads and prints report frames from the gateway.
func readReports(conn net.Conn) {
	for {
		frame, err := vidarnet.ReadFrame(conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("Connection lost: %v", err)
			}
			os.Exit(0)
		}

		report, err := vidarnet.ParseReport(frame)
		if err != nil {
			log.Printf("Bad report from gateway: %v", err)
			continue
		}

		switch r := report.(type) {
		case vidarnet.Ack:
			fmt.Printf("\n[ACK] Order id: %s\n", r.OrderID)
		case vidarnet.Execution:
			fmt.Printf("\n[EXECUTION] %s %s | Qty: %s | Price: %s | vs: %s | Order: %s\n",
				strings.ToUpper(r.Side.String()), r.Symbol, r.Quantity, r.Price, r.Counterparty, r.OrderID)
		case vidarnet.Quote:
			if quote, ok := r.MarketData(); ok {
				fmt.Printf("\n[QUOTE] %s | Bid: %s x %s | Ask: %s x %s | Spread: %s | Mid: %s\n",
					quote.Symbol, quote.BidSize, quote.BidPrice, quote.AskSize, quote.AskPrice,
					quote.Spread(), quote.MidPrice())
			} else {
				fmt.Printf("\n[QUOTE] %s | Bid: %s x %s | Ask: %s x %s\n",
					r.Symbol, r.BidSize, r.BidPrice, r.AskSize, r.AskPrice)
			}
		case vidarnet.Error:
			fmt.Printf("\n[SERVER ERROR] %s\n", r.Message)
		}
	}
}
