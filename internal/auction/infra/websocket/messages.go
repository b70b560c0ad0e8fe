package websocket

import (
	"github.com/cristianortiz/liveAuction/internal/auction/application"
	"github.com/google/uuid"
)

// MessageType defines ws type message
type MessageType string

const (
	MessageTypeClientBid       MessageType = "client_bid"           // client msg to make a bid
	MessageTypeServerBidResult MessageType = "server_bid_result"    // server reply to a client_bid
	MessageTypeServerEvent     MessageType = "server_auction_event" // server broadcast of an auction event
	MessageTypeServerError     MessageType = "server_error"         // server msg indicating error
)

// BaseMessage is base struct for all the WS messages, includes a Type field for identify the message type
type BaseMessage struct {
	Type MessageType `json:"type"`
}

// ClientBidMessage is DTO for a bid message sent by the client. BidderID may be omitted
// when the connection was opened with ?bidder=.
type ClientBidMessage struct {
	BaseMessage
	Payload struct {
		AuctionID uuid.UUID `json:"auction_id"`
		BidderID  uuid.UUID `json:"bidder_id"`
		Amount    *float64  `json:"amount"`
	} `json:"payload"`
}

type ServerBidResultMessage struct {
	BaseMessage
	Payload *application.BidResultDTO `json:"payload"`
}

type ServerErrorMessage struct {
	BaseMessage
	Payload struct {
		Error     string `json:"error"`
		Retryable bool   `json:"retryable"`
	} `json:"payload"`
}

// eventEnvelope wraps a wire frame as {"type":"server_auction_event","payload":<frame>}.
func eventEnvelope(frame []byte) []byte {
	const prefix = `{"type":"` + string(MessageTypeServerEvent) + `","payload":`
	buf := make([]byte, 0, len(prefix)+len(frame)+1)
	buf = append(buf, prefix...)
	buf = append(buf, frame...)
	return append(buf, '}')
}
