package store

// AccountStatus is the connection lifecycle state of a messaging account.
type AccountStatus string

const (
	StatusPending      AccountStatus = "pending"
	StatusScanning     AccountStatus = "scanning"
	StatusConnected    AccountStatus = "connected"
	StatusDisconnected AccountStatus = "disconnected"
	StatusNotConnected AccountStatus = "not_connected"
)

// Direction tells whether a message was sent from or received by an account.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageFailed    MessageStatus = "failed"
)

// messageStatusRank orders delivery states. delivered and failed are
// terminal; a lower-ranked status never overwrites a higher-ranked one.
var messageStatusRank = map[MessageStatus]int{
	MessageSent:      0,
	MessageDelivered: 1,
	MessageFailed:    1,
}

// MessageStatusRegresses reports whether moving from to next would move a
// message backwards in its delivery lifecycle.
func MessageStatusRegresses(from, next MessageStatus) bool {
	return messageStatusRank[next] < messageStatusRank[from]
}

// Account is one managed messaging identity.
type Account struct {
	ID           int64
	Name         string
	PhoneNumber  string
	Status       AccountStatus
	LinkingToken string
	IsActive     bool
	LastSeen     int64
	CreatedAt    int64
}

// Contact is a conversation partner scoped to one account. LastMessage and
// LastMessageTime are a denormalized cache of the newest message.
type Contact struct {
	ID              string
	AccountID       int64
	Phone           string
	Name            string
	LastMessage     string
	LastMessageTime int64
	UnreadCount     int
	CreatedAt       int64
}

// Message is a single sent or received message.
type Message struct {
	ID        string
	AccountID int64
	ToPhone   string
	FromPhone string
	Direction Direction
	Body      string
	Status    MessageStatus
	Timestamp int64
	CreatedAt int64
}

// Counterparty returns the address of the other side of the conversation.
func (m *Message) Counterparty() string {
	if m.Direction == DirectionSent {
		return m.ToPhone
	}
	return m.FromPhone
}

// AccountPatch is a partial account update. Nil fields are left unchanged.
type AccountPatch struct {
	Name         *string
	PhoneNumber  *string
	Status       *AccountStatus
	LinkingToken *string
	IsActive     *bool
	LastSeen     *int64
}

// ContactPatch is a partial contact update. Nil fields are left unchanged.
type ContactPatch struct {
	Name            *string
	LastMessage     *string
	LastMessageTime *int64
	UnreadCount     *int
}
