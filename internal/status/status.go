package status

import "errors"

var (
	ErrUnauthenticated       = errors.New("booking: unauthenticated")
	ErrEventNotFound         = errors.New("booking: event not found")
	ErrTicketTypeNotFound    = errors.New("booking: ticket type not found")
	ErrInvalidQuantity       = errors.New("booking: invalid quantity")
	ErrInsufficientInventory = errors.New("booking: insufficient inventory")

	ErrForbidden         = errors.New("event: forbidden")
	ErrInvalidEvent      = errors.New("event: invalid event")
	ErrInvalidTicketType = errors.New("event: invalid ticket type")

	ErrTicketNotFound    = errors.New("ticket: ticket not found")
	ErrInvalidScanToken  = errors.New("ticket: invalid scan token")
	ErrTicketIssueFailed = errors.New("ticket: issue failed")

	ErrEmailTaken         = errors.New("account: email already in use")
	ErrInvalidCredentials = errors.New("account: invalid email or password")
	ErrInvalidAccount     = errors.New("account: invalid account")
)

// Kind is the caller-facing name of an error, stable across transports.
type Kind string

const (
	KindUnauthenticated       Kind = "Unauthenticated"
	KindEventNotFound         Kind = "EventNotFound"
	KindTicketTypeNotFound    Kind = "TicketTypeNotFound"
	KindInvalidQuantity       Kind = "InvalidQuantity"
	KindInsufficientInventory Kind = "InsufficientInventory"
	KindForbidden             Kind = "Forbidden"
	KindInvalidEvent          Kind = "InvalidEvent"
	KindInvalidTicketType     Kind = "InvalidTicketType"
	KindTicketNotFound        Kind = "TicketNotFound"
	KindInvalidScanToken      Kind = "InvalidScanToken"
	KindEmailTaken            Kind = "EmailTaken"
	KindInvalidCredentials    Kind = "InvalidCredentials"
	KindInvalidAccount        Kind = "InvalidAccount"
	KindInternal              Kind = "Internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrUnauthenticated, KindUnauthenticated},
	{ErrEventNotFound, KindEventNotFound},
	{ErrTicketTypeNotFound, KindTicketTypeNotFound},
	{ErrInvalidQuantity, KindInvalidQuantity},
	{ErrInsufficientInventory, KindInsufficientInventory},
	{ErrForbidden, KindForbidden},
	{ErrInvalidEvent, KindInvalidEvent},
	{ErrInvalidTicketType, KindInvalidTicketType},
	{ErrTicketNotFound, KindTicketNotFound},
	{ErrInvalidScanToken, KindInvalidScanToken},
	{ErrEmailTaken, KindEmailTaken},
	{ErrInvalidCredentials, KindInvalidCredentials},
	{ErrInvalidAccount, KindInvalidAccount},
}

// KindOf reports the Kind of err, or KindInternal for anything unrecognised.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
