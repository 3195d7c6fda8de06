package services

import (
	"testing"

	"ticket-ledger/internal/status"
	"ticket-ledger/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuerEvent() (models.Event, models.TicketType) {
	tt := models.TicketType{ID: "T1", Name: "Regular", Price: decimal.NewFromInt(50), Currency: "GHS", Capacity: 10}
	return models.Event{ID: "E1", Title: "Accra Jazz Festival", TicketTypes: []models.TicketType{tt}}, tt
}

func TestTicketIssuer_Issue(t *testing.T) {
	issuer := NewTicketIssuer("secret")
	issuer.newID = sequence("tkt")
	event, tt := issuerEvent()

	tickets, err := issuer.Issue(*userA, event, tt, 3, decimal.RequireFromString("49.99"))
	require.NoError(t, err)
	require.Len(t, tickets, 3)
	assert.Equal(t, "tkt-1", tickets[0].ID)
	assert.Equal(t, "tkt-3", tickets[2].ID)
	for _, tk := range tickets {
		assert.Equal(t, "49.99", tk.Price.String())
		assert.Equal(t, "GHS", tk.Currency)
		assert.Equal(t, "Regular", tk.TicketTypeName)
		assert.Len(t, tk.ScanToken, 32)
	}
	assert.NotEqual(t, tickets[0].ScanToken, tickets[1].ScanToken)
}

func TestTicketIssuer_IssueRejects(t *testing.T) {
	issuer := NewTicketIssuer("secret")
	event, tt := issuerEvent()

	_, err := issuer.Issue(*userA, event, tt, 0, tt.Price)
	assert.ErrorIs(t, err, status.ErrInvalidQuantity)
	_, err = issuer.Issue(models.User{}, event, tt, 1, tt.Price)
	assert.ErrorIs(t, err, status.ErrUnauthenticated)

	issuer.newID = func() string { return "" }
	_, err = issuer.Issue(*userA, event, tt, 1, tt.Price)
	assert.ErrorIs(t, err, status.ErrTicketIssueFailed)
}

func TestTicketIssuer_ScanTokenIsKeyedAndDeterministic(t *testing.T) {
	a := NewTicketIssuer("secret")
	b := NewTicketIssuer("secret")
	other := NewTicketIssuer("another secret")

	tokenA, err := a.ScanToken("E1", "T1", "tkt-1", "userA")
	require.NoError(t, err)
	tokenB, err := b.ScanToken("E1", "T1", "tkt-1", "userA")
	require.NoError(t, err)
	tokenOther, err := other.ScanToken("E1", "T1", "tkt-1", "userA")
	require.NoError(t, err)

	assert.Equal(t, tokenA, tokenB)
	assert.NotEqual(t, tokenA, tokenOther)
	assert.Regexp(t, "^[0-9a-f]{32}$", tokenA)

	shifted, err := a.ScanToken("E1T", "1", "tkt-1", "userA")
	require.NoError(t, err)
	assert.NotEqual(t, tokenA, shifted)
}

func TestTicketIssuer_Verify(t *testing.T) {
	issuer := NewTicketIssuer("secret")
	event, tt := issuerEvent()
	tickets, err := issuer.Issue(*userA, event, tt, 1, tt.Price)
	require.NoError(t, err)
	tk := tickets[0]

	assert.True(t, issuer.Verify(tk, tk.ScanToken))
	assert.False(t, issuer.Verify(tk, ""))
	assert.False(t, NewTicketIssuer("other").Verify(tk, tk.ScanToken))

	transferred := tk
	transferred.UserID = userB.ID
	assert.False(t, issuer.Verify(transferred, tk.ScanToken))
}
