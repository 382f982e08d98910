// Package models defines the core data structures shared by the FinKeeper
// client and the reference finance service.
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// User represents a registered account on the finance service.
type User struct {
	// ID is assigned by the server.
	ID string
	// Login is the unique login name chosen by the user.
	Login string
	// Name is the display name.
	Name string
	// Email is the contact address.
	Email string
	// Currency is the ISO 4217 code used to display amounts.
	Currency string
}

// Profile returns the public view of u.
func (u User) Profile(updatedAt time.Time) Profile {
	return Profile{
		ID:        u.ID,
		Login:     u.Login,
		Name:      u.Name,
		Email:     u.Email,
		Currency:  u.Currency,
		UpdatedAt: updatedAt,
	}
}

// Profile is the authenticated user's profile as returned by the session endpoint.
type Profile struct {
	ID        string    `json:"id"`
	Login     string    `json:"login"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Currency  string    `json:"currency"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TransactionType classifies a transaction as money coming in or going out.
type TransactionType string

const (
	// Income is money received.
	Income TransactionType = "income"
	// Expense is money spent.
	Expense TransactionType = "expense"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// ParseTransactionType converts s into a TransactionType.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
	return t, nil
}

// Transaction is the canonical record stored by the finance service.
type Transaction struct {
	// ID is assigned by the server.
	ID string `json:"id"`
	// Amount is always positive; Type carries the sign.
	Amount decimal.Decimal `json:"amount"`
	Type   TransactionType `json:"type"`
	// CategoryID references a Category, empty when uncategorised.
	CategoryID   string `json:"category"`
	CategoryName string `json:"category_name,omitempty"`
	// Date is the calendar day the transaction logically occurred.
	Date      Date      `json:"date"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTransaction is the payload accepted by the transaction creation endpoint.
type NewTransaction struct {
	Amount     decimal.Decimal `json:"amount"`
	Type       TransactionType `json:"type"`
	CategoryID string          `json:"category"`
	Date       Date            `json:"date"`
	Note       string          `json:"note,omitempty"`
}

// Validate checks the invariants every transaction must satisfy.
func (n NewTransaction) Validate() error {
	if !n.Type.Valid() {
		return fmt.Errorf("unknown transaction type %q", n.Type)
	}
	if !n.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", n.Amount)
	}
	if n.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	return nil
}

// Category groups transactions of one type.
type Category struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      TransactionType `json:"type"`
	IsDefault bool            `json:"is_default"`
	UpdatedAt time.Time       `json:"updated_at"`
}
