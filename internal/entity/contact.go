package entity

import (
	"errors"
	"strings"
)

const (
	LeadStatusNew      = "NEW"
	LeadStatusEnrolled = "ENROLLED"
)

var ErrContactNotFound = errors.New("contact not found")

// ContactRef is the handle the CRM gives us back. The email is the natural
// key (case-insensitive); the ID is whatever the CRM minted.
type ContactRef struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Contact mirrors the CRM-side record. This service never deletes contacts;
// it creates them on first enrollment attempt and fills gaps afterwards.
type Contact struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Course        string `json:"course"`
	LeadStatus    string `json:"lead_status"` // NEW, ENROLLED
	PaymentStatus string `json:"payment_status"`
	PaidAmount    int64  `json:"paid_amount"` // minor units
	PaymentID     string `json:"payment_id"`
}

// ProfileFields is what the intake form knows about the person. Remote
// fields that already have a value are never overwritten with these —
// staff edits in the CRM win.
type ProfileFields struct {
	Name   string
	Phone  string
	Course string
}

// NormalizeEmail lowercases and trims so "A@X.com " and "a@x.com" hit the
// same CRM record.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone reduces a phone string to E.164 shape: "+" plus digits.
// "(55) 11 99999-9999" becomes "+5511999999999". Returns "" when nothing
// usable remains.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 8 || len(digits) > 15 {
		return ""
	}
	return "+" + digits
}
