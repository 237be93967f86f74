package domain

import (
	"errors"
	"strings"
)

type Step int

const (
	StepProducts Step = iota
	StepCart
	StepPayment
)

var stepLabels = [...]string{"View Products", "Cart Details", "Payment"}

func (s Step) String() string {
	if s < StepProducts || s > StepPayment {
		return "unknown"
	}
	return stepLabels[s]
}

// Clamp keeps s within the checkout steps.
func (s Step) Clamp() Step {
	if s < StepProducts {
		return StepProducts
	}
	if s > StepPayment {
		return StepPayment
	}
	return s
}

var (
	ErrCardNumberRequired = errors.New("card number is required")
	ErrCardHolderRequired = errors.New("card holder is required")
	ErrExpiryRequired     = errors.New("expiry date is required")
	ErrCVCRequired        = errors.New("cvc is required")
)

type PaymentForm struct {
	CardNumber string `json:"card_number"`
	CardHolder string `json:"card_holder"`
	Expiry     string `json:"expiry"`
	CVC        string `json:"cvc"`
}

func (f PaymentForm) Validate() error {
	switch {
	case digits(f.CardNumber, 16) == "":
		return ErrCardNumberRequired
	case strings.TrimSpace(f.CardHolder) == "":
		return ErrCardHolderRequired
	case digits(f.Expiry, 4) == "":
		return ErrExpiryRequired
	case strings.TrimSpace(f.CVC) == "":
		return ErrCVCRequired
	}
	return nil
}

// CardSuffix returns the last four digits of the card number.
func (f PaymentForm) CardSuffix() string {
	d := digits(f.CardNumber, 16)
	if len(d) <= 4 {
		return d
	}
	return d[len(d)-4:]
}

// FormatCardNumber keeps the first 16 digits and groups them by four.
func FormatCardNumber(s string) string {
	d := digits(s, 16)
	var b strings.Builder
	for i, r := range d {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatExpiry keeps the first 4 digits and renders them as MM/YY.
func FormatExpiry(s string) string {
	d := digits(s, 4)
	if len(d) < 2 {
		return d
	}
	return d[:2] + "/" + d[2:]
}

func digits(s string, max int) string {
	var b strings.Builder
	for _, r := range s {
		if r < '0' || r > '9' {
			continue
		}
		if b.Len() == max {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}
