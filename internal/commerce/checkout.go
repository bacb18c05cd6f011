package commerce

import (
	"context"
	"errors"
	"strings"
)

const checkoutMutation = `mutation checkoutCreate($input: CheckoutCreateInput!) {
  checkoutCreate(input: $input) {
    checkout { id webUrl }
    checkoutUserErrors { field message }
  }
}`

// Visitor-facing checkout messages.
const (
	MessageCheckoutRejected    = "Error al crear el checkout. Por favor, inténtalo de nuevo."
	MessageCheckoutFailed      = "Error al procesar el checkout. Por favor, inténtalo de nuevo."
	MessageCheckoutUnavailable = "El checkout no está disponible en este momento. Tu carrito se ha guardado."
)

// LineItem is one checkout line.
type LineItem struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

// Checkout is the created checkout and the URL the visitor is redirected to.
type Checkout struct {
	ID     string `json:"id"`
	WebURL string `json:"webUrl"`
}

// UserError is a field-level rejection reported by the backend.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// CheckoutError carries a message safe to show the visitor. The cart is never cleared
// when it is returned.
type CheckoutError struct {
	Message    string
	UserErrors []UserError
	Err        error
}

// Error implements the error interface.
func (e *CheckoutError) Error() string {
	if e.Err != nil {
		return "commerce: checkout failed: " + e.Err.Error()
	}
	if len(e.UserErrors) > 0 {
		parts := make([]string, 0, len(e.UserErrors))
		for _, ue := range e.UserErrors {
			parts = append(parts, ue.Message)
		}
		return "commerce: checkout rejected: " + strings.Join(parts, "; ")
	}
	return "commerce: checkout failed"
}

// Unwrap exposes the transport error.
func (e *CheckoutError) Unwrap() error { return e.Err }

type checkoutData struct {
	CheckoutCreate *struct {
		Checkout           *Checkout   `json:"checkout"`
		CheckoutUserErrors []UserError `json:"checkoutUserErrors"`
	} `json:"checkoutCreate"`
}

// CreateCheckout creates a hosted checkout for the lines. Every failure is a *CheckoutError.
func (c *Client) CreateCheckout(ctx context.Context, lines []LineItem) (Checkout, error) {
	if !c.Configured() {
		return Checkout{}, &CheckoutError{Message: MessageCheckoutUnavailable, Err: ErrNotConfigured}
	}
	input := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		input = append(input, map[string]any{"variantId": line.VariantID, "quantity": line.Quantity})
	}
	var data checkoutData
	err := c.do(ctx, checkoutMutation, map[string]any{"input": map[string]any{"lineItems": input}}, &data)
	if err != nil {
		c.logger(ctx, "commerce.checkout_failed", map[string]any{"error": err})
		return Checkout{}, &CheckoutError{Message: MessageCheckoutFailed, Err: err}
	}
	if data.CheckoutCreate == nil || data.CheckoutCreate.Checkout == nil || strings.TrimSpace(data.CheckoutCreate.Checkout.WebURL) == "" {
		var userErrors []UserError
		if data.CheckoutCreate != nil {
			userErrors = data.CheckoutCreate.CheckoutUserErrors
		}
		c.logger(ctx, "commerce.checkout_rejected", map[string]any{"userErrors": len(userErrors)})
		ce := &CheckoutError{Message: MessageCheckoutRejected, UserErrors: userErrors}
		if len(userErrors) == 0 {
			ce.Err = errors.New("checkout missing webUrl")
		}
		return Checkout{}, ce
	}
	return *data.CheckoutCreate.Checkout, nil
}
