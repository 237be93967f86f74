package commands

import (
	"github.com/spf13/cobra"

	"github.com/rl1809/mini-storefront/internal/core/domain"
)

func newCheckoutCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Pay for the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var form domain.PaymentForm
	var requestID string

	pay := &cobra.Command{
		Use:   "pay",
		Short: "Submit payment details for the cart",
		Long: `Submit payment details for the cart. The cart is turned into an order and
emptied. No payment is actually taken.

A payment is accepted once per --request-id; without one every call is a
new payment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			form.CardNumber = domain.FormatCardNumber(form.CardNumber)
			form.Expiry = domain.FormatExpiry(form.Expiry)

			for _, step := range []domain.Step{domain.StepCart, domain.StepPayment} {
				a.store.Checkout.GoTo(localSession, step)
				a.printer.Step("%s", step)
			}

			order, err := a.store.SubmitPayment(cmd.Context(), localSession, requestID, form)
			if err != nil {
				a.store.Checkout.GoTo(localSession, domain.StepCart)
				return a.fail("Payment not accepted", err)
			}
			a.printer.Success("order %s placed: %s, card ****%s", order.ID, order.Total.StringFixed(2), order.CardSuffix)
			return nil
		},
	}
	pay.Flags().StringVar(&form.CardNumber, "card", "", "Card number")
	pay.Flags().StringVar(&form.CardHolder, "holder", "", "Card holder name")
	pay.Flags().StringVar(&form.Expiry, "expiry", "", "Expiry as MM/YY")
	pay.Flags().StringVar(&form.CVC, "cvc", "", "Card verification code")
	pay.Flags().StringVar(&requestID, "request-id", "", "Idempotency key for this payment")

	cmd.AddCommand(pay)
	return cmd
}

func newOrdersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List placed orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orders, err := a.store.Orders(cmd.Context(), localSession)
			if err != nil {
				return a.fail("Cannot list orders", err)
			}
			a.printer.Orders(orders)
			return nil
		},
	}
}
