package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show or change the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.printer.Cart(a.store.Carts.Items(cmd.Context(), localSession))
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <id>",
			Short: "Add a product to the cart",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(a, args[0])
				if err != nil {
					return err
				}
				if a.store.Carts.Contains(cmd.Context(), localSession, id) {
					a.printer.Warning("product %d is already in the cart", id)
					return nil
				}
				cart, err := a.store.AddProduct(cmd.Context(), localSession, id)
				if err != nil {
					return a.fail(fmt.Sprintf("Cannot add product %d", id), err)
				}
				a.printer.Success("added product %d", id)
				a.printer.Cart(cart.Items)
				return nil
			},
		},
		&cobra.Command{
			Use:     "remove <id>",
			Aliases: []string{"rm"},
			Short:   "Remove a product from the cart",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(a, args[0])
				if err != nil {
					return err
				}
				cart, err := a.store.RemoveProduct(cmd.Context(), localSession, id)
				if err != nil {
					return a.fail(fmt.Sprintf("Cannot remove product %d", id), err)
				}
				a.printer.Success("removed product %d", id)
				a.printer.Cart(cart.Items)
				return nil
			},
		},
		newAdjustCmd(a, "inc", "Increase a product's quantity by one", 1),
		newAdjustCmd(a, "dec", "Decrease a product's quantity by one", -1),
	)
	return cmd
}

func newAdjustCmd(a *app, use, short string, delta int) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(a, args[0])
			if err != nil {
				return err
			}
			if !a.store.Carts.Contains(cmd.Context(), localSession, id) {
				a.printer.Warning("product %d is not in the cart", id)
				return nil
			}
			cart, err := a.store.AdjustQuantity(cmd.Context(), localSession, id, delta)
			if err != nil {
				return a.fail(fmt.Sprintf("Cannot change product %d", id), err)
			}
			a.printer.Cart(cart.Items)
			return nil
		},
	}
}
