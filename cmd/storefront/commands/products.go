package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rl1809/mini-storefront/internal/core/service"
)

func newProductsCmd(a *app) *cobra.Command {
	var category, search, sort string

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List catalog products",
		Long: `List catalog products, optionally narrowed to one category, filtered by a
case-insensitive title search and sorted by price.

Products already in the cart are marked with ●.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := service.ParseSortOrder(sort)
			if err != nil {
				return a.printer.Error("Invalid --sort", err.Error(), []string{"Use asc, desc or none"})
			}

			filter := service.Filter{Search: search, Sort: order}
			if cmd.Flags().Changed("category") {
				filter.Category = &category
			}

			products, err := a.store.Browse(cmd.Context(), filter)
			if err != nil {
				return a.fail("Cannot list products", err)
			}

			cart := a.store.Carts.Items(cmd.Context(), localSession)
			a.printer.Products(products, cart.Contains)
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Only products of this category")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Case-insensitive title search")
	cmd.Flags().StringVar(&sort, "sort", "none", "Sort by price: asc, desc or none")
	return cmd
}

func newCategoriesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List catalog categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			categories, err := a.store.Categories(cmd.Context())
			if err != nil {
				return a.fail("Cannot list categories", err)
			}
			for _, c := range categories {
				a.printer.Info("%s", c)
			}
			return nil
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(a, args[0])
			if err != nil {
				return err
			}
			details, err := a.store.ProductDetails(cmd.Context(), localSession, id)
			if err != nil {
				return a.fail(fmt.Sprintf("Cannot show product %d", id), err)
			}
			a.printer.Product(details.Product, details.InCart)
			return nil
		},
	}
}

func parseID(a *app, s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, a.printer.Error("Invalid product id", fmt.Sprintf("%q is not a product id", s), nil)
	}
	return id, nil
}
