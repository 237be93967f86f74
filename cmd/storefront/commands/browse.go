package commands

import (
	"bufio"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rl1809/mini-storefront/internal/core/domain"
	"github.com/rl1809/mini-storefront/internal/core/service"
)

const browseHelp = `commands:
  category <name>   only show one category ("category" alone shows all)
  search <term>     filter titles ("search" alone clears the filter)
  sort asc|desc|none
  add <id>          add a product to the cart
  cart              show the cart
  list              show the current list again
  quit`

func newBrowseCmd(a *app) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse the catalog interactively",
		Long: `Browse the catalog interactively, reading one command per line from stdin.

` + browseHelp,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			view := service.NewCatalogView(a.client,
				service.WithSearchDebounce(debounce),
				service.WithViewLogger(a.logger))
			defer view.Close()

			updates, stop := view.Subscribe()
			done := make(chan struct{})
			go func() {
				defer close(done)
				for products := range updates {
					a.printer.Products(products, a.inCart(cmd))
				}
			}()
			defer func() {
				stop()
				<-done
			}()

			busy, stopBusy := a.client.Busy().Watch()
			busyDone := make(chan struct{})
			go func() {
				defer close(busyDone)
				for b := range busy {
					if b {
						a.printer.Step("loading…")
					}
				}
			}()
			defer func() {
				stopBusy()
				<-busyDone
			}()

			if err := view.Load(ctx); err != nil {
				a.printer.Warning("%s", view.Err())
			}
			a.printer.Info("%s", browseHelp)

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				verb, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
				arg = strings.TrimSpace(arg)

				switch verb {
				case "":
				case "quit", "exit":
					view.FlushSearch()
					return nil
				case "category":
					var category *string
					if arg != "" {
						category = &arg
					}
					if err := view.SetCategory(ctx, category); err != nil {
						a.printer.Warning("%s", view.Err())
					}
				case "search":
					view.SetSearchTerm(arg)
				case "sort":
					order, err := service.ParseSortOrder(arg)
					if err != nil {
						a.printer.Warning("%v", err)
						continue
					}
					view.SetSortOrder(order)
				case "add":
					id, err := strconv.Atoi(arg)
					if err != nil {
						a.printer.Warning("%q is not a product id", arg)
						continue
					}
					a.addFromView(cmd, view.Displayed(), id)
				case "cart":
					a.printer.Cart(a.store.Carts.Items(ctx, localSession))
				case "list":
					a.printer.Products(view.Displayed(), a.inCart(cmd))
				default:
					a.printer.Warning("unknown command %q", verb)
				}
			}
			view.FlushSearch()
			return scanner.Err()
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", service.DefaultSearchDebounce, "Quiet period before a search is applied")
	return cmd
}

func (a *app) inCart(cmd *cobra.Command) func(int) bool {
	cart := a.store.Carts.Items(cmd.Context(), localSession)
	return cart.Contains
}

// addFromView adds a product already on screen without another catalog
// round trip, and falls back to a lookup otherwise.
func (a *app) addFromView(cmd *cobra.Command, shown []domain.Product, id int) {
	ctx := cmd.Context()
	for _, p := range shown {
		if p.ID != id {
			continue
		}
		if err := a.store.Carts.Add(ctx, localSession, p); err != nil {
			a.printer.Warning("%v", err)
			return
		}
		a.printer.Success("added %s", p.Title)
		return
	}

	if _, err := a.store.AddProduct(ctx, localSession, id); err != nil {
		a.printer.Warning("%v", err)
		return
	}
	a.printer.Success("added product %d", id)
}
