package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/mini-storefront/internal/adapter/catalog"
	"github.com/rl1809/mini-storefront/internal/adapter/storage"
	"github.com/rl1809/mini-storefront/internal/core/domain"
	"github.com/rl1809/mini-storefront/internal/core/service"
	"github.com/rl1809/mini-storefront/internal/logging"
	"github.com/rl1809/mini-storefront/internal/printer"
)

// localSession is the single cart of the local CLI.
const localSession = ""

type options struct {
	dbPath     string
	catalogURL string
	timeout    time.Duration
	verbose    bool
}

// app is what every subcommand works with, built before the command runs.
type app struct {
	logger  *zap.Logger
	db      *storage.SQLiteAdapter
	client  *catalog.Client
	store   *service.Storefront
	printer *printer.Printer
	done    chan struct{}
}

// close stops the order worker after it has stored queued orders.
func (a *app) close() {
	if a.store != nil {
		a.store.Checkout.Close()
		<-a.done
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// newRootCmd builds the storefront command tree. The caller closes the
// returned app once the command has run.
func newRootCmd() (*cobra.Command, *app) {
	opts := &options{}
	a := &app{}

	root := &cobra.Command{
		Use:   "storefront",
		Short: "Browse a product catalog and manage a local cart",
		Long: `storefront browses a remote product catalog, keeps a cart in a local
SQLite file and walks it through checkout.

Examples:
  # List the cheapest clothing first
  storefront products --category "men's clothing" --sort asc

  # Add a product and show the cart
  storefront cart add 3
  storefront cart

  # Pay for the cart
  storefront checkout pay --card 4242424242424242 --holder "Jane Doe" --expiry 12/30 --cvc 123`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd, opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.dbPath, "db", defaultDBPath(), "SQLite file holding the cart and orders")
	root.PersistentFlags().StringVar(&opts.catalogURL, "catalog-url", catalog.DefaultBaseURL, "Base URL of the catalog API")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Per-request catalog timeout")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(
		newProductsCmd(a),
		newCategoriesCmd(a),
		newShowCmd(a),
		newCartCmd(a),
		newCheckoutCmd(a),
		newOrdersCmd(a),
		newBrowseCmd(a),
	)
	return root, a
}

// Execute runs the command tree. Errors are printed by the printer.
func Execute() error {
	root, a := newRootCmd()
	defer a.close()
	return root.Execute()
}

func (a *app) open(cmd *cobra.Command, opts *options) error {
	a.printer = printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
	if cmd == cmd.Root() {
		return nil
	}

	logger := zap.NewNop()
	if opts.verbose {
		l, err := logging.New("debug", "dev")
		if err != nil {
			return err
		}
		logger = l
	}
	a.logger = logger

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := storage.OpenSQLite(ctx, opts.dbPath)
	if err != nil {
		return a.printer.Error("Cannot open the cart database",
			err.Error(),
			[]string{fmt.Sprintf("Check that %s is writable, or pass --db", opts.dbPath)})
	}
	a.db = db

	a.client = catalog.NewClient(catalog.Options{
		BaseURL: opts.catalogURL,
		Timeout: opts.timeout,
		Logger:  logger,
	})

	carts := service.NewCartService(db, service.WithCartLogger(logger))
	checkout := service.NewCheckoutService(carts, a.client, db, db, 1, service.WithCheckoutLogger(logger))
	a.store = service.NewStorefront(a.client, carts, checkout)

	a.done = make(chan struct{})
	go func() {
		defer close(a.done)
		checkout.RunWorker(0)
	}()
	return nil
}

// fail prints err under title, with a hint for the errors a user can act on.
func (a *app) fail(title string, err error) error {
	var suggestions []string
	switch {
	case errors.Is(err, catalog.ErrUnavailable):
		suggestions = []string{"Check your connection or --catalog-url and try again"}
	case errors.Is(err, domain.ErrProductNotFound):
		suggestions = []string{"Run 'storefront products' to see valid ids"}
	case errors.Is(err, service.ErrEmptyCart):
		suggestions = []string{"Add something first: storefront cart add <id>"}
	case errors.Is(err, service.ErrDuplicateRequest):
		suggestions = []string{"This payment was already submitted; use a new --request-id to pay again"}
	}
	return a.printer.Error(title, err.Error(), suggestions)
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".storefront.db"
	}
	return filepath.Join(home, ".storefront.db")
}
