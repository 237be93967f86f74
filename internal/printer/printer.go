package printer

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/rl1809/mini-storefront/internal/core/domain"
)

func init() {
	// Users can disable colors with NO_COLOR
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// Printer writes CLI output. Errors and warnings go to Err. It is safe for
// concurrent use; each call writes whole lines.
type Printer struct {
	Out io.Writer
	Err io.Writer

	mu sync.Mutex
}

func New(out, errOut io.Writer) *Printer {
	return &Printer{Out: out, Err: errOut}
}

// Success prints a success message in green with a checkmark prefix
func (p *Printer) Success(format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprintln(p.Out, msg)
}

func (p *Printer) Info(format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.Out, format+"\n", a...)
}

// Warning prints a warning message in yellow
func (p *Printer) Warning(format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	yellow.Fprintf(p.Err, "⚠️  %s\n", fmt.Sprintf(format, a...))
}

func (p *Printer) Step(format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cyan.Fprintf(p.Out, "→ %s\n", fmt.Sprintf(format, a...))
}

// Error prints a formatted error with an explanation and suggestions and
// returns an error carrying only the title, for cobra.
func (p *Printer) Error(title, explanation string, suggestions []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	red.Fprintf(p.Err, "%s\n\n", title)
	if explanation != "" {
		fmt.Fprintf(p.Err, "%s\n", explanation)
	}

	if len(suggestions) > 0 {
		fmt.Fprintf(p.Err, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(p.Err, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(p.Err, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(p.Err, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	return fmt.Errorf("%s", title)
}

func (p *Printer) Products(products []domain.Product, inCart func(id int) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(products) == 0 {
		faint.Fprintln(p.Out, "no products")
		return
	}
	for _, prod := range products {
		mark := " "
		if inCart != nil && inCart(prod.ID) {
			mark = green.Sprint("●")
		}
		fmt.Fprintf(p.Out, "%s %4d  %-50s %10s  %s\n",
			mark, prod.ID, truncate(prod.Title, 50), prod.Price.StringFixed(2), faint.Sprint(prod.Category))
	}
}

func (p *Printer) Product(prod domain.Product, inCart bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cyan.Fprintf(p.Out, "%s\n", prod.Title)
	fmt.Fprintf(p.Out, "  id:       %d\n", prod.ID)
	fmt.Fprintf(p.Out, "  price:    %s\n", prod.Price.StringFixed(2))
	fmt.Fprintf(p.Out, "  category: %s\n", prod.Category)
	fmt.Fprintf(p.Out, "  rating:   %s%s (%d)\n",
		strings.Repeat("★", prod.RatingStars()), strings.Repeat("☆", max(0, 5-prod.RatingStars())), prod.Rating.Count)
	if inCart {
		green.Fprintln(p.Out, "  in cart")
	}
	if prod.Description != "" {
		fmt.Fprintf(p.Out, "\n%s\n", prod.Description)
	}
}

func (p *Printer) Cart(cart domain.Cart) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(cart) == 0 {
		faint.Fprintln(p.Out, "cart is empty")
		return
	}
	for _, li := range cart {
		fmt.Fprintf(p.Out, "%4d  %-40s %3d × %8s = %10s\n",
			li.ID, truncate(li.Title, 40), li.Quantity, li.Price.StringFixed(2), li.LineTotal().StringFixed(2))
	}
	fmt.Fprintf(p.Out, "%s %s (%d items)\n", cyan.Sprint("total:"), cart.Total().StringFixed(2), cart.Units())
}

func (p *Printer) Orders(orders []domain.Order) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(orders) == 0 {
		faint.Fprintln(p.Out, "no orders")
		return
	}
	for _, o := range orders {
		fmt.Fprintf(p.Out, "%s  %s  %-9s %10s  card ****%s\n",
			o.CreatedAt.Local().Format("2006-01-02 15:04"), o.ID, o.Status, o.Total.StringFixed(2), o.CardSuffix)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
