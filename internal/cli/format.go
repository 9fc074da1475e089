package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/rl1809/branch-delivery/internal/core/domain"
)

func statusLabel(s domain.ItemStatus) string {
	switch s {
	case domain.ItemStatusReceived:
		return color.New(color.FgGreen).Sprint(s)
	case domain.ItemStatusCountMismatch:
		return color.New(color.FgRed).Sprint(s)
	case domain.ItemStatusReturned:
		return color.New(color.FgBlue).Sprint(s)
	default:
		return color.New(color.FgYellow).Sprint(s)
	}
}

func completionLabel(c domain.Completion) string {
	if c == domain.CompletionComplete {
		return color.New(color.FgGreen, color.Bold).Sprint(c)
	}
	return color.New(color.FgYellow).Sprint(c)
}

func printItem(w io.Writer, it domain.DeliveryItem) {
	fmt.Fprintf(w, "%-36s %-24s %s\n", it.ID, it.Item, statusLabel(it.Status))
	fmt.Fprintf(w, "  declared: %d  received: %d  returned: %d  version: %d\n",
		it.DeclaredQuantity, it.ReceivedQuantity, it.ReturnedQuantity, it.Version)
	fmt.Fprintf(w, "  source: %s  marked by: %s\n", it.SourceLocation, it.MarkedBy)
	if it.Resolution != "" {
		fmt.Fprintf(w, "  resolution: %s\n", it.Resolution)
	}
}
