package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rl1809/branch-delivery/internal/core/domain"
)

func (a *app) deliveryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delivery",
		Short: "Manage deliveries between locations",
	}
	cmd.AddCommand(a.deliveryCreateCmd(), a.deliveryStatusCmd(), a.deliveryCompleteCmd(), a.deliveryItemsCmd())
	return cmd
}

func (a *app) deliveryCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create [sender] [receiver]",
		Short: "Open a delivery from one location to another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.svc.CreateDelivery(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to create delivery: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created delivery %s\n", d.ID)
			return nil
		},
	}
}

func (a *app) deliveryStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [delivery-id]",
		Short: "Show reconciliation progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := a.svc.GetDelivery(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load delivery: %w", err)
			}
			p, err := a.svc.GetDeliveryProgress(ctx, d.ID)
			if err != nil {
				return fmt.Errorf("failed to load progress: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Delivery %s: %s -> %s\n", d.ID, d.SenderLocation, d.ReceiverLocation)
			fmt.Fprintf(out, "  status:     %s\n", completionLabel(p.Completion))
			fmt.Fprintf(out, "  items:      %d (pending %d, received %d, mismatched %d, returned %d)\n",
				p.Total, p.Pending, p.Received, p.Mismatched, p.Returned)
			if d.Closed() {
				fmt.Fprintf(out, "  closed at:  %s\n", d.CompletedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func (a *app) deliveryCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete [delivery-id]",
		Short: "Close a delivery whose items are all settled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.svc.CompleteDelivery(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to complete delivery: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Delivery %s %s\n", d.ID, completionLabel(domain.CompletionComplete))
			return nil
		},
	}
}

func (a *app) deliveryItemsCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "items [delivery-id]",
		Short: "List the items of a delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.svc.ListDeliveryItems(cmd.Context(), args[0], domain.ItemStatus(status))
			if err != nil {
				return fmt.Errorf("failed to list items: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No items found")
				return nil
			}
			fmt.Fprintf(out, "Found %d item(s):\n\n", len(items))
			for _, it := range items {
				printItem(out, it)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", `filter by status ("Pending", "Received", "Count mismatch", "Returned")`)
	return cmd
}
