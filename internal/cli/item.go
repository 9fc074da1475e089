package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rl1809/branch-delivery/internal/core/domain"
	"github.com/rl1809/branch-delivery/internal/core/service"
)

func (a *app) itemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Admit, receive and resolve delivery items",
	}
	cmd.AddCommand(a.itemAddCmd(), a.itemReceiveCmd(), a.itemResolveCmd())
	return cmd
}

func (a *app) itemAddCmd() *cobra.Command {
	var source, assignee string
	cmd := &cobra.Command{
		Use:   "add [delivery-id] [type:key] [quantity]",
		Short: "Declare an item in a delivery and debit the sender's stock",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseItemIdentity(args[1])
			if err != nil {
				return err
			}
			qty, err := parseQuantity(args[2])
			if err != nil {
				return err
			}

			it, err := a.svc.CreateDeliveryItem(cmd.Context(), service.CreateItemInput{
				DeliveryID:       args[0],
				Item:             id,
				SourceLocation:   source,
				DeclaredQuantity: qty,
				ReceiverIdentity: assignee,
			})
			if err != nil {
				return fmt.Errorf("failed to add item: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Added item %s\n", it.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "location to debit (defaults to the delivery sender)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "who is expected to receive the item")
	return cmd
}

func (a *app) itemReceiveCmd() *cobra.Command {
	var (
		receiver string
		version  int
	)
	cmd := &cobra.Command{
		Use:   "receive [item-id] [quantity]",
		Short: "Record the quantity counted at the receiving branch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := parseQuantity(args[1])
			if err != nil {
				return err
			}

			it, err := a.svc.ReceiveDeliveryItem(cmd.Context(), service.ReceiveInput{
				ItemID:          args[0],
				Receiver:        receiver,
				ActualQuantity:  qty,
				ExpectedVersion: version,
			})
			if err != nil {
				return fmt.Errorf("failed to receive item: %w", err)
			}
			printItem(cmd.OutOrStdout(), it)
			return nil
		},
	}
	cmd.Flags().StringVar(&receiver, "receiver", "", "identity of the person counting")
	cmd.Flags().IntVar(&version, "expected-version", 0, "fail if the item changed since this version")
	return cmd
}

func (a *app) itemResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [item-id] [write_off|return_to_sender]",
		Short: "Settle a count mismatch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			it, err := a.svc.ResolveMismatch(cmd.Context(), args[0], domain.Resolution(args[1]))
			if err != nil {
				return fmt.Errorf("failed to resolve item: %w", err)
			}
			printItem(cmd.OutOrStdout(), it)
			return nil
		},
	}
}
