package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dzeckelev/gift-ledger/data"
	"github.com/dzeckelev/gift-ledger/view"
)

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	return table
}

func formatTime(ts uint64) string {
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}

func shortMessage(e *view.GiftEntry) string {
	msg := e.Message
	if len(msg) > 40 {
		msg = msg[:37] + "..."
	}
	return msg
}

func printGifts(out io.Writer, entries []*view.GiftEntry) {
	table := newTable(out, "ID", "Date", "Direction", "Counterparty",
		"Amount", "Type", "Message", "Status")

	for _, e := range entries {
		counterparty := e.Recipient
		if e.Direction == view.Received {
			counterparty = e.Sender
		}

		status := "pending"
		if e.Redeemed {
			status = "redeemed"
		}

		table.Append([]string{
			strconv.FormatUint(e.ID, 10),
			formatTime(e.Timestamp),
			e.Direction,
			counterparty.Hex(),
			data.FormatAmount(e.Amount),
			e.GiftType,
			shortMessage(e),
			status,
		})
	}

	table.Render()
}

func historyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history <address>",
		Short: "List gifts sent or received by an address",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(false, func(ctx context.Context, a *app,
			args []string) error {
			owner, err := parseAddress(args[0])
			if err != nil {
				return err
			}

			entries, err := a.aggregator.History(ctx, owner)
			if err != nil {
				return err
			}

			printGifts(os.Stdout, entries)
			return nil
		}),
	}
}

func giftCommand() *cobra.Command {
	var viewer string

	cmd := &cobra.Command{
		Use:   "gift <id>",
		Short: "Show a single gift",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(false, func(ctx context.Context, a *app,
			args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid gift id %q", args[0])
			}

			who := a.ledger.Account()
			if viewer != "" {
				if who, err = parseAddress(viewer); err != nil {
					return err
				}
			}

			e, err := a.aggregator.Gift(ctx, id, who)
			if err != nil {
				return err
			}

			fmt.Printf("Gift #%d\n", e.ID)
			fmt.Printf("  From:      %s\n", e.Sender.Hex())
			fmt.Printf("  To:        %s\n", e.Recipient.Hex())
			fmt.Printf("  Amount:    %s\n", data.FormatAmount(e.Amount))
			fmt.Printf("  Date:      %s\n", formatTime(e.Timestamp))
			fmt.Printf("  Type:      %s\n", e.GiftType)
			fmt.Printf("  Message:   %s\n", e.Message)
			fmt.Printf("  Charity:   %t\n", e.IsCharity)
			fmt.Printf("  Redeemed:  %t\n", e.Redeemed)
			fmt.Printf("  Redeemable by viewer: %t\n", e.CanRedeem)
			return nil
		}),
	}

	cmd.Flags().StringVar(&viewer, "viewer", "",
		"address the gift is viewed as (default: signing account)")

	return cmd
}

func charitiesCommand() *cobra.Command {
	var order string

	cmd := &cobra.Command{
		Use:   "charities",
		Short: "List registered charities",
		Args:  cobra.NoArgs,
		RunE: withApp(false, func(ctx context.Context, a *app,
			args []string) error {
			list, err := a.aggregator.LoadCharities(ctx)
			if err != nil {
				return err
			}

			_, o := view.ParseSort("", order)
			view.SortCharities(list, o)

			table := newTable(os.Stdout, "ID", "Name", "Address",
				"Description", "Website")
			for _, c := range list {
				table.Append([]string{
					strconv.FormatUint(c.ID, 10),
					c.Name,
					c.Address.Hex(),
					c.Description,
					c.Website,
				})
			}
			table.Render()

			return nil
		}),
	}

	cmd.Flags().StringVar(&order, "order", "asc", "name order: asc or desc")

	return cmd
}

func favoritesCommand() *cobra.Command {
	var sortKey, order string

	cmd := &cobra.Command{
		Use:   "favorites <address>",
		Short: "List favorite recipients of an address",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(false, func(ctx context.Context, a *app,
			args []string) error {
			owner, err := parseAddress(args[0])
			if err != nil {
				return err
			}

			list, err := a.aggregator.LoadFavorites(ctx, owner)
			if err != nil {
				return err
			}

			key, o := view.ParseSort(sortKey, order)
			view.SortFavorites(list, key, o)

			table := newTable(os.Stdout, "Name", "Recipient", "Gifts",
				"Total")
			for _, f := range list {
				table.Append([]string{
					f.Name,
					f.Recipient.Hex(),
					strconv.FormatUint(f.GiftCount, 10),
					data.FormatAmount(f.TotalAmount),
				})
			}
			table.Render()

			return nil
		}),
	}

	cmd.Flags().StringVar(&sortKey, "sort", "name",
		"sort key: name, giftCount or totalAmount")
	cmd.Flags().StringVar(&order, "order", "asc", "sort order: asc or desc")

	return cmd
}

func topCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "top",
		Short: "Show the top gifters",
		Args:  cobra.NoArgs,
		RunE: withApp(false, func(ctx context.Context, a *app,
			args []string) error {
			list, err := a.aggregator.LoadTopGifters(ctx)
			if err != nil {
				return err
			}

			table := newTable(os.Stdout, "Rank", "Address", "Gifts")
			for k, g := range list {
				table.Append([]string{
					strconv.Itoa(k + 1),
					g.Address.Hex(),
					strconv.FormatUint(g.Count, 10),
				})
			}
			table.Render()

			return nil
		}),
	}
}

func balanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [address]",
		Short: "Show the token balance of an address or the signing account",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(false, func(ctx context.Context, a *app,
			args []string) error {
			owner := a.ledger.Account()
			if len(args) > 0 {
				var err error
				if owner, err = parseAddress(args[0]); err != nil {
					return err
				}
			}

			if owner == (common.Address{}) {
				return errors.New("no address given and no signing account")
			}

			balance, err := a.ledger.Balance(ctx, owner)
			if err != nil {
				return err
			}

			fmt.Printf("%s %s\n", owner.Hex(), data.FormatAmount(balance))
			return nil
		}),
	}
}
