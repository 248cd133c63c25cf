package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dzeckelev/gift-ledger/data"
	"github.com/dzeckelev/gift-ledger/ipfs"
	"github.com/dzeckelev/gift-ledger/names"
	"github.com/dzeckelev/gift-ledger/proc"
)

func printSubmission(tx *proc.PendingTransaction) {
	fmt.Printf("Submission %s: %s", tx.ID, tx.State)
	if tx.Class != proc.None {
		fmt.Printf(" (%s)", tx.Class)
	}
	fmt.Println()

	if tx.ApprovalTx != (common.Hash{}) {
		fmt.Printf("  Approval tx: %s\n", tx.ApprovalTx.Hex())
	}
	if tx.ActionTx != (common.Hash{}) {
		fmt.Printf("  Action tx:   %s\n", tx.ActionTx.Hex())
	}
}

func sendCommand() *cobra.Command {
	var giftType, message string
	var charity bool

	cmd := &cobra.Command{
		Use:   "send <recipient> <amount>",
		Short: "Send a gift, approving the token allowance when needed",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(true, func(ctx context.Context, a *app,
			args []string) error {
			recipient, err := parseAddress(args[0])
			if err != nil {
				return err
			}

			amount, err := data.ParseAmount(args[1])
			if err != nil {
				return err
			}

			balance, err := a.ledger.Balance(ctx, a.ledger.Account())
			if err != nil {
				return err
			}
			fmt.Printf("Balance: %s\n", data.FormatAmount(balance))

			if balance.Cmp(amount) < 0 {
				return errors.Errorf("balance %s is below amount %s",
					data.FormatAmount(balance), data.FormatAmount(amount))
			}

			tx, err := a.orchestrator.SendGift(ctx, proc.GiftRequest{
				Recipient: recipient,
				Amount:    amount,
				GiftType:  giftType,
				Message:   message,
				IsCharity: charity,
			})
			if tx != nil {
				printSubmission(tx)
			}
			if err != nil {
				if tx != nil && tx.ApprovalTx != (common.Hash{}) {
					fmt.Println("  The approval is not revoked, the granted " +
						"allowance may remain in effect.")
				}
				return err
			}

			id, final := tx.ShareID()
			if final {
				fmt.Printf("  Gift id:     %d\n", id)
			} else {
				fmt.Printf("  Gift id:     %d (provisional)\n", id)
			}

			return nil
		}),
	}

	cmd.Flags().StringVar(&giftType, "type", "general", "gift category")
	cmd.Flags().StringVarP(&message, "message", "m", "", "gift message")
	cmd.Flags().BoolVar(&charity, "charity", false,
		"recipient is a registered charity")

	return cmd
}

func redeemCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "redeem <id>",
		Short: "Redeem a gift addressed to the signing account",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(true, func(ctx context.Context, a *app,
			args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid gift id %q", args[0])
			}

			tx, err := a.orchestrator.Redeem(ctx, id)
			if tx != nil {
				printSubmission(tx)
			}
			return err
		}),
	}
}

func favoriteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "favorite",
		Short: "Manage favorite recipients",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <recipient> <name>",
		Short: "Add a favorite recipient",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(true, func(ctx context.Context, a *app,
			args []string) error {
			recipient, err := parseAddress(args[0])
			if err != nil {
				return err
			}

			tx, err := a.orchestrator.AddFavorite(ctx, recipient, args[1])
			if tx != nil {
				printSubmission(tx)
			}
			return err
		}),
	})

	return cmd
}

// charityFile is an entry of a charities file.
type charityFile struct {
	ipfs.CharityMetadata
	WalletAddress string `json:"walletAddress"`
}

func readCharities(name string) ([]charityFile, error) {
	body, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}

	var list []charityFile
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, errors.Wrapf(err,
			"%s must contain an array of charity objects", name)
	}

	return list, nil
}

func charityCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "charity",
		Short: "Manage charities",
	}

	var register bool

	publish := &cobra.Command{
		Use:   "publish <charities.json>",
		Short: "Publish charity metadata and optionally register charities",
		Args:  cobra.ExactArgs(1),
	}
	publish.RunE = func(cmd *cobra.Command, args []string) error {
		return withApp(register, func(ctx context.Context, a *app,
			args []string) error {
			list, err := readCharities(args[0])
			if err != nil {
				return err
			}

			table := newTable(os.Stdout, "Name", "Wallet", "Metadata")
			defer table.Render()

			for _, c := range list {
				if strings.TrimSpace(c.Name) == "" || c.Description == "" ||
					!common.IsHexAddress(c.WalletAddress) {
					log.Warn("Skipping charity with missing fields",
						"name", c.Name, "wallet", c.WalletAddress)
					continue
				}

				cid, err := a.resolver.Publish(ctx, &c.CharityMetadata)
				if err != nil {
					return err
				}
				uri := "ipfs://" + cid

				if register {
					field, err := names.Encode(c.Name)
					if err != nil {
						return err
					}

					if _, err := a.ledger.AddCharity(ctx,
						common.HexToAddress(c.WalletAddress), field,
						uri); err != nil {
						return err
					}
				}

				table.Append([]string{c.Name, c.WalletAddress, uri})
			}

			return nil
		})(cmd, args)
	}
	publish.Flags().BoolVar(&register, "register", false,
		"register each charity on the ledger (owner only)")

	add := &cobra.Command{
		Use:   "add <wallet> <name> <metadata-uri>",
		Short: "Register a charity whose metadata is already published",
		Args:  cobra.ExactArgs(3),
		RunE: withApp(true, func(ctx context.Context, a *app,
			args []string) error {
			wallet, err := parseAddress(args[0])
			if err != nil {
				return err
			}

			field, err := names.Encode(args[1])
			if err != nil {
				return err
			}

			receipt, err := a.ledger.AddCharity(ctx, wallet, field, args[2])
			if err != nil {
				return err
			}

			fmt.Printf("Charity registered in tx %s\n", receipt.TxHash.Hex())
			return nil
		}),
	}

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Deactivate a registered charity",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(true, func(ctx context.Context, a *app,
			args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid charity id %q", args[0])
			}

			receipt, err := a.ledger.RemoveCharity(ctx, id)
			if err != nil {
				return err
			}

			fmt.Printf("Charity %d removed in tx %s\n", id,
				receipt.TxHash.Hex())
			return nil
		}),
	}

	cmd.AddCommand(publish, add, remove)

	return cmd
}
