package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"marketmate/backend/internal/config"
	"marketmate/backend/internal/domain"
	"marketmate/backend/internal/extract"
	"marketmate/backend/internal/message"
	"marketmate/backend/internal/negotiation"
	"marketmate/backend/internal/service"
)

const (
	replyCounter  = "Seller countered"
	replyAccepted = "Seller accepted"
	replyRejected = "Seller rejected"
	replyQuit     = "Stop here"
)

var sellerReplies = []string{replyCounter, replyAccepted, replyRejected, replyQuit}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(config.Load(), surveyPrompter{}, nil)
}

func newRootCmd(cfg config.Config, prompter Prompter, pick message.Picker) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "marketmate",
		Short: "MarketMate - marketplace price analysis and negotiation assistant",
		Long: `MarketMate estimates a fair price range for a marketplace listing, suggests an
opening offer and walks you through a negotiation with the seller.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newAnalyzeCmd(cfg, pick))
	rootCmd.AddCommand(newMessageCmd(cfg, pick))
	rootCmd.AddCommand(newNegotiateCmd(cfg, prompter, pick))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

type listingSource struct {
	file    string
	html    string
	pageURL string
}

func addSourceFlags(cmd *cobra.Command, src *listingSource) {
	cmd.Flags().StringVar(&src.html, "html", "", "Saved marketplace page to extract the listing from")
	cmd.Flags().StringVar(&src.pageURL, "url", "", "Marketplace listing URL to fetch")
}

func newAnalyzeCmd(cfg config.Config, pick message.Picker) *cobra.Command {
	var src listingSource
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Analyze a listing and suggest an opening offer",
		Long: `Analyze a listing given as a JSON file ("-" reads stdin), a saved page (--html)
or a listing URL (--url). Without any input the demo listing is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				src.file = args[0]
			}
			svc := newLocalService(cfg, pick)
			resp, err := loadListing(cmd.Context(), svc, cmd, src)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			fmt.Fprintln(out, renderAnalysis(resp.Listing, resp.Analysis))
			return nil
		},
	}

	addSourceFlags(cmd, &src)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the listing and analysis as JSON")
	return cmd
}

func newMessageCmd(cfg config.Config, pick message.Picker) *cobra.Command {
	var amount float64

	cmd := &cobra.Command{
		Use:   "message <initial|counter|accept|walkaway> <polite|neutral|firm>",
		Short: "Render a negotiation message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := newLocalService(cfg, pick)
			msg, err := svc.GenerateMessage(cmd.Context(), domain.GenerateMessageRequest{
				Type:   domain.Intent(strings.ToLower(args[0])),
				Style:  domain.Style(strings.ToLower(args[1])),
				Amount: amount,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg.Text)
			return nil
		},
	}

	cmd.Flags().Float64Var(&amount, "amount", 0, "Offer amount to put in the message")
	return cmd
}

func newNegotiateCmd(cfg config.Config, prompter Prompter, pick message.Picker) *cobra.Command {
	var src listingSource
	var maxPrice, offer float64
	var style string

	cmd := &cobra.Command{
		Use:   "negotiate [file]",
		Short: "Negotiate a listing interactively",
		Long: `Negotiate a listing step by step. MarketMate suggests each message; you tell it
how the seller answered.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				src.file = args[0]
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			svc := newLocalService(cfg, pick)

			if style != "" {
				s := domain.Style(strings.ToLower(style))
				if _, err := svc.UpdatePreferences(ctx, domain.PreferencesUpdateRequest{Style: &s}); err != nil {
					return err
				}
			}

			resp, err := loadListing(ctx, svc, cmd, src)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderAnalysis(resp.Listing, resp.Analysis))

			session, err := svc.StartNegotiation(ctx, domain.StartNegotiationRequest{
				ListingID:    resp.Listing.ID,
				InitialOffer: offer,
				MaxPrice:     maxPrice,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Opening at %s, walking away above %s\n",
				message.FormatAmount(session.InitialOffer), message.FormatAmount(session.MaxPrice))

			return runNegotiation(ctx, out, svc, prompter, session.ID)
		},
	}

	addSourceFlags(cmd, &src)
	cmd.Flags().Float64Var(&maxPrice, "max", 0, "Highest price you will pay (default: fair value max)")
	cmd.Flags().Float64Var(&offer, "offer", 0, "Opening offer (default: recommended offer)")
	cmd.Flags().StringVar(&style, "style", "", "Message style: polite, neutral or firm")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "marketmate %s\n", Version)
		},
	}
}

func runNegotiation(ctx context.Context, out io.Writer, svc *service.Service, prompter Prompter, sessionID string) error {
	for {
		suggestion, err := svc.NextSuggestion(ctx, sessionID)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, renderMessage(suggestion.Message))

		send, err := prompter.Confirm("Send this message?", true)
		if err != nil {
			return err
		}
		if !send {
			fmt.Fprintln(out, "Stopped without sending.")
			return nil
		}

		session, err := svc.SendSuggestion(ctx, sessionID, domain.SendRequest{
			Text:   suggestion.Message.Text,
			Type:   suggestion.Message.Type,
			Amount: suggestion.Message.OfferAmount,
		})
		if err != nil {
			return err
		}
		if negotiation.IsTerminalState(session.State) {
			fmt.Fprintln(out, renderOutcome(session))
			return nil
		}

		reply, err := prompter.Select("How did the seller respond?", sellerReplies)
		if err != nil {
			return err
		}

		switch reply {
		case replyCounter:
			amount, err := prompter.Amount("Seller's counter offer:")
			if err != nil {
				return err
			}
			if _, err := svc.RecordCounter(ctx, sessionID, domain.CounterRequest{Amount: amount, FromSeller: true}); err != nil {
				return err
			}
		case replyAccepted, replyRejected:
			target := domain.StateAccepted
			if reply == replyRejected {
				target = domain.StateRejected
			}
			session, err := closeOnSellerReply(ctx, svc, sessionID, target)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderOutcome(session))
			return nil
		default:
			fmt.Fprintln(out, "Negotiation paused.")
			return nil
		}
	}
}

// closeOnSellerReply records the seller's final answer to the offer on the
// table.
func closeOnSellerReply(ctx context.Context, svc *service.Service, sessionID string, target domain.NegotiationState) (domain.Session, error) {
	if _, err := svc.AdvanceNegotiation(ctx, sessionID, domain.StateAwaitingResponse); err != nil {
		return domain.Session{}, err
	}
	return svc.AdvanceNegotiation(ctx, sessionID, target)
}

func loadListing(ctx context.Context, svc *service.Service, cmd *cobra.Command, src listingSource) (domain.ListingResponse, error) {
	switch {
	case src.html != "":
		page, err := os.ReadFile(src.html)
		if err != nil {
			return domain.ListingResponse{}, err
		}
		return svc.ExtractListing(ctx, domain.ExtractRequest{HTML: string(page), URL: src.pageURL})
	case src.pageURL != "":
		return svc.ExtractListing(ctx, domain.ExtractRequest{URL: src.pageURL})
	case src.file != "":
		var raw []byte
		var err error
		if src.file == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
		} else {
			raw, err = os.ReadFile(src.file)
		}
		if err != nil {
			return domain.ListingResponse{}, err
		}
		var listing domain.Listing
		if err := json.Unmarshal(raw, &listing); err != nil {
			return domain.ListingResponse{}, fmt.Errorf("decode listing %s: %w", src.file, err)
		}
		return svc.IngestListing(ctx, listing)
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "No listing given, using the demo listing.")
	return svc.IngestListing(ctx, extract.MockListing())
}
