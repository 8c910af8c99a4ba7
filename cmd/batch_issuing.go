package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/velocitycareerlabs/data-loader/internal/utils"
	"github.com/velocitycareerlabs/data-loader/pkg/agent"
	"github.com/velocitycareerlabs/data-loader/pkg/issuing"
	"github.com/velocitycareerlabs/data-loader/pkg/storage"
)

// batchIssuingCmd represents the batch-issuing command
var batchIssuingCmd = &cobra.Command{
	Use:   "batch-issuing",
	Short: "Issue credential offers to every recipient in a CSV file",
	Long: `Reads a CSV of recipients, renders a credential offer per row from a
mustache template and creates one issuing exchange per row on the
credential agent, either against a shared QR code (default) or with one
QR code per recipient (--legacy).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := optionsFromFlags(cmd)
		if err != nil {
			return err
		}

		runner := &issuing.Runner{Options: *opts}

		if opts.Endpoint != "" {
			runner.Client = agent.New(opts.Endpoint, opts.AuthToken)
		}

		switch {
		case opts.New:
			runner.Resolver = issuing.CreateNew()
		case opts.Disclosure != "" && opts.Disclosure != issuing.DisclosureSelect:
			runner.Resolver = issuing.UseExisting(opts.Disclosure)
		default:
			runner.Resolver = issuing.PromptUser(os.Stdin, os.Stdout)
		}

		if opts.HistoryDB != "" && !opts.DryRun {
			history, err := storage.Open(opts.HistoryDB)
			if err != nil {
				utils.Log.Warnf("opening history database %s: %v", opts.HistoryDB, err)
			} else {
				runner.History = history
				defer history.Close()
			}
		}

		result, err := runner.Run(context.Background())
		if err != nil {
			return err
		}

		if opts.DryRun {
			utils.Log.Infof("dry run complete: %d exchange offer(s) prepared for DID %s", len(result.NewExchangeOffers), result.DID)
			return nil
		}
		if result.Deeplink != "" {
			utils.Log.Infof("shared deep link: %s", result.Deeplink)
		}
		if result.QRCodePath != "" {
			utils.Log.Infof("shared QR code: %s", result.QRCodePath)
		}
		if result.SummaryCSVPath != "" {
			utils.Log.Infof("summary CSV: %s", result.SummaryCSVPath)
		}
		return nil
	},
}

func optionsFromFlags(cmd *cobra.Command) (*issuing.Options, error) {
	flags := cmd.Flags()

	opts := &issuing.Options{}
	opts.CSVFilename, _ = flags.GetString("csv-filename")
	opts.OfferTemplateFilename, _ = flags.GetString("offer-template-filename")
	opts.Path, _ = flags.GetString("path")
	opts.TermsURL, _ = flags.GetString("terms-url")
	opts.DID, _ = flags.GetString("did")
	opts.Tenant, _ = flags.GetString("tenant")
	opts.IdentifierMatchColumn, _ = flags.GetString("identifier-match-column")
	opts.VendorUserIDColumn, _ = flags.GetString("vendor-userid-column")
	opts.Endpoint, _ = flags.GetString("endpoint")
	opts.AuthToken, _ = flags.GetString("auth-token")
	opts.Label, _ = flags.GetString("label")
	opts.IDCredentialType, _ = flags.GetString("credential-type")
	opts.Purpose, _ = flags.GetString("purpose")
	opts.AuthTokenExpiresIn, _ = flags.GetInt("authTokenExpiresIn")
	opts.ActivatesInHours, _ = flags.GetInt("activates-in-hours")
	opts.New, _ = flags.GetBool("new")
	opts.Disclosure, _ = flags.GetString("disclosure")
	opts.Legacy, _ = flags.GetBool("legacy")
	opts.OutputCSV, _ = flags.GetBool("outputcsv")
	opts.OutputCSVName, _ = flags.GetString("x-name")
	opts.DryRun, _ = flags.GetBool("dryrun")
	opts.HistoryDB, _ = flags.GetString("history-db")

	// Config file values fill in whatever the flags left empty.
	if opts.Endpoint == "" {
		opts.Endpoint = viper.GetString("endpoint")
	}
	if opts.AuthToken == "" {
		opts.AuthToken = viper.GetString("authtoken")
	}
	if opts.HistoryDB == "" {
		opts.HistoryDB = viper.GetString("historydb")
	}

	pairs, _ := flags.GetStringArray("var")
	if len(pairs) > 0 {
		opts.Vars = make(map[string]string, len(pairs))
		for _, pair := range pairs {
			name, value, found := strings.Cut(pair, "=")
			if !found || name == "" {
				return nil, fmt.Errorf("invalid --var %q, expected name=value", pair)
			}
			opts.Vars[name] = value
		}
	}
	return opts, nil
}

func init() {
	rootCmd.AddCommand(batchIssuingCmd)

	batchIssuingCmd.Flags().StringP("csv-filename", "c", "", "CSV file with one recipient per row")
	batchIssuingCmd.Flags().StringP("offer-template-filename", "o", "", "Mustache template rendered into one credential offer per row")
	batchIssuingCmd.Flags().StringP("path", "p", "", "Output directory for QR codes and JSON snapshots")
	batchIssuingCmd.Flags().StringP("terms-url", "t", "", "Terms-of-service URL recorded on the disclosure")
	batchIssuingCmd.Flags().StringP("did", "d", "", "Issuing DID (alternative to --tenant)")
	batchIssuingCmd.Flags().StringP("tenant", "n", "", "Tenant id whose DID is used for issuing (alternative to --did)")
	batchIssuingCmd.Flags().StringP("identifier-match-column", "m", "0", "CSV column (name or index) holding the identity value to match")
	batchIssuingCmd.Flags().StringP("vendor-userid-column", "u", "0", "CSV column (name or index) holding the vendor user id")
	batchIssuingCmd.Flags().StringP("endpoint", "e", "", "Credential agent base URL")
	batchIssuingCmd.Flags().StringP("auth-token", "a", "", "Bearer token for the operator API")
	batchIssuingCmd.Flags().StringP("label", "l", "", "Label attached to the disclosure, exchanges and offers")
	batchIssuingCmd.Flags().StringArrayP("var", "v", nil, "Extra template variable as name=value (repeatable)")
	batchIssuingCmd.Flags().StringP("credential-type", "y", "EmailV1.0", "Identifier credential type used for identity matching")
	batchIssuingCmd.Flags().String("purpose", "", "Purpose text recorded on the disclosure")
	batchIssuingCmd.Flags().Int("authTokenExpiresIn", 525600, "Disclosure auth token lifetime in minutes")
	batchIssuingCmd.Flags().Int("activates-in-hours", 0, "Hours until the disclosure activates (0 = immediately)")
	batchIssuingCmd.Flags().Bool("new", false, "Always create a new disclosure, skip reuse")
	batchIssuingCmd.Flags().StringP("disclosure", "i", "", "Existing disclosure id to reuse (bare flag prompts for selection)")
	batchIssuingCmd.Flags().Lookup("disclosure").NoOptDefVal = issuing.DisclosureSelect
	batchIssuingCmd.Flags().Bool("legacy", false, "One disclosure QR code per recipient instead of a single shared one")
	batchIssuingCmd.Flags().BoolP("outputcsv", "x", false, "Write a per-recipient summary CSV (legacy mode)")
	batchIssuingCmd.Flags().String("x-name", "output", "Summary CSV file name (without extension)")
	batchIssuingCmd.Flags().Bool("dryrun", false, "Prepare everything locally without calling the credential agent")
	batchIssuingCmd.Flags().String("history-db", "", "Optional sqlite file recording executed runs")

	_ = batchIssuingCmd.MarkFlagRequired("csv-filename")
	_ = batchIssuingCmd.MarkFlagRequired("offer-template-filename")
	_ = batchIssuingCmd.MarkFlagRequired("path")
	_ = batchIssuingCmd.MarkFlagRequired("terms-url")
}
