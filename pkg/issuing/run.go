// Package issuing drives a batch-issuing run end to end: CSV in,
// exchanges and offers out against a single disclosure, artifacts on
// disk.
package issuing

import (
	"context"
	"fmt"
	"time"

	"github.com/velocitycareerlabs/data-loader/internal/utils"
	"github.com/velocitycareerlabs/data-loader/pkg/agent"
	"github.com/velocitycareerlabs/data-loader/pkg/csvfile"
	"github.com/velocitycareerlabs/data-loader/pkg/disclosure"
	"github.com/velocitycareerlabs/data-loader/pkg/offer"
	"github.com/velocitycareerlabs/data-loader/pkg/output"
	"github.com/velocitycareerlabs/data-loader/pkg/storage"
)

// The DID is only known after the tenant lookup, which a dry run never
// performs.
const dryRunDIDPlaceholder = "did to be determined at runtime"

// Runner wires one run together. Client may be nil for dry runs;
// Resolver defaults to CreateNew; History is optional.
type Runner struct {
	Options  Options
	Client   *agent.Client
	Resolver DisclosureResolver
	History  *storage.DB
}

// RowResult is the artifact set for one processed CSV row.
type RowResult struct {
	ExchangeID   string
	VendorUserID string
	Offer        offer.Offer
	Deeplink     string
	QRCodePath   string
}

// Result is everything a run produced. A dry run stops after
// NewExchangeOffers and DisclosureRequest.
type Result struct {
	DID                string
	DisclosureRequest  disclosure.Request
	NewExchangeOffers  []offer.ExchangeOffer
	Rows               []RowResult
	QRCodePath         string
	Deeplink           string
	DisclosureFilePath string
	SummaryCSVPath     string
}

type lastRun struct {
	DisclosureID       string  `json:"disclosureId"`
	DisclosureFilePath string  `json:"disclosureFilePath"`
	Timestamp          string  `json:"timestamp"`
	Options            Options `json:"options"`
}

// Run executes the batch-issuing pipeline. Rows are processed one at a
// time in CSV order; the first validation or remote failure aborts the
// rest of the run. Exchanges already created on the agent stay created.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	o := r.Options
	if err := o.Validate(); err != nil {
		return nil, err
	}

	headers, rows, err := csvfile.Load(o.CSVFilename)
	if err != nil {
		return nil, err
	}
	matchColumn, err := csvfile.ResolveColumn(o.IdentifierMatchColumn, headers)
	if err != nil {
		return nil, fmt.Errorf("identifier match column: %w", err)
	}
	vendorColumn, err := csvfile.ResolveColumn(o.VendorUserIDColumn, headers)
	if err != nil {
		return nil, fmt.Errorf("vendor userid column: %w", err)
	}

	did, tenantID, err := r.resolveDID()
	if err != nil {
		return nil, err
	}

	tpl, err := offer.ParseTemplateFile(o.OfferTemplateFilename)
	if err != nil {
		return nil, err
	}
	variableSets := offer.BuildVariableSets(rows, o.Vars, did)
	exchangeOffers, err := offer.PrepareExchangeOffers(tpl, variableSets, o.Label, o.IDCredentialType)
	if err != nil {
		return nil, err
	}
	utils.Log.Infof("prepared %d exchange offers from %s", len(exchangeOffers), o.CSVFilename)

	disclosureRequest, err := r.resolveDisclosure(tenantID, matchColumn.Index, vendorColumn.Index)
	if err != nil {
		return nil, err
	}

	result := &Result{
		DID:               did,
		DisclosureRequest: disclosureRequest,
		NewExchangeOffers: exchangeOffers,
	}
	if o.DryRun {
		utils.Log.Info("dry run, skipping exchange and offer creation")
		return result, nil
	}

	if result.DisclosureRequest.ID == "" {
		created, err := r.Client.CreateDisclosure(tenantID, result.DisclosureRequest)
		if err != nil {
			return nil, err
		}
		result.DisclosureRequest = created
		utils.Log.Infof("created disclosure %s", created.ID)
	} else {
		utils.Log.Infof("reusing disclosure %s", result.DisclosureRequest.ID)
	}

	if err := r.persistSnapshots(result); err != nil {
		return nil, err
	}

	if err := r.issueRows(tenantID, result); err != nil {
		return nil, err
	}

	if !o.Legacy {
		if err := r.fetchSharedQRCode(tenantID, result); err != nil {
			return nil, err
		}
	}

	if o.OutputCSV {
		if o.Legacy {
			summary := make([]output.SummaryRow, 0, len(result.Rows))
			for _, row := range result.Rows {
				summary = append(summary, output.SummaryRow{
					VendorUserID: row.VendorUserID,
					Deeplink:     row.Deeplink,
					QRCodePath:   row.QRCodePath,
				})
			}
			path, err := output.WriteSummaryCSV(o.Path, o.OutputCSVName, vendorColumn.Name, summary)
			if err != nil {
				return nil, err
			}
			result.SummaryCSVPath = path
		} else {
			utils.Log.Warn("--outputcsv only produces per-recipient rows in --legacy mode, skipping")
		}
	}

	r.recordHistory(ctx, result)
	utils.Log.Infof("issued %d offer(s) against disclosure %s", len(result.Rows), result.DisclosureRequest.ID)
	return result, nil
}

func (r *Runner) resolveDID() (did, tenantID string, err error) {
	o := r.Options
	if o.DID != "" {
		return o.DID, o.DID, nil
	}
	if o.DryRun {
		return dryRunDIDPlaceholder, o.Tenant, nil
	}
	tenant, err := r.Client.GetTenant(o.Tenant)
	if err != nil {
		return "", "", fmt.Errorf("resolving tenant %s: %w", o.Tenant, err)
	}
	utils.Log.Debugf("tenant %s resolved to DID %s", o.Tenant, tenant.DID)
	return tenant.DID, o.Tenant, nil
}

func (r *Runner) resolveDisclosure(tenantID string, valueIndex, vendorUserIDIndex int) (disclosure.Request, error) {
	o := r.Options

	prepare := func() (disclosure.Request, error) {
		return disclosure.PrepareRequest(disclosure.Params{
			IDCredentialType:   o.IDCredentialType,
			ValueIndex:         valueIndex,
			VendorUserIDIndex:  vendorUserIDIndex,
			ActivatesInHours:   o.ActivatesInHours,
			Purpose:            o.Purpose,
			AuthTokenExpiresIn: o.AuthTokenExpiresIn,
			TermsURL:           o.TermsURL,
			Label:              o.Label,
		})
	}

	// A dry run never queries the agent; --new skips the lookup on
	// purpose.
	if o.New || o.DryRun {
		return prepare()
	}

	existing, err := r.Client.GetDisclosures(tenantID, disclosure.VendorEndpoint)
	if err != nil {
		return disclosure.Request{}, fmt.Errorf("listing disclosures: %w", err)
	}

	resolver := r.Resolver
	if resolver == nil {
		resolver = CreateNew()
	}
	selected, err := resolver.Resolve(existing)
	if err != nil {
		return disclosure.Request{}, err
	}
	if selected == nil {
		return prepare()
	}
	return *selected, nil
}

func (r *Runner) persistSnapshots(result *Result) error {
	o := r.Options
	path, err := output.WriteJSON(o.Path, "disclosure-"+result.DisclosureRequest.ID, result.DisclosureRequest)
	if err != nil {
		return err
	}
	result.DisclosureFilePath = path

	_, err = output.WriteJSON(o.Path, "lastrun", lastRun{
		DisclosureID:       result.DisclosureRequest.ID,
		DisclosureFilePath: path,
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		Options:            o,
	})
	return err
}

// issueRows walks the rows sequentially. One row at a time keeps output
// ordering deterministic and avoids flooding the agent.
func (r *Runner) issueRows(tenantID string, result *Result) error {
	o := r.Options
	disclosureID := result.DisclosureRequest.ID

	for i, eo := range result.NewExchangeOffers {
		vendorUserID := eo.NewOffer.VendorUserID()
		utils.Log.Infof("row %d/%d: issuing to vendorUserId %s", i+1, len(result.NewExchangeOffers), vendorUserID)

		exchange := eo.NewExchange
		exchange.DisclosureID = disclosureID
		exchangeID, err := r.Client.CreateExchange(tenantID, exchange)
		if err != nil {
			return fmt.Errorf("row %d: creating exchange: %w", i+1, err)
		}
		if _, err := r.Client.AddOffer(tenantID, exchangeID, eo.NewOffer); err != nil {
			return fmt.Errorf("row %d: adding offer: %w", i+1, err)
		}
		if err := r.Client.CompleteOffers(tenantID, exchangeID); err != nil {
			return fmt.Errorf("row %d: completing offers: %w", i+1, err)
		}

		row := RowResult{
			ExchangeID:   exchangeID,
			VendorUserID: vendorUserID,
			Offer:        eo.NewOffer,
		}
		if o.Legacy {
			png, err := r.Client.GetExchangeQRCode(tenantID, exchangeID)
			if err != nil {
				return fmt.Errorf("row %d: fetching QR code: %w", i+1, err)
			}
			row.QRCodePath, err = output.WriteQRCode(o.Path, vendorUserID, png)
			if err != nil {
				return err
			}
			row.Deeplink, err = r.Client.GetExchangeDeepLink(tenantID, exchangeID)
			if err != nil {
				return fmt.Errorf("row %d: fetching deep link: %w", i+1, err)
			}
		}
		result.Rows = append(result.Rows, row)
	}
	return nil
}

// fetchSharedQRCode writes the one QR code every recipient scans in
// single-QR mode.
func (r *Runner) fetchSharedQRCode(tenantID string, result *Result) error {
	disclosureID := result.DisclosureRequest.ID
	png, err := r.Client.GetDisclosureQRCode(tenantID, disclosureID)
	if err != nil {
		return fmt.Errorf("fetching disclosure QR code: %w", err)
	}
	result.QRCodePath, err = output.WriteQRCode(r.Options.Path, "generic", png)
	if err != nil {
		return err
	}
	result.Deeplink, err = r.Client.GetDisclosureDeepLink(tenantID, disclosureID)
	if err != nil {
		return fmt.Errorf("fetching disclosure deep link: %w", err)
	}
	return nil
}

// recordHistory is best effort: a broken history database never fails an
// issuing run.
func (r *Runner) recordHistory(ctx context.Context, result *Result) {
	if r.History == nil {
		return
	}
	err := r.History.InsertRun(ctx, storage.Run{
		StartedAt:    time.Now(),
		CSVPath:      r.Options.CSVFilename,
		Mode:         r.Options.Mode(),
		DisclosureID: result.DisclosureRequest.ID,
		DID:          result.DID,
		RowCount:     len(result.Rows),
		OutputPath:   r.Options.Path,
	})
	if err != nil {
		utils.Log.Warnf("recording run history: %v", err)
	}
}
