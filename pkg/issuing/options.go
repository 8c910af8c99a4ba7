package issuing

import (
	"errors"
	"fmt"
	"os"

	"github.com/velocitycareerlabs/data-loader/pkg/credentialtype"
)

// Options is the validated configuration for one batch-issuing run. It is
// built once from the CLI flags and never mutated afterwards; derived
// values such as the resolved DID live on the run result instead.
type Options struct {
	CSVFilename           string `json:"csvFilename"`
	OfferTemplateFilename string `json:"offerTemplateFilename"`
	Path                  string `json:"path"`
	TermsURL              string `json:"termsUrl"`

	DID    string `json:"did,omitempty"`
	Tenant string `json:"tenant,omitempty"`

	IdentifierMatchColumn string `json:"identifierMatchColumn"`
	VendorUserIDColumn    string `json:"vendorUserIdColumn"`
	IDCredentialType      string `json:"credentialType"`

	Endpoint  string `json:"endpoint,omitempty"`
	AuthToken string `json:"-"`

	Label              string            `json:"label,omitempty"`
	Vars               map[string]string `json:"vars,omitempty"`
	Purpose            string            `json:"purpose,omitempty"`
	AuthTokenExpiresIn int               `json:"authTokenExpiresIn,omitempty"`
	ActivatesInHours   int               `json:"activatesInHours,omitempty"`

	New bool `json:"new,omitempty"`
	// Disclosure is an existing disclosure id, or DisclosureSelect when
	// the flag was given without a value to force interactive selection.
	Disclosure string `json:"disclosure,omitempty"`

	Legacy        bool   `json:"legacy,omitempty"`
	OutputCSV     bool   `json:"outputcsv,omitempty"`
	OutputCSVName string `json:"outputCsvName,omitempty"`
	DryRun        bool   `json:"dryrun,omitempty"`

	HistoryDB string `json:"historyDb,omitempty"`
}

// DisclosureSelect marks a --disclosure flag given without an id.
const DisclosureSelect = "select"

// Validate checks the option combination before any file or network
// activity, per the CLI contract.
func (o *Options) Validate() error {
	if !o.DryRun && o.Endpoint == "" {
		return errors.New(`"--endpoint" is required`)
	}
	if o.Endpoint != "" && o.AuthToken == "" {
		return errors.New(`"--auth-token" is required when "--endpoint" is given`)
	}
	if o.Tenant == "" && o.DID == "" {
		return errors.New(`one of "--tenant" or "--did" is required`)
	}
	if o.Tenant != "" && o.DID != "" {
		return errors.New(`only one of "--tenant" or "--did" may be given`)
	}
	if !o.DryRun {
		info, err := os.Stat(o.Path)
		if err != nil {
			return fmt.Errorf("output path %s does not exist", o.Path)
		}
		if !info.IsDir() {
			return fmt.Errorf("output path %s is not a directory", o.Path)
		}
	}
	if _, err := credentialtype.Lookup(o.IDCredentialType); err != nil {
		return err
	}
	return nil
}

// Mode names the issuing workflow for logs and the run history.
func (o *Options) Mode() string {
	if o.Legacy {
		return "legacy"
	}
	return "single-qr"
}
