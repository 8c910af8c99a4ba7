// Package disclosure builds the server-side disclosure configuration that
// an issuing run verifies recipient identities against.
package disclosure

import (
	"strconv"
	"time"

	"github.com/velocitycareerlabs/data-loader/pkg/credentialtype"
)

// VendorEndpoint tags disclosures created by this tool so later runs can
// find and reuse them.
const VendorEndpoint = "integrated-issuing-identification"

const (
	offerMode         = "preloaded"
	configurationType = "issuing"
	defaultDuration   = "6y"
)

type TypeEntry struct {
	Type string `json:"type"`
}

type IdentityMatcherRule struct {
	ValueIndex int      `json:"valueIndex"`
	Path       []string `json:"path"`
	Rule       string   `json:"rule"`
}

type IdentityMatchers struct {
	Rules             []IdentityMatcherRule `json:"rules"`
	VendorUserIDIndex int                   `json:"vendorUserIdIndex"`
}

// Request is a disclosure descriptor: freshly prepared (no ID) or fetched
// from the credential agent (ID set, used as-is).
type Request struct {
	ID                 string            `json:"id,omitempty"`
	OfferMode          string            `json:"offerMode,omitempty"`
	ConfigurationType  string            `json:"configurationType,omitempty"`
	VendorEndpoint     string            `json:"vendorEndpoint,omitempty"`
	Types              []TypeEntry       `json:"types,omitempty"`
	IdentityMatchers   *IdentityMatchers `json:"identityMatchers,omitempty"`
	Duration           string            `json:"duration,omitempty"`
	VendorDisclosureID string            `json:"vendorDisclosureId,omitempty"`
	Purpose            string            `json:"purpose,omitempty"`
	ActivationDate     string            `json:"activationDate,omitempty"`
	AuthTokenExpiresIn int               `json:"authTokenExpiresIn,omitempty"`
	TermsURL           string            `json:"termsUrl,omitempty"`
	Label              string            `json:"label,omitempty"`
}

// Params carries everything needed to prepare a fresh disclosure request.
type Params struct {
	IDCredentialType   string
	ValueIndex         int
	VendorUserIDIndex  int
	ActivatesInHours   int
	VendorDisclosureID string
	Purpose            string
	AuthTokenExpiresIn int
	TermsURL           string
	Label              string
}

// PrepareRequest assembles a disclosure request for the chosen identifier
// credential type. The activation date is now plus the configured offset;
// vendorDisclosureId defaults to the current timestamp, which only has to
// be unique enough for the remote system.
func PrepareRequest(p Params) (Request, error) {
	def, err := credentialtype.Lookup(p.IDCredentialType)
	if err != nil {
		return Request{}, err
	}

	vendorDisclosureID := p.VendorDisclosureID
	if vendorDisclosureID == "" {
		vendorDisclosureID = strconv.FormatInt(time.Now().UnixMilli(), 10)
	}

	activation := time.Now().Add(time.Duration(p.ActivatesInHours) * time.Hour)

	return Request{
		OfferMode:         offerMode,
		ConfigurationType: configurationType,
		VendorEndpoint:    VendorEndpoint,
		Types:             []TypeEntry{{Type: p.IDCredentialType}},
		IdentityMatchers: &IdentityMatchers{
			Rules: []IdentityMatcherRule{{
				ValueIndex: p.ValueIndex,
				Path:       []string{def.Path},
				Rule:       "pick",
			}},
			VendorUserIDIndex: p.VendorUserIDIndex,
		},
		Duration:           defaultDuration,
		VendorDisclosureID: vendorDisclosureID,
		Purpose:            p.Purpose,
		ActivationDate:     activation.UTC().Format(time.RFC3339),
		AuthTokenExpiresIn: p.AuthTokenExpiresIn,
		TermsURL:           p.TermsURL,
		Label:              p.Label,
	}, nil
}
