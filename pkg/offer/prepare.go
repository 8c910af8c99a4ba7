// Package offer prepares per-recipient credential offers and issuing
// exchanges from CSV rows and a compiled offer template.
package offer

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/velocitycareerlabs/data-loader/pkg/credentialtype"
)

// VariableSet is the merged view of one CSV row: the row's own columns,
// the CLI override variables, and the issuing DID when it is known.
type VariableSet map[string]string

// Offer is a rendered credential-offer document. The template controls
// the full shape; only the fields the pipeline touches are accessed by
// key (credentialSubject, offerId, label).
type Offer map[string]any

// Exchange describes the issuing workflow for one recipient.
type Exchange struct {
	Type                  string   `json:"type"`
	IdentityMatcherValues []string `json:"identityMatcherValues"`
	DisclosureID          string   `json:"disclosureId,omitempty"`
	Label                 string   `json:"label,omitempty"`
}

// ExchangeOffer pairs the offer and exchange prepared from one CSV row.
type ExchangeOffer struct {
	NewOffer    Offer
	NewExchange Exchange
}

var (
	emailRegexp = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRegexp = regexp.MustCompile(`^\+?[0-9][0-9 ().-]*[0-9]$`)
)

// BuildVariableSets merges every CSV row with the override variables and,
// when already known, the issuing DID. Row order is preserved and becomes
// the processing order for the whole run.
func BuildVariableSets(rows []map[string]string, vars map[string]string, did string) []VariableSet {
	sets := make([]VariableSet, 0, len(rows))
	for _, row := range rows {
		vs := make(VariableSet, len(row)+len(vars)+1)
		for k, v := range row {
			vs[k] = v
		}
		for k, v := range vars {
			vs[k] = v
		}
		if did != "" {
			vs["did"] = did
		}
		sets = append(sets, vs)
	}
	return sets
}

// CredentialSubject returns the offer's credentialSubject object, or nil.
func (o Offer) CredentialSubject() map[string]any {
	cs, _ := o["credentialSubject"].(map[string]any)
	return cs
}

// VendorUserID returns credentialSubject.vendorUserId as a string.
func (o Offer) VendorUserID() string {
	cs := o.CredentialSubject()
	if cs == nil {
		return ""
	}
	id, _ := cs["vendorUserId"].(string)
	return id
}

// PrepareNewOffer renders one variable set, validates the result and
// fills in the generated pieces: a fresh offerId when the template did
// not supply one, and the run label when given. Null template fields are
// dropped.
func PrepareNewOffer(tpl *Template, vars VariableSet, label string) (Offer, error) {
	if err := validateVariableSet(vars); err != nil {
		return nil, err
	}
	doc, err := tpl.Render(vars)
	if err != nil {
		return nil, err
	}
	o := Offer(doc)
	dropNulls(o)

	vendorUserID := o.VendorUserID()
	if vendorUserID == "" {
		return nil, errors.New("vendorUserId is required")
	}
	if !containsValue(vars, vendorUserID) {
		return nil, fmt.Errorf("vendorUserId %q does not match any value in the row", vendorUserID)
	}

	if id, _ := o["offerId"].(string); id == "" {
		o["offerId"] = uuid.NewString()
	}
	if label != "" {
		o["label"] = label
	}
	return o, nil
}

// PrepareNewExchange builds the issuing exchange for one variable set.
// The identity-matcher value is picked by the target identifier
// credential type (email, phone, or a document identifier).
func PrepareNewExchange(vars VariableSet, label, idCredentialType string) Exchange {
	value := vars[credentialtype.MatcherKey(idCredentialType)]
	return Exchange{
		Type:                  "ISSUING",
		IdentityMatcherValues: []string{value},
		Label:                 label,
	}
}

// PrepareExchangeOffers maps every variable set through the offer and
// exchange preparers, preserving row order. The first invalid row aborts
// the whole batch.
func PrepareExchangeOffers(tpl *Template, sets []VariableSet, label, idCredentialType string) ([]ExchangeOffer, error) {
	out := make([]ExchangeOffer, 0, len(sets))
	for i, vars := range sets {
		o, err := PrepareNewOffer(tpl, vars, label)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, ExchangeOffer{
			NewOffer:    o,
			NewExchange: PrepareNewExchange(vars, label, idCredentialType),
		})
	}
	return out, nil
}

func validateVariableSet(vars VariableSet) error {
	// An empty CSV cell still produces a key, so presence means non-empty.
	email, hasEmail := vars["email"]
	hasEmail = hasEmail && email != ""
	phone, hasPhone := vars["phone"]
	hasPhone = hasPhone && phone != ""
	hasIdentifier := vars["identifier"] != ""

	if !hasEmail && !hasPhone && !hasIdentifier {
		return errors.New("one of email, phone or identifier is required")
	}
	if hasEmail && !emailRegexp.MatchString(email) {
		return fmt.Errorf("invalid email address %q", email)
	}
	if hasPhone && !phoneRegexp.MatchString(phone) {
		return fmt.Errorf("invalid phone number %q", phone)
	}
	return nil
}

func containsValue(vars VariableSet, value string) bool {
	for _, v := range vars {
		if v == value {
			return true
		}
	}
	return false
}

func dropNulls(o Offer) {
	for k, v := range o {
		if v == nil {
			delete(o, k)
		}
	}
	if cs := o.CredentialSubject(); cs != nil {
		for k, v := range cs {
			if v == nil {
				delete(cs, k)
			}
		}
	}
}
