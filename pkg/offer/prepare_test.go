package offer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const emailTemplate = `{
  "type": ["EmailV1.0"],
  "issuer": {"id": "{{did}}"},
  "credentialSubject": {"vendorUserId": "{{email}}", "email": "{{email}}"}
}`

func mkTemplate(t *testing.T, raw string) *Template {
	t.Helper()
	tpl, err := ParseTemplate(raw)
	require.NoError(t, err)
	return tpl
}

func TestBuildVariableSets(t *testing.T) {
	rows := []map[string]string{
		{"email": "joan.lee@sap.com"},
		{"email": "john.smith@sap.com"},
	}
	sets := BuildVariableSets(rows, map[string]string{"company": "SAP"}, "did:ion:123")

	require.Len(t, sets, 2)
	assert.Equal(t, "joan.lee@sap.com", sets[0]["email"])
	assert.Equal(t, "SAP", sets[0]["company"])
	assert.Equal(t, "did:ion:123", sets[1]["did"])
}

func TestBuildVariableSets_OverridesWinOverRow(t *testing.T) {
	sets := BuildVariableSets([]map[string]string{{"company": "row"}}, map[string]string{"company": "flag"}, "")
	assert.Equal(t, "flag", sets[0]["company"])
}

func TestPrepareNewOffer(t *testing.T) {
	tpl := mkTemplate(t, emailTemplate)
	vars := VariableSet{"email": "joan.lee@sap.com", "did": "did:ion:123"}

	o, err := PrepareNewOffer(tpl, vars, "spring batch")
	require.NoError(t, err)

	assert.Equal(t, "joan.lee@sap.com", o.VendorUserID())
	assert.Equal(t, "spring batch", o["label"])
	assert.NotEmpty(t, o["offerId"], "offerId must be generated when the template has none")
}

func TestPrepareNewOffer_KeepsTemplateOfferID(t *testing.T) {
	tpl := mkTemplate(t, `{"offerId": "offer-7", "credentialSubject": {"vendorUserId": "{{email}}"}}`)
	o, err := PrepareNewOffer(tpl, VariableSet{"email": "joan.lee@sap.com"}, "")
	require.NoError(t, err)
	assert.Equal(t, "offer-7", o["offerId"])
	assert.NotContains(t, o, "label")
}

func TestPrepareNewOffer_DropsNullFields(t *testing.T) {
	tpl := mkTemplate(t, `{"extra": null, "credentialSubject": {"vendorUserId": "{{email}}", "middleName": null}}`)
	o, err := PrepareNewOffer(tpl, VariableSet{"email": "joan.lee@sap.com"}, "")
	require.NoError(t, err)
	assert.NotContains(t, o, "extra")
	assert.NotContains(t, o.CredentialSubject(), "middleName")
}

func TestPrepareNewOffer_RequiresIdentityColumn(t *testing.T) {
	tpl := mkTemplate(t, emailTemplate)
	_, err := PrepareNewOffer(tpl, VariableSet{"firstName": "Joan"}, "")
	assert.ErrorContains(t, err, "one of email, phone or identifier is required")
}

func TestPrepareNewOffer_RejectsBadEmail(t *testing.T) {
	tpl := mkTemplate(t, emailTemplate)
	_, err := PrepareNewOffer(tpl, VariableSet{"email": "not-an-email"}, "")
	assert.ErrorContains(t, err, "invalid email address")
}

func TestPrepareNewOffer_RejectsBadPhone(t *testing.T) {
	tpl := mkTemplate(t, `{"credentialSubject": {"vendorUserId": "{{phone}}"}}`)
	_, err := PrepareNewOffer(tpl, VariableSet{"phone": "call me"}, "")
	assert.ErrorContains(t, err, "invalid phone number")
}

func TestPrepareNewOffer_AcceptsLoosePhoneFormats(t *testing.T) {
	tpl := mkTemplate(t, `{"credentialSubject": {"vendorUserId": "{{phone}}"}}`)
	for _, number := range []string{"+1 (555) 123-4567", "0535551234", "+44 20 7946 0958"} {
		_, err := PrepareNewOffer(tpl, VariableSet{"phone": number}, "")
		assert.NoError(t, err, number)
	}
}

func TestPrepareNewOffer_RejectsMissingVendorUserID(t *testing.T) {
	tpl := mkTemplate(t, `{"credentialSubject": {"email": "{{email}}"}}`)
	_, err := PrepareNewOffer(tpl, VariableSet{"email": "joan.lee@sap.com"}, "")
	assert.ErrorContains(t, err, "vendorUserId is required")
}

func TestPrepareNewOffer_RejectsHardcodedVendorUserID(t *testing.T) {
	tpl := mkTemplate(t, `{"credentialSubject": {"vendorUserId": "someone-else"}}`)
	_, err := PrepareNewOffer(tpl, VariableSet{"email": "joan.lee@sap.com"}, "")
	assert.ErrorContains(t, err, `vendorUserId "someone-else" does not match any value in the row`)
}

func TestPrepareNewOffer_RejectsInvalidJSON(t *testing.T) {
	tpl := mkTemplate(t, `{"credentialSubject": {{email}}`)
	_, err := PrepareNewOffer(tpl, VariableSet{"email": "joan.lee@sap.com"}, "")
	assert.ErrorContains(t, err, "not valid JSON")
}

func TestPrepareNewExchange_SelectsValueByCredentialType(t *testing.T) {
	vars := VariableSet{"email": "joan.lee@sap.com", "phone": "+15551234567"}

	ex := PrepareNewExchange(vars, "", "PhoneV1.0")
	assert.Equal(t, []string{"+15551234567"}, ex.IdentityMatcherValues)

	ex = PrepareNewExchange(vars, "", "EmailV1.0")
	assert.Equal(t, []string{"joan.lee@sap.com"}, ex.IdentityMatcherValues)

	assert.Equal(t, "ISSUING", ex.Type)
}

func TestPrepareNewExchange_DocumentTypesUseIdentifier(t *testing.T) {
	vars := VariableSet{"email": "joan.lee@sap.com", "identifier": "L123456"}
	ex := PrepareNewExchange(vars, "dl batch", "DriversLicenseV1.0")
	assert.Equal(t, []string{"L123456"}, ex.IdentityMatcherValues)
	assert.Equal(t, "dl batch", ex.Label)
}

func TestPrepareExchangeOffers_OnePairPerRowInOrder(t *testing.T) {
	tpl := mkTemplate(t, emailTemplate)
	sets := BuildVariableSets([]map[string]string{
		{"email": "joan.lee@sap.com"},
		{"email": "john.smith@sap.com"},
	}, nil, "did:ion:123")

	pairs, err := PrepareExchangeOffers(tpl, sets, "", "EmailV1.0")
	require.NoError(t, err)

	require.Len(t, pairs, 2)
	assert.Equal(t, "joan.lee@sap.com", pairs[0].NewOffer.VendorUserID())
	assert.Equal(t, []string{"john.smith@sap.com"}, pairs[1].NewExchange.IdentityMatcherValues)
}

func TestPrepareExchangeOffers_FailsFastNamingRow(t *testing.T) {
	tpl := mkTemplate(t, emailTemplate)
	sets := []VariableSet{
		{"email": "joan.lee@sap.com"},
		{"email": "broken"},
	}
	_, err := PrepareExchangeOffers(tpl, sets, "", "EmailV1.0")
	assert.ErrorContains(t, err, "row 2:")
}
