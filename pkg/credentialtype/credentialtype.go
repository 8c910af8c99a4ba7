// Package credentialtype is the single source of truth for the supported
// identifier credential types: which variable-set key carries the identity
// value for an exchange, and which JSONPath expression matches it in a
// disclosure's identity rules.
package credentialtype

import (
	"fmt"
	"strings"
)

const idDocumentPath = "$.idDocumentCredentials[*].credentialSubject.identifier"

type Definition struct {
	// MatcherKey is the variable-set key whose value is sent as the
	// exchange's identityMatcherValues entry.
	MatcherKey string
	// Path is the JSONPath used in the disclosure's identity-matcher rule.
	Path string
}

// allowed is ordered; the order is reproduced in validation errors.
var allowed = []string{
	"EmailV1.0",
	"PhoneV1.0",
	"DriversLicenseV1.0",
	"NationalIdCardV1.0",
	"PassportV1.0",
	"ResidentPermitV1.0",
	"ProofOfAgeV1.0",
}

var definitions = map[string]Definition{
	"EmailV1.0":          {MatcherKey: "email", Path: "$.emails"},
	"PhoneV1.0":          {MatcherKey: "phone", Path: "$.phones"},
	"DriversLicenseV1.0": {MatcherKey: "identifier", Path: idDocumentPath},
	"NationalIdCardV1.0": {MatcherKey: "identifier", Path: idDocumentPath},
	"PassportV1.0":       {MatcherKey: "identifier", Path: idDocumentPath},
	"ResidentPermitV1.0": {MatcherKey: "identifier", Path: idDocumentPath},
	"ProofOfAgeV1.0":     {MatcherKey: "identifier", Path: idDocumentPath},
}

// Lookup returns the definition for an identifier credential type, or an
// error naming the supported set.
func Lookup(credentialType string) (Definition, error) {
	def, ok := definitions[credentialType]
	if !ok {
		return Definition{}, fmt.Errorf("%s doesn't exist. Please use one of %s", credentialType, strings.Join(allowed, ","))
	}
	return def, nil
}

// MatcherKey returns the variable-set key for a credential type, falling
// back to email for anything unknown.
func MatcherKey(credentialType string) string {
	if def, ok := definitions[credentialType]; ok {
		return def.MatcherKey
	}
	return "email"
}

// All returns the supported credential types in a stable order.
func All() []string {
	out := make([]string, len(allowed))
	copy(out, allowed)
	return out
}
