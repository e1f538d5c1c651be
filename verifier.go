// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package quicvc

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Credential is the subset of a Verifiable Credential the transport reads.
// Everything else about the credential is the verifier's business.
type Credential struct {
	ID      string            `json:"id"`
	Issuer  string            `json:"issuer"`
	Subject CredentialSubject `json:"credentialSubject"`
	Proof   Proof             `json:"proof"`
}

type CredentialSubject struct {
	ID        string `json:"id"`
	PublicKey string `json:"publicKeyHex,omitempty"`
}

type Proof struct {
	Type       string `json:"type,omitempty"`
	ProofValue string `json:"proofValue"`
}

// VerifiedInfo is what a successful verification yields.
type VerifiedInfo struct {
	IssuerID         string     `json:"issuerId"`
	SubjectDeviceID  string     `json:"subjectDeviceId"`
	SubjectPublicKey string     `json:"subjectPublicKey"`
	Raw              Credential `json:"raw"`
}

// Verifier checks a remote credential against the subject id it claims.
// A nil info (with or without error) means the credential is rejected.
type Verifier interface {
	Verify(ctx context.Context, cred Credential, claimedSubjectID string) (*VerifiedInfo, error)
}

// IssuerVerifier accepts credentials issued by one of a fixed set of
// issuers. It does not check signatures.
type IssuerVerifier struct {
	trusted map[string]bool
}

func NewIssuerVerifier(issuers ...string) *IssuerVerifier {
	v := &IssuerVerifier{
		trusted: map[string]bool{},
	}
	for _, issuer := range issuers {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			v.trusted[issuer] = true
		}
	}
	return v
}

func (v *IssuerVerifier) Verify(ctx context.Context, cred Credential, claimedSubjectID string) (*VerifiedInfo, error) {
	if !v.trusted[cred.Issuer] {
		return nil, errors.Errorf("issuer %q is not trusted", cred.Issuer)
	}
	if cred.Proof.ProofValue == "" {
		return nil, errors.New("credential has no proof")
	}
	if cred.Subject.PublicKey == "" {
		return nil, errors.New("credential subject has no public key")
	}
	if claimedSubjectID != "" && cred.Subject.ID != claimedSubjectID {
		return nil, errors.Errorf("credential subject %q does not match claimed %q", cred.Subject.ID, claimedSubjectID)
	}

	return &VerifiedInfo{
		IssuerID:         cred.Issuer,
		SubjectDeviceID:  cred.Subject.ID,
		SubjectPublicKey: cred.Subject.PublicKey,
		Raw:              cred,
	}, nil
}

// LoadCredential reads a JSON credential from disk.
func LoadCredential(path string) (Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credential{}, errors.Wrapf(err, "cannot read credential %s", path)
	}
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return Credential{}, errors.Wrapf(err, "cannot parse credential %s", path)
	}
	if cred.ID == "" {
		return Credential{}, errors.Errorf("credential %s has no id", path)
	}
	return cred, nil
}
