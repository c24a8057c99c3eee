package proofmsg

import (
	"fmt"

	"github.com/DAOsign/daosign-go/internal/wire"
)

// BuildAuthority encodes a proof-of-authority for storeProofOfAuthority.
func BuildAuthority(p AuthorityProof) (AuthorityPayload, error) {
	from, err := wire.Hex32(p.Message.FromAddress)
	if err != nil {
		return AuthorityPayload{}, fmt.Errorf("proofmsg: encode from: %w", err)
	}
	signers := make([]WireSigner, 0, len(p.Message.Signers))
	for i, s := range p.Message.Signers {
		addr, err := wire.Hex32(s.Address)
		if err != nil {
			return AuthorityPayload{}, fmt.Errorf("proofmsg: encode signers[%d].addr: %w", i, err)
		}
		signers = append(signers, WireSigner{Addr: addr, Metadata: s.Metadata})
	}
	ts, err := wire.Integer32(p.Message.Timestamp)
	if err != nil {
		return AuthorityPayload{}, fmt.Errorf("proofmsg: encode timestamp: %w", err)
	}
	sig, err := wire.EncodeHex(p.Signature, 0)
	if err != nil {
		return AuthorityPayload{}, fmt.Errorf("proofmsg: encode signature: %w", err)
	}

	return AuthorityPayload{
		Message: AuthorityWireMessage{
			Name:         AuthorityName,
			From:         from,
			AgreementCid: p.Message.AgreementCID,
			Signers:      signers,
			Timestamp:    ts,
			Metadata:     p.Message.Metadata,
		},
		ProofCid:  p.ProofCID,
		Signature: sig,
	}, nil
}

// BuildSignature encodes a proof-of-signature for storeProofOfSignature.
func BuildSignature(p SignatureProof) (SignaturePayload, error) {
	signer, err := wire.Hex32(p.Message.SignerAddress)
	if err != nil {
		return SignaturePayload{}, fmt.Errorf("proofmsg: encode signer: %w", err)
	}
	ts, err := wire.Integer32(p.Message.Timestamp)
	if err != nil {
		return SignaturePayload{}, fmt.Errorf("proofmsg: encode timestamp: %w", err)
	}
	sig, err := wire.EncodeHex(p.Signature, 0)
	if err != nil {
		return SignaturePayload{}, fmt.Errorf("proofmsg: encode signature: %w", err)
	}

	return SignaturePayload{
		Message: SignatureWireMessage{
			Name:         SignatureName,
			Signer:       signer,
			AuthorityCid: p.Message.AuthorityCID,
			Timestamp:    ts,
			Metadata:     p.Message.Metadata,
		},
		ProofCid:  p.ProofCID,
		Signature: sig,
	}, nil
}

// BuildAgreement encodes a proof-of-agreement for storeProofOfAgreement.
func BuildAgreement(p AgreementProof) (AgreementPayload, error) {
	ts, err := wire.Integer32(p.Message.Timestamp)
	if err != nil {
		return AgreementPayload{}, fmt.Errorf("proofmsg: encode timestamp: %w", err)
	}
	cids := make([]string, len(p.Message.SignatureCIDs))
	copy(cids, p.Message.SignatureCIDs)
	return AgreementPayload{
		Message: AgreementWireMessage{
			Metadata:      p.Message.Metadata,
			Timestamp:     ts,
			AuthorityCid:  p.Message.AuthorityCID,
			SignatureCids: cids,
		},
		ProofCid: p.ProofCID,
	}, nil
}

// Build dispatches on the concrete proof type.
func Build(p Proof) (Payload, error) {
	switch v := p.(type) {
	case AuthorityProof:
		return BuildAuthority(v)
	case *AuthorityProof:
		return BuildAuthority(*v)
	case SignatureProof:
		return BuildSignature(v)
	case *SignatureProof:
		return BuildSignature(*v)
	case AgreementProof:
		return BuildAgreement(v)
	case *AgreementProof:
		return BuildAgreement(*v)
	default:
		return nil, fmt.Errorf("%w: unsupported proof type %T", ErrInvalidProof, p)
	}
}
