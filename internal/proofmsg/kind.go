package proofmsg

import (
	"fmt"
	"strings"
)

// Kind is the closed set of proof records the contract stores.
type Kind uint8

const (
	KindAuthority Kind = iota + 1
	KindSignature
	KindAgreement
)

type kindInfo struct {
	name   string
	method string
}

var kinds = map[Kind]kindInfo{
	KindAuthority: {name: "authority", method: "storeProofOfAuthority"},
	KindSignature: {name: "signature", method: "storeProofOfSignature"},
	KindAgreement: {name: "agreement", method: "storeProofOfAgreement"},
}

// Kinds lists every proof kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindAuthority, KindSignature, KindAgreement}
}

func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Method is the contract method storing proofs of this kind.
func (k Kind) Method() string {
	return kinds[k].method
}

// ParseKind accepts the short name ("authority") or the contract method name.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	for _, k := range Kinds() {
		info := kinds[k]
		if strings.EqualFold(s, info.name) || s == info.method {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown proof kind %q", ErrInvalidProof, s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: unknown proof kind %d", ErrInvalidProof, uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
