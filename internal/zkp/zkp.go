// Package zkp implements a Schnorr-style commitment/challenge/response
// proof of password knowledge. The keypair is derived from the password,
// so a stored public key lets the server verify a proof without ever
// holding the password. The live login path does not use this exchange;
// the primitive is kept available for a future credential upgrade.
package zkp

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/big"
)

// Group parameters: the secp256k1 field prime with generator 2.
var (
	prime, _  = new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEFFFFFC2F", 16)
	generator = big.NewInt(2)
)

type Proof struct {
	PublicKey  *big.Int
	Commitment *big.Int
	Challenge  *big.Int
	Response   *big.Int
}

// PrivateKey derives the private exponent from a password.
func PrivateKey(password string) *big.Int {
	digest := sha256.Sum256([]byte(password))
	return new(big.Int).SetBytes(digest[:])
}

// GenerateKeypair returns the (private, public) pair for a password.
func GenerateKeypair(password string) (*big.Int, *big.Int) {
	private := PrivateKey(password)
	public := new(big.Int).Exp(generator, private, prime)
	return private, public
}

// GenerateProof produces a non-interactive proof of knowledge of the
// password: commitment g^r, challenge H(commitment), response
// r + challenge*private mod (p-1).
func GenerateProof(password string) (*Proof, error) {
	private, public := GenerateKeypair(password)

	max := new(big.Int).Sub(prime, big.NewInt(1))
	r, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, err
	}

	commitment := new(big.Int).Exp(generator, r, prime)
	challenge := hashChallenge(commitment)

	response := new(big.Int).Mul(challenge, private)
	response.Add(response, r)
	response.Mod(response, max)

	return &Proof{
		PublicKey:  public,
		Commitment: commitment,
		Challenge:  challenge,
		Response:   response,
	}, nil
}

// Verify checks a proof against a stored public key:
// g^response == commitment * publicKey^challenge (mod p).
func Verify(proof *Proof, storedPublicKey *big.Int) (bool, error) {
	if proof == nil || proof.Commitment == nil || proof.Challenge == nil || proof.Response == nil {
		return false, errors.New("incomplete proof")
	}
	if storedPublicKey == nil || storedPublicKey.Sign() <= 0 {
		return false, errors.New("invalid public key")
	}

	if hashChallenge(proof.Commitment).Cmp(proof.Challenge) != 0 {
		return false, nil
	}

	left := new(big.Int).Exp(generator, proof.Response, prime)

	right := new(big.Int).Exp(storedPublicKey, proof.Challenge, prime)
	right.Mul(right, proof.Commitment)
	right.Mod(right, prime)

	return left.Cmp(right) == 0, nil
}

func hashChallenge(commitment *big.Int) *big.Int {
	digest := sha256.Sum256([]byte(commitment.String()))
	return new(big.Int).SetBytes(digest[:])
}
