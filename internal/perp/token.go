package perp

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Fixed decimal scales used by USD-denominated, price, and rate fields on
// chain. Token amounts use the mint's own decimals.
const (
	USDDecimals   = 6
	PriceDecimals = 6
	RateDecimals  = 9
	BPSDivisor    = 10_000

	LMTokenDecimals = 6
	LPTokenDecimals = 6
)

// Token is a client-side static descriptor for a supported mint. Custody is
// the custody PDA backing this token in the main pool.
type Token struct {
	Mint     solana.PublicKey
	Symbol   string
	Decimals uint8
	IsStable bool
	Custody  solana.PublicKey
}

// ToNative converts a display amount into the scaled on-chain integer,
// truncating toward zero. Display amounts never touch binary floats on the
// way to the chain.
func ToNative(ui decimal.Decimal, decimals uint8) uint64 {
	scaled := ui.Shift(int32(decimals)).Truncate(0)
	return scaled.BigInt().Uint64()
}

// ToUI converts a scaled on-chain integer into its display amount.
func ToUI(native uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromUint64(native).Shift(-int32(decimals))
}

// ToNativeFloat is a convenience for display-layer callers holding float
// inputs. The float is converted through its shortest decimal representation
// before scaling, so values a user could type survive the round trip.
func ToNativeFloat(ui float64, decimals uint8) uint64 {
	return ToNative(decimal.NewFromFloat(ui), decimals)
}

// ToUIFloat renders a native amount as a float for display math. Never feed
// the result back into an instruction argument.
func ToUIFloat(native uint64, decimals uint8) float64 {
	f, _ := ToUI(native, decimals).Float64()
	return f
}

// TokenSet is the ordered collection of supported tokens, matching the
// pool's custody order.
type TokenSet struct {
	tokens []Token
	byMint map[solana.PublicKey]int
}

func NewTokenSet(tokens []Token) (*TokenSet, error) {
	set := &TokenSet{
		tokens: tokens,
		byMint: make(map[solana.PublicKey]int, len(tokens)),
	}
	for i, tok := range tokens {
		if _, dup := set.byMint[tok.Mint]; dup {
			return nil, fmt.Errorf("%w: duplicate token mint %s", ErrInvalidParameters, tok.Mint)
		}
		set.byMint[tok.Mint] = i
	}
	return set, nil
}

func (s *TokenSet) All() []Token { return s.tokens }

func (s *TokenSet) ByMint(mint solana.PublicKey) (Token, error) {
	i, ok := s.byMint[mint]
	if !ok {
		return Token{}, fmt.Errorf("%w: no token for mint %s", ErrNotFound, mint)
	}
	return s.tokens[i], nil
}

// Stable returns the designated stable token. Shorts must collateralize with
// it regardless of the mint the caller supplied.
func (s *TokenSet) Stable() (Token, error) {
	for _, tok := range s.tokens {
		if tok.IsStable {
			return tok, nil
		}
	}
	return Token{}, fmt.Errorf("%w: no stable token configured", ErrNotFound)
}

func (s *TokenSet) ByCustody(custody solana.PublicKey) (Token, error) {
	for _, tok := range s.tokens {
		if tok.Custody.Equals(custody) {
			return tok, nil
		}
	}
	return Token{}, fmt.Errorf("%w: no token for custody %s", ErrNotFound, custody)
}
