package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Function selectors for the two ERC-20 views the keeper reads.
var (
	selectorBalanceOf = [4]byte{0x70, 0xa0, 0x82, 0x31}
	selectorAllowance = [4]byte{0xdd, 0x62, 0xed, 0x3e}
)

// ERC20Ledger reads balances and spending authorizations of the
// settlement asset. It implements the engine's Ledger contract.
type ERC20Ledger struct {
	client *Client
	token  string
}

func NewERC20Ledger(client *Client, token string) (*ERC20Ledger, error) {
	if client == nil {
		return nil, errors.New("rpc client is required")
	}
	if _, err := parseAddress(token); err != nil {
		return nil, fmt.Errorf("token address: %w", err)
	}
	return &ERC20Ledger{client: client, token: strings.ToLower(strings.TrimSpace(token))}, nil
}

func (l *ERC20Ledger) BalanceOf(ctx context.Context, wallet string) (*big.Int, error) {
	owner, err := parseAddress(wallet)
	if err != nil {
		return nil, fmt.Errorf("wallet address: %w", err)
	}
	data := encodeCall(selectorBalanceOf, owner)
	ret, err := l.client.EthCall(ctx, l.token, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	return decodeWord(ret)
}

func (l *ERC20Ledger) AuthorizationOf(ctx context.Context, wallet, spender string) (*big.Int, error) {
	owner, err := parseAddress(wallet)
	if err != nil {
		return nil, fmt.Errorf("wallet address: %w", err)
	}
	spenderAddr, err := parseAddress(spender)
	if err != nil {
		return nil, fmt.Errorf("spender address: %w", err)
	}
	data := encodeCall(selectorAllowance, owner, spenderAddr)
	ret, err := l.client.EthCall(ctx, l.token, data)
	if err != nil {
		return nil, fmt.Errorf("allowance: %w", err)
	}
	return decodeWord(ret)
}

// encodeCall builds selector + 32-byte left-padded address words,
// which is the whole ABI surface these two views need.
func encodeCall(selector [4]byte, addrs ...[20]byte) []byte {
	data := make([]byte, 4+32*len(addrs))
	copy(data, selector[:])
	for i, addr := range addrs {
		copy(data[4+32*i+12:], addr[:])
	}
	return data
}

// decodeWord parses a single 32-byte big-endian return word.
func decodeWord(ret []byte) (*big.Int, error) {
	if len(ret) < 32 {
		return nil, fmt.Errorf("short return data: %d bytes", len(ret))
	}
	return new(big.Int).SetBytes(ret[:32]), nil
}

func parseAddress(s string) ([20]byte, error) {
	var out [20]byte
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("invalid address %q", s)
	}
	if len(raw) != 20 {
		return out, fmt.Errorf("invalid address length %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func hexDecode(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex return data: %w", err)
	}
	return out, nil
}
