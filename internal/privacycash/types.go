package privacycash

import (
	"privacycash/internal/relay"
)

// Credentials identify the caller: a wallet public key and its signature
// over shielded.SignInMessage. The signing key itself never reaches the engine.
type Credentials struct {
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"` // base58
}

// DepositRequest asks for an unsigned deposit of Amount base units.
// Token is empty for native SOL.
type DepositRequest struct {
	Credentials
	Amount uint64 `json:"amount"`
	Token  string `json:"token,omitempty"`
}

// PreparedDeposit is an unsigned deposit transaction for the caller to sign.
type PreparedDeposit struct {
	Transaction     string    `json:"transaction"` // base64
	Blockhash       string    `json:"blockhash"`
	Token           string    `json:"token"`
	Amount          uint64    `json:"amount"`
	Fee             uint64    `json:"fee"`
	EncryptedOutput string    `json:"encryptedOutput"` // hex, first output
	Commitments     [2]string `json:"commitments"`
}

// SubmitDepositRequest relays a signed deposit transaction.
type SubmitDepositRequest struct {
	PublicKey         string `json:"publicKey"`
	SignedTransaction string `json:"signedTransaction"` // base64
	Token             string `json:"token,omitempty"`
	EncryptedOutput   string `json:"encryptedOutput"` // hex, from PreparedDeposit
	Referrer          string `json:"referrer,omitempty"`
}

// BalanceRequest asks for the shielded balance of one asset.
type BalanceRequest struct {
	Credentials
	Token string `json:"token,omitempty"`
}

// Balance is the caller's unspent total of one asset.
type Balance struct {
	Token    string `json:"token"`
	Amount   string `json:"amount"` // base units, decimal
	Decimals uint8  `json:"decimals"`
	Display  string `json:"display"`
	Utxos    int    `json:"utxos"`
}

// WithdrawRequest asks for a withdrawal of Amount base units to Recipient
// (the caller's own address when empty).
type WithdrawRequest struct {
	Credentials
	Amount    uint64 `json:"amount"`
	Token     string `json:"token,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
}

// PreparedWithdraw is the relayer submission set of a withdrawal.
type PreparedWithdraw struct {
	Params *relay.WithdrawParams `json:"params"`
	Token  string                `json:"token"`
	Amount uint64                `json:"amount"`
	Fee    uint64                `json:"fee"`
	Payout uint64                `json:"payout"`
	Change string                `json:"change"`
}

// SubmitWithdrawRequest relays a prepared withdrawal.
type SubmitWithdrawRequest struct {
	Params *relay.WithdrawParams `json:"params"`
	Token  string                `json:"token,omitempty"`
}

// Submission is the relay's answer and whether the first output was seen
// in the ledger before the confirmation poll ran out.
type Submission struct {
	Signature string `json:"signature"`
	Confirmed bool   `json:"confirmed"`
}
