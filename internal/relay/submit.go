// submit.go - Relay submission of deposits and withdrawals.

package relay

import (
	"context"
)

// DepositRequest carries a client-signed deposit transaction.
type DepositRequest struct {
	SignedTransaction string `json:"signedTransaction"`
	SenderAddress     string `json:"senderAddress"`
	Referrer          string `json:"referralWalletAddress,omitempty"`
	MintAddress       string `json:"mintAddress,omitempty"`
}

// WithdrawParams is the submission set the relayer executes as pool payer.
// Byte fields are base64 on the wire.
type WithdrawParams struct {
	SerializedProof     []byte `json:"serializedProof"`
	TreeAccount         string `json:"treeAccount"`
	Nullifier0PDA       string `json:"nullifier0PDA"`
	Nullifier1PDA       string `json:"nullifier1PDA"`
	Nullifier2PDA       string `json:"nullifier2PDA"`
	Nullifier3PDA       string `json:"nullifier3PDA"`
	TreeTokenAccount    string `json:"treeTokenAccount"`
	GlobalConfigAccount string `json:"globalConfigAccount"`
	Recipient           string `json:"recipient"`
	FeeRecipientAccount string `json:"feeRecipientAccount"`
	ExtAmount           int64  `json:"extAmount"`
	EncryptedOutput1    []byte `json:"encryptedOutput1"`
	EncryptedOutput2    []byte `json:"encryptedOutput2"`
	Fee                 uint64 `json:"fee"`
	LookupTableAddress  string `json:"lookupTableAddress"`
	SenderAddress       string `json:"senderAddress"`
	Referrer            string `json:"referralWalletAddress,omitempty"`

	// Token withdrawals only.
	MintAddress       string `json:"mintAddress,omitempty"`
	RecipientTokenATA string `json:"recipientTokenAccount,omitempty"`
	FeeRecipientATA   string `json:"feeRecipientTokenAccount,omitempty"`
	TreeTokenATA      string `json:"treeTokenAta,omitempty"`
}

// SubmitResult is the relayer's acknowledgement.
type SubmitResult struct {
	Signature string `json:"signature"`
	Success   bool   `json:"success"`
}

type submitResponse struct {
	Signature *string `json:"signature"`
	Success   *bool   `json:"success"`
}

// SubmitDeposit relays a signed native deposit.
func (c *Client) SubmitDeposit(ctx context.Context, req *DepositRequest) (*SubmitResult, error) {
	return c.submit(ctx, req, "deposit")
}

// SubmitSplDeposit relays a signed token deposit.
func (c *Client) SubmitSplDeposit(ctx context.Context, req *DepositRequest) (*SubmitResult, error) {
	return c.submit(ctx, req, "deposit", "spl")
}

// SubmitWithdraw asks the relayer to execute a withdrawal.
func (c *Client) SubmitWithdraw(ctx context.Context, params *WithdrawParams) (*SubmitResult, error) {
	if params.MintAddress != "" {
		return c.submit(ctx, params, "withdraw", "spl")
	}
	return c.submit(ctx, params, "withdraw")
}

func (c *Client) submit(ctx context.Context, body any, urlPath ...string) (*SubmitResult, error) {
	var resp submitResponse
	if err := c.postJSON(ctx, body, &resp, urlPath...); err != nil {
		return nil, err
	}
	if resp.Signature == nil || resp.Success == nil {
		return nil, contractError(urlPath[0], "missing signature or success")
	}
	if !*resp.Success {
		return nil, contractError(urlPath[0], "relayer reported failure for %s", *resp.Signature)
	}
	return &SubmitResult{Signature: *resp.Signature, Success: true}, nil
}
