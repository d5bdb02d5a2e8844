package entity

import "time"

// ClaimStatus is the lifecycle status of a submitted claim transaction.
type ClaimStatus string

const (
	ClaimPending   ClaimStatus = "pending"
	ClaimConfirmed ClaimStatus = "confirmed"
	ClaimFailed    ClaimStatus = "failed"
)

// ClaimTransaction tracks one submitted claim.
type ClaimTransaction struct {
	TxHash      string      `json:"txHash"`
	Account     string      `json:"account"`
	ChainID     uint64      `json:"chainId"`
	Status      ClaimStatus `json:"status"`
	SubmittedAt time.Time   `json:"submittedAt"`
	FinishedAt  *time.Time  `json:"finishedAt,omitempty"`
}

// ClaimOutcome classifies the result of a claim attempt.
type ClaimOutcome string

const (
	OutcomeSubmitted          ClaimOutcome = "submitted"
	OutcomeAlreadyClaimed     ClaimOutcome = "already_claimed"
	OutcomeUserRejected       ClaimOutcome = "user_rejected"
	OutcomeInsufficientFunds  ClaimOutcome = "insufficient_funds"
	OutcomeUnsupportedNetwork ClaimOutcome = "unsupported_network"
	OutcomeNotConnected       ClaimOutcome = "not_connected"
	OutcomeInProgress         ClaimOutcome = "in_progress"
	OutcomeRPCError           ClaimOutcome = "rpc_error"
)

// ClaimResult is returned by the claim engine instead of an error.
type ClaimResult struct {
	Success   bool         `json:"success"`
	TxHash    string       `json:"txHash,omitempty"`
	Outcome   ClaimOutcome `json:"outcome"`
	Error     string       `json:"error,omitempty"`
	FaucetURL string       `json:"faucetUrl,omitempty"`
}

// TxStatus is the confirmation status of a transaction.
type TxStatus struct {
	Confirmed bool `json:"confirmed"`
	Success   bool `json:"success"`
}
