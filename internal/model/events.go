package model

// DAOCreatedData is the decoded DAOCreated factory event payload.
type DAOCreatedData struct {
	DAOAddress string `json:"dao_address"`
	Name       string `json:"name"`
	Creator    string `json:"creator"`
	Timestamp  string `json:"timestamp"`
}

// MemberJoinedData is the decoded MemberJoined event payload.
type MemberJoinedData struct {
	Member  string `json:"member"`
	TokenID string `json:"token_id"`
}

// FundsReceivedData is the decoded FundsReceived event payload. Amount is in
// wei.
type FundsReceivedData struct {
	Contributor string `json:"contributor"`
	Amount      string `json:"amount"`
	TokenID     string `json:"token_id"`
}

// ProposalCreatedData is the decoded ProposalCreated event payload.
type ProposalCreatedData struct {
	ProposalID  string `json:"proposal_id"`
	Proposer    string `json:"proposer"`
	Description string `json:"description"`
}
