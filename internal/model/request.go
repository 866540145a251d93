package model

type ChallengeRequest struct {
	Address string `json:"address"`
}

type LoginRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type AddGuardianRequest struct {
	Identity string `json:"identity"`
	Weight   uint64 `json:"weight"`
}

type UpdateWeightRequest struct {
	Weight uint64 `json:"weight"`
}

type RecoveryTargetRequest struct {
	NewSigner string `json:"new_signer"`
}

type RevokeRequest struct {
	Token   string `json:"token"`
	Spender string `json:"spender"`
}

type BatchRevokeRequest struct {
	Tokens   []string `json:"tokens"`
	Spenders []string `json:"spenders"`
}

type AuditActor struct {
	Address string `json:"address,omitempty"`
	Role    string `json:"role,omitempty"`
	IP      string `json:"ip,omitempty"`
}

type AuditEntry struct {
	Action     string     `json:"action"`
	OccurredAt string     `json:"occurred_at"`
	Actor      AuditActor `json:"actor"`
	Status     string     `json:"status"`
	Resource   string     `json:"resource,omitempty"`
	Before     any        `json:"before,omitempty"`
	After      any        `json:"after,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type AuditQuery struct {
	Action  string
	ActorID string
	Status  string
	From    string
	To      string
	Page    int
	Limit   int
}

type AuditListData struct {
	Items []AuditEntry `json:"items"`
}
