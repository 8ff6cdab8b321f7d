package marketsync

import "encoding/json"

// SyncSettings selects which marketplaces the aggregator pull covers.
// An empty list means all marketplaces the store is registered on.
type SyncSettings struct {
	Marketplaces []string `json:"marketplaces"`
}

func DefaultSettings() SyncSettings {
	return SyncSettings{Marketplaces: []string{}}
}

func DecodeSettings(raw []byte) SyncSettings {
	if len(raw) == 0 {
		return DefaultSettings()
	}
	var settings SyncSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return DefaultSettings()
	}
	return settings
}

func EncodeSettings(settings SyncSettings) []byte {
	b, _ := json.Marshal(settings)
	return b
}

type CursorEntry struct {
	UpdatedSince string `json:"updated_since"`
	Cursor       string `json:"cursor"`
}

// CursorState keeps one cursor per marketplace, keyed by marketplace name.
type CursorState map[string]CursorEntry

func DecodeCursorState(raw []byte) CursorState {
	if len(raw) == 0 {
		return CursorState{}
	}
	var state CursorState
	if err := json.Unmarshal(raw, &state); err != nil {
		return CursorState{}
	}
	if state == nil {
		state = CursorState{}
	}
	return state
}

func EncodeCursorState(state CursorState) []byte {
	b, _ := json.Marshal(state)
	return b
}

type ConnectRequest struct {
	StoreId   string `json:"storeId"`
	StoreName string `json:"storeName"`
	APIKey    string `json:"apiKey"`
}

type UpdateSettingsRequest struct {
	Settings SyncSettings `json:"settings"`
}

type TriggerSyncRequest struct {
	Marketplaces []string `json:"marketplaces"`
	DryRun       bool     `json:"dryRun"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StatusResponse struct {
	Connection        ConnectionResponse `json:"connection"`
	LastSyncAt        *string            `json:"lastSyncAt"`
	LastSuccessSyncAt *string            `json:"lastSuccessSyncAt"`
	Settings          SyncSettings       `json:"settings"`
}

type ConnectionResponse struct {
	Status    string `json:"status"`
	StoreId   string `json:"storeId"`
	StoreName string `json:"storeName"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type SyncRunResponse struct {
	ID            uint    `json:"id"`
	Status        string  `json:"status"`
	DryRun        bool    `json:"dryRun"`
	StartedAt     *string `json:"startedAt"`
	FinishedAt    *string `json:"finishedAt"`
	DurationMs    int64   `json:"durationMs"`
	RecordsSynced int     `json:"recordsSynced"`
	ErrorCount    int     `json:"errorCount"`
	TriggeredBy   string  `json:"triggeredBy"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Stats  json.RawMessage     `json:"stats"`
	Errors []SyncErrorResponse `json:"errors"`
}

type SyncErrorResponse struct {
	ID         uint   `json:"id"`
	OrderRef   string `json:"orderRef"`
	CommonCode string `json:"commonCode"`
	ErrorCode  string `json:"errorCode"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
}

type ResolveUnresolvedRequest struct {
	// Optional mapping created in the same call, so the next sync run
	// resolves the identifier.
	ChoiceCode string `json:"choiceCode"`
	CommonCode string `json:"commonCode"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SyncPubSubPayload struct {
	RunId        uint   `json:"run_id"`
	BusinessId   string `json:"business_id"`
	ConnectionId uint   `json:"connection_id"`
}
