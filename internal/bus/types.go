package bus

// Event names the typed server→client and client→server wire events (§6).
type Event string

const (
	EventFullSyncState   Event = "FULL_SYNC_STATE"
	EventGameStateUpdate Event = "GAME_STATE_UPDATE"
	EventPriceUpdate     Event = "PRICE_UPDATE"
	EventNewsUpdate      Event = "NEWS_UPDATE"
	EventLeaderboard     Event = "LEADERBOARD_UPDATE"
	EventContractSettled Event = "CONTRACT_SETTLED"
	EventAssetsUpdate    Event = "ASSETS_UPDATE"
	EventTradeSuccess    Event = "TRADE_SUCCESS"
	EventTradeError      Event = "TRADE_ERROR"
	EventMiniGameSync    Event = "MINIGAME_SYNC"
	EventMiniGameEvent   Event = "MINIGAME_EVENT"
	EventMiniGameCount   Event = "MINIGAME_COUNTDOWN"
	EventClearNews       Event = "CLEAR_NEWS"
	EventForceLogout     Event = "FORCE_LOGOUT"
	EventLoanConfig      Event = "LOAN_CONFIG_UPDATE"
	EventLoanSharkVisit  Event = "LOAN_SHARK_VISIT_UPDATE"
	EventUserDataUpdated Event = "USER_DATA_UPDATED"
	EventSessionsChanged Event = "SESSIONS_CHANGED"

	IngressBuyStock        Event = "BUY_STOCK"
	IngressSellStock       Event = "SELL_STOCK"
	IngressBuyContract     Event = "BUY_CONTRACT"
	IngressCancelContract  Event = "CANCEL_CONTRACT"
	IngressBorrowMoney     Event = "BORROW_MONEY"
	IngressRepayMoney      Event = "REPAY_MONEY"
	IngressVisitLoanShark  Event = "VISIT_LOAN_SHARK"
	IngressMiniGameAction  Event = "MINIGAME_ACTION"
	IngressAdminMiniGame   Event = "ADMIN_MINIGAME_ACTION"
)

// Envelope is the wire shape for every message in both directions.
type Envelope struct {
	Event   Event `json:"event"`
	Payload any   `json:"payload,omitempty"`
}
