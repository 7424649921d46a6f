package store

import "time"

// Role enumerates user privilege levels.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Trend enumerates the directional bias attached to a script day or event.
// Names are fixed by spec (§9(c)); treat them as opaque tags.
type Trend string

const (
	TrendStrongUp   Trend = "STRONG_UP"
	TrendUp         Trend = "UP"
	TrendFlat       Trend = "FLAT"
	TrendDown       Trend = "DOWN"
	TrendStrongDown Trend = "STRONG_DOWN"
	TrendNoEffect   Trend = "NO_EFFECT"
)

// ContractType enumerates leveraged contract directions.
type ContractType string

const (
	ContractLong  ContractType = "LONG"
	ContractShort ContractType = "SHORT"
)

// GameStatus is the singleton (id=1) row driving the clock and lifecycle.
type GameStatus struct {
	ID                int
	IsStarted         bool
	GameStartTime     *time.Time
	PausedAt          *time.Time
	TimeRatio         float64 // real seconds per in-game day
	TotalDays         int
	InitialPrice      float64
	InitialCash       float64
	MaxLeverage       float64
	DailyInterestRate float64
	MaxLoanAmount     float64
}

// DefaultGameStatus returns the constants a fresh/reset game boots with.
func DefaultGameStatus() GameStatus {
	return GameStatus{
		ID:                1,
		IsStarted:         false,
		TimeRatio:         600, // 10 minutes per in-game day
		TotalDays:         120,
		InitialPrice:      100,
		InitialCash:       10000,
		MaxLeverage:       10,
		DailyInterestRate: 0.0001,
		MaxLoanAmount:     5000,
	}
}

// User is a player or admin account.
type User struct {
	ID                 string
	Username           string
	PasswordHash       string
	DisplayName        string
	Avatar             string
	Role               Role
	Cash               float64
	Stocks             int64
	Debt               float64
	DailyBorrowed      float64
	FirstSignIn        bool
	IsEmployee         bool
	AvatarUpdateCount  int
	LoanSharkVisitCount int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ScriptDay is one entry of the 1..N day price/news timeline.
type ScriptDay struct {
	Day            int     `json:"day"`
	Price          float64 `json:"price"`
	Title          *string `json:"title,omitempty"`
	News           *string `json:"news,omitempty"`
	EffectiveTrend Trend   `json:"effectiveTrend"`
	PublishOffset  *int    `json:"publishOffset,omitempty"` // [0, timeRatio) or nil when silent
	IsBroadcasted  bool    `json:"isBroadcasted"`
}

// Event is an admin-authored script input (trend-bearing calendar entry).
type Event struct {
	ID    string  `json:"id"`
	Day   int     `json:"day"`
	Title string  `json:"title"`
	News  *string `json:"news,omitempty"`
	Trend Trend   `json:"trend"`
}

// ContractOrder is a one-day leveraged bet.
type ContractOrder struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	Day         int          `json:"day"`
	Type        ContractType `json:"type"`
	Leverage    float64      `json:"leverage"`
	Quantity    int64        `json:"quantity"`
	Margin      float64      `json:"margin"`
	EntryPrice  float64      `json:"entryPrice"`
	IsSettled   bool         `json:"isSettled"`
	IsCancelled bool         `json:"isCancelled"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// RedEnvelopeItemType distinguishes cash prizes from physical prizes.
type RedEnvelopeItemType string

const (
	RedEnvelopePhysical RedEnvelopeItemType = "PHYSICAL"
	RedEnvelopeCash     RedEnvelopeItemType = "CASH"
)

// RedEnvelopeItem is a catalogue row for the red-envelope mini-game.
type RedEnvelopeItem struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Type         RedEnvelopeItemType `json:"type"`
	PrizeValue   float64             `json:"prizeValue"`
	Amount       int                 `json:"amount"`
	DisplayOrder int                 `json:"displayOrder"`
	IsActive     bool                `json:"isActive"`
}

// QuizAnswer enumerates the four multiple-choice slots.
type QuizAnswer string

const (
	QuizA QuizAnswer = "A"
	QuizB QuizAnswer = "B"
	QuizC QuizAnswer = "C"
	QuizD QuizAnswer = "D"
)

// QuizRewards is the speed-ranked payout table for a quiz question.
type QuizRewards struct {
	First  float64 `json:"first"`
	Second float64 `json:"second"`
	Third  float64 `json:"third"`
	Others float64 `json:"others"`
}

// QuizQuestion is a catalogue row for the speed-quiz mini-game.
type QuizQuestion struct {
	ID            string      `json:"id"`
	Text          string      `json:"text"`
	OptionA       string      `json:"optionA"`
	OptionB       string      `json:"optionB"`
	OptionC       string      `json:"optionC"`
	OptionD       string      `json:"optionD"`
	CorrectAnswer QuizAnswer  `json:"correctAnswer"`
	Duration      int         `json:"duration"` // seconds
	SortOrder     int         `json:"sortOrder"`
	Rewards       QuizRewards `json:"rewards"`
}

// MinorityQuestion is a catalogue row for the minority-vote mini-game.
type MinorityQuestion struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	OptionA   string `json:"optionA"`
	OptionB   string `json:"optionB"`
	OptionC   string `json:"optionC"`
	OptionD   string `json:"optionD"`
	Duration  int    `json:"duration"`
	SortOrder int    `json:"sortOrder"`
}

// MiniGameType enumerates the mini-game family currently occupying the
// single runtime slot.
type MiniGameType string

const (
	MiniGameNone         MiniGameType = "NONE"
	MiniGameRedEnvelope  MiniGameType = "RED_ENVELOPE"
	MiniGameQuiz         MiniGameType = "QUIZ"
	MiniGameMinority     MiniGameType = "MINORITY"
)

// MiniGameRuntime is the persisted snapshot of the in-memory state machine,
// keyed by the constant "CURRENT_GAME".
type MiniGameRuntime struct {
	Key       string
	GameType  MiniGameType
	Phase     string
	StartTime *time.Time
	EndTime   *time.Time
	Payload   []byte // opaque JSON, interpreted by internal/minigame
}
