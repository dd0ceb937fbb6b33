package models

// Requests for engine HTTP endpoints. Query-bound requests share the
// symbol/timeframe/limit triple that selects a candle window.

type CandleQuery struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	TF     string `query:"tf" json:"tf" default:"1h" validate:"oneof=1m 5m 1h"`
	Limit  int    `query:"limit" json:"limit" default:"200" validate:"gte=1,lte=5000"`
}

type KillZonesRequest struct {
	// RFC3339 or unix seconds, defaults to now
	At string `query:"at" json:"at"`
}

type BacktestRequest struct {
	Symbol         string   `json:"symbol" validate:"required"`
	TF             string   `json:"tf" default:"1h" validate:"oneof=1m 5m 1h"`
	Limit          int      `json:"limit" default:"500" validate:"gte=50,lte=10000"`
	Strategy       string   `json:"strategy" default:"combined" validate:"oneof=rsi macd sma combined smc"`
	InitialCapital float64  `json:"initialCapital" default:"10000" validate:"gt=0"`
	StopLossPct    float64  `json:"stopLossPct" validate:"gte=0,lt=100"`
	TakeProfitPct  float64  `json:"takeProfitPct" validate:"gte=0"`
	RSIPeriod      int      `json:"rsiPeriod" validate:"gte=0"`
	SMAPeriod      int      `json:"smaPeriod" validate:"gte=0"`
	RSIBuy         float64  `json:"rsiBuy" validate:"gte=0,lt=100"`
	RSISell        float64  `json:"rsiSell" validate:"gte=0,lt=100"`
	MACDFast       int      `json:"macdFast" validate:"gte=0"`
	MACDSlow       int      `json:"macdSlow" validate:"gte=0"`
	MACDSignal     int      `json:"macdSignal" validate:"gte=0"`
	Candles        []Candle `json:"candles,omitempty"`
}

type TrainRequest struct {
	TF             string   `json:"tf" default:"1h" validate:"oneof=1m 5m 1h"`
	Limit          int      `json:"limit" default:"500" validate:"gte=50,lte=10000"`
	Episodes       int      `json:"episodes" default:"1" validate:"gte=1,lte=200"`
	InitialCapital float64  `json:"initialCapital" default:"10000" validate:"gt=0"`
	Candles        []Candle `json:"candles,omitempty"`
}

type PredictRequest struct {
	TF    string `query:"tf" json:"tf" default:"1h" validate:"oneof=1m 5m 1h"`
	Limit int    `query:"limit" json:"limit" default:"100" validate:"gte=30,lte=5000"`
}

// AgentConfigRequest is a partial update; nil fields keep their value.
type AgentConfigRequest struct {
	LearningRate     *float64 `json:"learningRate"`
	DiscountFactor   *float64 `json:"discountFactor"`
	ExplorationRate  *float64 `json:"explorationRate"`
	ExplorationDecay *float64 `json:"explorationDecay"`
	MinExploration   *float64 `json:"minExploration"`
	BatchSize        *int     `json:"batchSize"`
	MemorySize       *int     `json:"memorySize"`
}

type QTableRequest struct {
	QTable map[string][3]float64 `json:"qTable" validate:"required"`
}
