package domain

// Message is one turn handed to the generation backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TransactionContext carries the disputed transaction details supplied by
// the client channel. Only the last four card digits are ever accepted.
type TransactionContext struct {
	Amount         string `json:"amount,omitempty"`
	Currency       string `json:"currency,omitempty"`
	Merchant       string `json:"merchant,omitempty"`
	Channel        string `json:"channel,omitempty"`
	Date           string `json:"date,omitempty"`
	Country        string `json:"country,omitempty"`
	LastFourDigits string `json:"last_four_digits,omitempty"`
}

type ChatRequest struct {
	SessionID      string             `json:"session_id,omitempty"`
	UserMessage    string             `json:"user_message"`
	FraudConfirmed bool               `json:"fraud_confirmed"`
	Transaction    TransactionContext `json:"transaction_context"`
	History        []Message          `json:"conversation_history,omitempty"`
}

// RiskFlag annotates the answer with an operational risk indicator.
// Severity is one of low, medium, high, critical.
type RiskFlag struct {
	Type        string `json:"flag_type"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// StructuredAnswer is the reconciled, citation-verified agent answer.
// Invariant: it carries guidance (message or actions) only if it is
// citation-backed or explicitly marked info_not_found.
type StructuredAnswer struct {
	Message              string     `json:"customer_message"`
	Actions              []string   `json:"actions"`
	MissingInfoQuestions []string   `json:"missing_info_questions"`
	Citations            []Citation `json:"citations"`
	RiskFlags            []RiskFlag `json:"risk_flags"`
	PassagesUsed         int        `json:"passages_used"`
	InfoNotFound         bool       `json:"info_not_found"`
}

// ChatDiagnostics records pipeline events of one turn for observability.
// It never reaches the client payload.
type ChatDiagnostics struct {
	InjectionDetected bool
	RepairAttempted   bool
	ParseFallback     bool
}

// ChatResult is the caller-facing envelope for one chat request.
type ChatResult struct {
	Success          bool              `json:"success"`
	Answer           *StructuredAnswer `json:"agent_response,omitempty"`
	Error            string            `json:"error,omitempty"`
	SessionID        string            `json:"session_id"`
	ProcessingTimeMS int64             `json:"processing_time_ms"`

	Diagnostics ChatDiagnostics `json:"-"`
}

// IngestReport accounts for one full-corpus reindex run. Per-file failures
// are recorded here and never abort the batch.
type IngestReport struct {
	Generation     string   `json:"generation"`
	FilesProcessed int      `json:"files_processed"`
	FilesFailed    int      `json:"files_failed"`
	ChunksCreated  int      `json:"chunks_created"`
	Errors         []string `json:"errors"`
	DurationMS     int64    `json:"duration_ms"`
}
