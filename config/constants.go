package config

import (
	"time"

	"github.com/shopspring/decimal"
)

/* =========================
   CASE ECONOMY
========================= */

var (
	// Balance every new session starts with
	DefaultStartingBalance = decimal.NewFromInt(1000)

	// Price of opening one case
	DefaultCasePrice = decimal.NewFromInt(100)
)

/* =========================
   REDIS TTL CONFIGURATION
========================= */

const (
	// Published commitment record TTL (30 days)
	// Key: commitment:{commitment}
	CommitmentTTL = 30 * 24 * time.Hour

	// Session snapshot TTL (24 hours)
	// Key: session:{sessionId}
	SessionSnapshotTTL = 24 * time.Hour
)

/* =========================
   REDIS KEY PATTERNS
========================= */

const (
	RedisCommitmentKey = "commitment:%s" // commitment:{commitment}
	RedisSessionKey    = "session:%s"    // session:{sessionId}
)

/* =========================
   POSTGRESQL CONFIGURATION
========================= */

const (
	// Connection pool settings
	MaxOpenConns    = 25
	MinIdleConns    = 5
	ConnMaxLifetime = 5 * time.Minute
	ConnectTimeout  = 10 * time.Second
)

/* =========================
   NATS CONFIGURATION
========================= */

const (
	DefaultNATSSubjectPrefix = "fair"

	NATSSubjectCommitment = "commitment"
	NATSSubjectRound      = "round"
	NATSSubjectReveal     = "reveal"

	NATSFlushTimeout = 5 * time.Second
)

/* =========================
   ANCHOR CONFIGURATION
========================= */

const (
	// Gas for a self-transfer carrying a 71 byte payload
	AnchorGasLimit = 30000

	// Calldata prefix for anchored commitments
	AnchorPayloadPrefix = "commit:"

	AnchorTimeout = 30 * time.Second
)

/* =========================
   API CONFIGURATION
========================= */

const (
	DefaultServerHost = "0.0.0.0"
	DefaultServerPort = "8080"

	// Upper bound for a verification request body
	MaxVerifyBodyBytes = 1 << 20

	// Page size for round history
	MaxRoundHistory = 1000
)

/* =========================
   WEBSOCKET CONFIGURATION
========================= */

const (
	WSReadDeadline  = 60 * time.Second
	WSWriteDeadline = 10 * time.Second
	WSPingInterval  = 30 * time.Second

	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSSendBuffer      = 256

	MaxMessageSize = 512 * 1024 // 512KB

	// Channel every client may subscribe to for all public events
	WSFairnessChannel = "fairness"
)
