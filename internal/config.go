package internal

import (
	"fmt"
	"time"
)

// ReadReceiptScope selects how a read frame is interpreted (see delivery
// engine): "all" marks every unread message addressed to the caller,
// "peer" restricts marking to the conversation named in the frame.
type ReadReceiptScope string

const (
	ReadScopeAll  ReadReceiptScope = "all"
	ReadScopePeer ReadReceiptScope = "peer"
)

type Config struct {
	Host           string `env:"HOST,required=true"`
	Port           int    `env:"PORT,required=true"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`
	AuthTimeout       time.Duration `env:"AUTH_TIMEOUT,required=true"`

	SendBufferSize    int           `env:"SEND_BUFFER_SIZE,required=true"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT,required=true"`
	TelemetryInterval time.Duration `env:"TELEMETRY_INTERVAL,required=true"`

	UploadDir      string `env:"UPLOAD_DIR,required=true"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES,required=true"`

	HistoryPageLimit int    `env:"HISTORY_PAGE_LIMIT,required=true"`
	ReadReceipts     string `env:"READ_RECEIPT_SCOPE"`
}

// ReadScope validates READ_RECEIPT_SCOPE and defaults to the blanket
// behavior of marking every unread message.
func (c Config) ReadScope() (ReadReceiptScope, error) {
	switch ReadReceiptScope(c.ReadReceipts) {
	case "", ReadScopeAll:
		return ReadScopeAll, nil
	case ReadScopePeer:
		return ReadScopePeer, nil
	default:
		return "", fmt.Errorf("READ_RECEIPT_SCOPE must be %q or %q, got %q",
			ReadScopeAll, ReadScopePeer, c.ReadReceipts)
	}
}
